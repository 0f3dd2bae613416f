package entity

// Grade is the letter outcome of scoring. S is strictly best; C means the
// stock is not traded.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Rank returns the sort rank of the grade, S lowest (best).
func (g Grade) Rank() int {
	switch g {
	case GradeS:
		return 0
	case GradeA:
		return 1
	case GradeB:
		return 2
	default:
		return 3
	}
}

// Tradable reports whether positions may be opened for this grade.
func (g Grade) Tradable() bool {
	return g != GradeC && g != ""
}

// AllGrades lists the grades in rank order.
func AllGrades() []Grade {
	return []Grade{GradeS, GradeA, GradeB, GradeC}
}
