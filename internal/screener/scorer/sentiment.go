package scorer

import (
	"jongga-screener/internal/entity"
	"jongga-screener/pkg/utils"
)

// Sentiment is an externally computed news judgement, for example from an
// LLM analyzer. Score is clipped to [0,3] by the scorer.
type Sentiment struct {
	Score  int
	Reason string
}

// NewsPolicy scores the catalyst quality of a headline set. It is a
// pluggable strategy so keyword matching can be swapped for a smarter
// analyzer without touching the scorer's control flow.
type NewsPolicy interface {
	ScoreNews(news []entity.NewsItem) (score int, hasNews bool, sources []string)
}

type keywordPolicy struct {
	positive []string
	negative []string
}

// NewKeywordPolicy builds the default keyword-matching news policy from the
// market's configured keyword lists.
func NewKeywordPolicy(positive, negative []string) NewsPolicy {
	return &keywordPolicy{positive: positive, negative: negative}
}

// ScoreNews counts headlines matching the positive and negative keyword
// lists. A headline contributes at most once per direction, so one strong
// headline cannot inflate the score twice.
func (p *keywordPolicy) ScoreNews(news []entity.NewsItem) (int, bool, []string) {
	if len(news) == 0 {
		// Absence of catalyst data is not penalized; off-hours scans
		// often run before any headline exists.
		return 1, false, nil
	}

	var (
		positiveCount int
		negativeCount int
		sources       []string
	)
	for _, item := range news {
		if item.Source != "" {
			sources = append(sources, item.Source)
		}
		if utils.ContainsAnyKeyword(item.Title, p.positive) {
			positiveCount++
		}
		if utils.ContainsAnyKeyword(item.Title, p.negative) {
			negativeCount++
		}
	}

	score := 1
	switch {
	case positiveCount >= 3:
		score = 3
	case positiveCount >= 1:
		score = 2
	}
	score -= negativeCount
	if score < 0 {
		score = 0
	}

	if len(sources) > 3 {
		sources = sources[:3]
	}
	return score, true, sources
}
