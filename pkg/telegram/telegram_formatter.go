package telegram

import (
	"fmt"
	"strings"

	"jongga-screener/internal/entity"
)

// FormatScreenerResult formats one completed scan into Markdown messages for
// Telegram, splitting so no message exceeds the Telegram length limit.
func FormatScreenerResult(result *entity.ScreenerResult) []string {
	if result == nil || len(result.Signals) == 0 {
		return []string{"📭 오늘은 조건에 맞는 종목이 없습니다."}
	}

	const maxLen = 4090
	var messages []string
	var current strings.Builder
	part := 1

	startNewPart := func() {
		current.Reset()
		if part == 1 {
			current.WriteString(fmt.Sprintf("🔔 *종가베팅 시그널* (%s)\n", result.Date.Format("2006-01-02")))
			current.WriteString(fmt.Sprintf("후보 %d개 중 %d개 통과, %dms\n\n",
				result.TotalCandidates, result.FilteredCount, result.ProcessingTimeMS))
		} else {
			current.WriteString(fmt.Sprintf("---*종가베팅 시그널 계속 Part %d*---\n\n", part))
		}
	}
	startNewPart()

	for i, signal := range result.Signals {
		entry := formatSignalEntry(i+1, signal)
		if current.Len()+len(entry) > maxLen {
			messages = append(messages, current.String())
			part++
			startNewPart()
		}
		current.WriteString(entry)
	}
	if current.Len() > 0 {
		messages = append(messages, current.String())
	}
	return messages
}

func formatSignalEntry(rank int, signal *entity.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%d. %s* (%s · %s)\n",
		gradeEmoji(signal.Grade), rank, signal.StockName, signal.StockCode, signal.Market)
	fmt.Fprintf(&b, "점수 %.1f · 등락 %+.2f%%\n", signal.Score.Total(), signal.ChangePct)
	if signal.Plan.Quantity > 0 {
		fmt.Fprintf(&b, "진입 %.0f · 손절 %.0f · 목표 %.0f · 수량 %d\n",
			signal.Plan.EntryPrice, signal.Plan.StopPrice, signal.Plan.TargetPrice, signal.Plan.Quantity)
	}
	if len(signal.News) > 0 {
		fmt.Fprintf(&b, "📰 %s\n", signal.News[0].Title)
	}
	if signal.Score.Reason != "" {
		fmt.Fprintf(&b, "💬 %s\n", signal.Score.Reason)
	}
	b.WriteString("\n")
	return b.String()
}

func gradeEmoji(grade entity.Grade) string {
	switch grade {
	case entity.GradeS:
		return "🟣"
	case entity.GradeA:
		return "🟢"
	case entity.GradeB:
		return "🟡"
	default:
		return "⚪"
	}
}
