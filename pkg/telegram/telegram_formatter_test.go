package telegram

import (
	"strings"
	"testing"
	"time"

	"jongga-screener/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSignal(code, name string, grade entity.Grade, qty int64) *entity.Signal {
	return &entity.Signal{
		StockCode: code,
		StockName: name,
		Market:    "KOSPI",
		Grade:     grade,
		Score:     entity.ScoreBreakdown{News: 3, Volume: 3, Chart: 2, Candle: 1, Reason: "호재성 뉴스 다수"},
		ChangePct: 4.2,
		Plan: entity.PositionPlan{
			EntryPrice:  71000,
			StopPrice:   68870,
			TargetPrice: 74550,
			Quantity:    qty,
		},
		News: []entity.NewsItem{{Title: "대규모 공급계약 체결"}},
	}
}

func TestFormatScreenerResultEmpty(t *testing.T) {
	messages := FormatScreenerResult(nil)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "조건에 맞는 종목이 없습니다")

	messages = FormatScreenerResult(&entity.ScreenerResult{})
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "조건에 맞는 종목이 없습니다")
}

func TestFormatScreenerResultSingleMessage(t *testing.T) {
	result := &entity.ScreenerResult{
		Date:            time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		TotalCandidates: 120,
		FilteredCount:   2,
		Signals: []*entity.Signal{
			sampleSignal("005930", "삼성전자", entity.GradeS, 166),
			sampleSignal("000660", "SK하이닉스", entity.GradeC, 0),
		},
	}

	messages := FormatScreenerResult(result)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Contains(t, msg, "종가베팅 시그널")
	assert.Contains(t, msg, "2026-08-28")
	assert.Contains(t, msg, "🟣 *1. 삼성전자*")
	assert.Contains(t, msg, "진입 71000")
	assert.Contains(t, msg, "대규모 공급계약 체결")
	assert.Contains(t, msg, "호재성 뉴스 다수")

	// The C-grade entry carries no position line.
	cPart := msg[strings.Index(msg, "SK하이닉스"):]
	assert.NotContains(t, cPart, "진입")
}

func TestFormatScreenerResultSplitsLongResults(t *testing.T) {
	result := &entity.ScreenerResult{
		Date:          time.Now(),
		FilteredCount: 200,
	}
	for i := 0; i < 200; i++ {
		result.Signals = append(result.Signals, sampleSignal("005930", strings.Repeat("가", 40), entity.GradeA, 10))
	}

	messages := FormatScreenerResult(result)
	require.Greater(t, len(messages), 1)
	for _, msg := range messages {
		assert.LessOrEqual(t, len(msg), 4096)
	}
	assert.Contains(t, messages[1], "Part 2")
}
