package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/internal/screener/collector"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/pkg/common"
	"jongga-screener/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCollector struct {
	candidates map[string][]entity.StockSnapshot
	bars       map[string][]entity.PriceBar
	news       map[string][]entity.NewsItem
	supply     map[string]entity.SupplyDemand
	listErr    error
	newsPanics map[string]bool
	block      chan struct{}
}

func (m *mockCollector) ListCandidates(ctx context.Context, market string, topN int) ([]entity.StockSnapshot, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.candidates[market], nil
}

func (m *mockCollector) GetPriceHistory(ctx context.Context, code string, maxDays int) ([]entity.PriceBar, error) {
	if m.block != nil {
		<-m.block
	}
	return m.bars[code], nil
}

func (m *mockCollector) GetNews(ctx context.Context, code string, limit int, name string) ([]entity.NewsItem, error) {
	if m.newsPanics[code] {
		panic("news adapter blew up")
	}
	return m.news[code], nil
}

func (m *mockCollector) GetSupplyDemand(ctx context.Context, code string) (entity.SupplyDemand, error) {
	return m.supply[code], nil
}

func (m *mockCollector) GetDetail(ctx context.Context, code string) (entity.StockSnapshot, error) {
	return entity.StockSnapshot{Code: code}, nil
}

func generatorConfig() *screenercfg.Config {
	cfg := &screenercfg.Config{
		Screener: screenercfg.Screener{
			Capital:             10_000_000,
			RiskFraction:        0.005,
			PositionCapFraction: 0.2,
			MaxConcurrent:       4,
			TopN:                30,
			MaxSignals:          2,
			ChartDays:           60,
			MinChartBars:        20,
			NewsLimit:           5,
			Markets:             []string{common.MarketKOSPI},
		},
		Rubrics: map[string]screenercfg.Rubric{},
	}
	rubric := screenercfg.Rubric{
		VolumeTiers: screenercfg.VolumeTiers{
			Tier3: 500_000_000_000,
			Tier2: 100_000_000_000,
			Tier1: 10_000_000_000,
		},
		StopLossPct:      0.03,
		TakeProfitPct:    0.05,
		PositiveKeywords: []string{"수주", "계약"},
		NegativeKeywords: []string{"유상증자"},
	}
	rubric.Grading.SMin = 9
	rubric.Grading.AMin = 7
	rubric.Grading.BMin = 5
	rubric.Grading.BChangePct = 3.0
	rubric.Grading.RMultiplier.S = 1.5
	rubric.Grading.RMultiplier.A = 1.0
	rubric.Grading.RMultiplier.B = 0.5
	cfg.Rubrics[common.MarketKOSPI] = rubric
	return cfg
}

func goodBars(n int) []entity.PriceBar {
	bars := make([]entity.PriceBar, 0, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)*0.3
		bars = append(bars, entity.PriceBar{
			Date:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:  base - 0.5,
			High:  base + 1,
			Low:   base - 1,
			Close: base,
		})
	}
	return bars
}

func strongCandidate(code string) entity.StockSnapshot {
	return entity.StockSnapshot{
		Code:         code,
		Name:         "종목" + code,
		Market:       common.MarketKOSPI,
		Close:        117,
		ChangePct:    6.0,
		TradingValue: 600_000_000_000,
		High52W:      118,
	}
}

func strongEnrichment(m *mockCollector, code string) {
	m.bars[code] = goodBars(40)
	m.news[code] = []entity.NewsItem{
		{Title: "대규모 수주 발표", Source: "연합뉴스"},
		{Title: "추가 계약 공시", Source: "한국경제"},
		{Title: "수주 잔고 확대", Source: "매일경제"},
	}
	m.supply[code] = entity.SupplyDemand{Code: code, Supported: true, ForeignBuy5D: 1000, InstBuy5D: 500}
}

func newMock() *mockCollector {
	return &mockCollector{
		candidates: map[string][]entity.StockSnapshot{},
		bars:       map[string][]entity.PriceBar{},
		news:       map[string][]entity.NewsItem{},
		supply:     map[string]entity.SupplyDemand{},
		newsPanics: map[string]bool{},
	}
}

func newGenerator(t *testing.T, mock *mockCollector) SignalGenerator {
	t.Helper()
	log, err := logger.New("debug", "console")
	require.NoError(t, err)
	registry := collector.Registry{common.MarketKOSPI: mock}
	return NewSignalGenerator(generatorConfig(), log, registry, nil)
}

func TestRunScanRanksAndTruncates(t *testing.T) {
	mock := newMock()

	strong := strongCandidate("000100")
	strongEnrichment(mock, "000100")

	// Weak but tradable on the change-pct fallback.
	weak := entity.StockSnapshot{
		Code: "000200", Name: "종목B", Market: common.MarketKOSPI,
		Close: 90, ChangePct: 3.5, TradingValue: 2_000_000_000,
	}
	mock.bars["000200"] = goodBars(25)

	// Another strong one so truncation to MaxSignals=2 drops the weak B.
	second := strongCandidate("000300")
	strongEnrichment(mock, "000300")

	// Dull candidate grades C and is discarded before ranking.
	dull := entity.StockSnapshot{
		Code: "000400", Name: "종목D", Market: common.MarketKOSPI,
		Close: 50, ChangePct: 2.2, TradingValue: 1_000_000_000,
	}
	mock.bars["000400"] = func() []entity.PriceBar {
		bars := make([]entity.PriceBar, 25)
		for i := range bars {
			base := 100.0 + float64(i%2)*40
			bars[i] = entity.PriceBar{Open: base + 2, High: base + 45, Low: base - 5, Close: base}
		}
		return bars
	}()

	mock.candidates[common.MarketKOSPI] = []entity.StockSnapshot{weak, strong, dull, second}

	gen := newGenerator(t, mock)
	result, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})

	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalCandidates)
	assert.Equal(t, 2, result.FilteredCount, "truncated to the configured maximum")
	require.Len(t, result.Signals, 2)
	for _, s := range result.Signals {
		assert.Equal(t, entity.GradeS, s.Grade, "the weak B signal fell off the truncated tail")
		assert.Equal(t, entity.SignalStatusPending, s.Status)
		assert.Positive(t, s.Plan.Quantity)
	}
	assert.Equal(t, 2, result.ByGrade[entity.GradeS])
	assert.Equal(t, 2, result.ByMarket[common.MarketKOSPI])
	assert.Equal(t, entity.ScanStateCompleted, gen.Status().State)
}

func TestRunScanSkipsShortHistory(t *testing.T) {
	mock := newMock()
	candidate := strongCandidate("000100")
	strongEnrichment(mock, "000100")
	mock.bars["000100"] = goodBars(15) // under the 20-bar minimum

	mock.candidates[common.MarketKOSPI] = []entity.StockSnapshot{candidate}

	gen := newGenerator(t, mock)
	result, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCandidates)
	assert.Zero(t, result.FilteredCount)
}

func TestRunScanAbsorbsPanickingCandidate(t *testing.T) {
	mock := newMock()

	bad := strongCandidate("000666")
	strongEnrichment(mock, "000666")
	mock.newsPanics["000666"] = true

	good := strongCandidate("000100")
	strongEnrichment(mock, "000100")

	mock.candidates[common.MarketKOSPI] = []entity.StockSnapshot{bad, good}

	gen := newGenerator(t, mock)
	result, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})

	require.NoError(t, err, "one candidate's failure never aborts the batch")
	require.Len(t, result.Signals, 1)
	assert.Equal(t, "000100", result.Signals[0].StockCode)
	assert.Equal(t, entity.ScanStateCompleted, gen.Status().State)
}

func TestRunScanMutualExclusion(t *testing.T) {
	mock := newMock()
	candidate := strongCandidate("000100")
	strongEnrichment(mock, "000100")
	mock.candidates[common.MarketKOSPI] = []entity.StockSnapshot{candidate}
	mock.block = make(chan struct{})

	gen := newGenerator(t, mock)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return gen.Status().State == entity.ScanStateRunning
	}, time.Second, 5*time.Millisecond)

	_, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	assert.ErrorIs(t, err, ErrScanInProgress, "a second start is rejected, not queued")

	close(mock.block)
	wg.Wait()
	assert.Equal(t, entity.ScanStateCompleted, gen.Status().State)

	// Once back out of Running, the next scan is permitted again.
	mock.block = nil
	_, err = gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	assert.NoError(t, err)
}

func TestRunScanFailsWhenEveryMarketFails(t *testing.T) {
	mock := newMock()
	mock.listErr = errors.New("upstream down")

	gen := newGenerator(t, mock)
	_, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})

	require.Error(t, err)
	status := gen.Status()
	assert.Equal(t, entity.ScanStateFailed, status.State)
	assert.NotEmpty(t, status.Message)

	// A failed state never blocks the next attempt.
	mock.listErr = nil
	mock.candidates[common.MarketKOSPI] = nil
	_, err = gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	assert.NoError(t, err)
}

func TestResetForcesIdle(t *testing.T) {
	mock := newMock()
	gen := newGenerator(t, mock)

	mock.listErr = errors.New("boom")
	_, _ = gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	require.Equal(t, entity.ScanStateFailed, gen.Status().State)

	gen.Reset()
	status := gen.Status()
	assert.Equal(t, entity.ScanStateIdle, status.State)
	assert.Empty(t, status.Message)
	assert.Nil(t, status.StartedAt)
}

func TestAnalyzeOne(t *testing.T) {
	mock := newMock()
	strongEnrichment(mock, "000100")

	gen := newGenerator(t, mock)
	signal, err := gen.AnalyzeOne(context.Background(), common.MarketKOSPI, "000100", "종목A")

	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, "000100", signal.StockCode)
	assert.True(t, signal.Grade.Tradable())

	_, err = gen.AnalyzeOne(context.Background(), "NASDAQ", "AAPL", "Apple")
	assert.Error(t, err, "unregistered markets are rejected")
}

func TestSignalDateIsCalendarDay(t *testing.T) {
	mock := newMock()
	candidate := strongCandidate("000100")
	strongEnrichment(mock, "000100")
	mock.candidates[common.MarketKOSPI] = []entity.StockSnapshot{candidate}

	gen := newGenerator(t, mock)
	first, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	require.NoError(t, err)
	require.Len(t, first.Signals, 1)

	signal := first.Signals[0]
	h, m, s := signal.SignalDate.Clock()
	assert.Zero(t, h+m+s, "the signal date carries no time of day")
	assert.Zero(t, signal.SignalDate.Nanosecond())
	assert.False(t, signal.CreatedAt.Equal(signal.SignalDate), "creation keeps the scan timestamp")

	// A rescan within the same day lands on the same upsert key.
	second, err := gen.RunScan(context.Background(), []string{common.MarketKOSPI})
	require.NoError(t, err)
	require.Len(t, second.Signals, 1)
	assert.True(t, signal.SignalDate.Equal(second.Signals[0].SignalDate),
		"two same-day scans share one (code, date) identity")
}

func TestRankSignals(t *testing.T) {
	signals := []*entity.Signal{
		{StockCode: "B1", Grade: entity.GradeB, Score: entity.ScoreBreakdown{News: 5}},
		{StockCode: "S1", Grade: entity.GradeS, Score: entity.ScoreBreakdown{News: 9}},
		{StockCode: "A2", Grade: entity.GradeA, Score: entity.ScoreBreakdown{News: 7}},
		{StockCode: "A1", Grade: entity.GradeA, Score: entity.ScoreBreakdown{News: 8}},
	}

	rankSignals(signals)

	codes := []string{signals[0].StockCode, signals[1].StockCode, signals[2].StockCode, signals[3].StockCode}
	assert.Equal(t, []string{"S1", "A1", "A2", "B1"}, codes)
}
