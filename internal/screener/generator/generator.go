package generator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/internal/screener/collector"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/scorer"
	"jongga-screener/internal/screener/sizer"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/utils"
)

// SentimentAnalyzer is an optional external news judge, typically an LLM.
// A nil analyzer or an analyzer error falls back to the keyword policy.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, stock entity.StockSnapshot, news []entity.NewsItem) (*scorer.Sentiment, error)
}

// SignalGenerator orchestrates one scan cycle: candidate collection,
// bounded-concurrency enrichment, scoring, sizing and ranked output.
type SignalGenerator interface {
	// RunScan runs one full cycle over the given market segments. It is
	// mutually exclusive: a second call while one runs fails with
	// ErrScanInProgress.
	RunScan(ctx context.Context, markets []string) (*entity.ScreenerResult, error)

	// AnalyzeOne re-runs enrichment and scoring for a single stock outside
	// the scan cycle. Grade C yields a nil signal, not an error.
	AnalyzeOne(ctx context.Context, market, code string, name string) (*entity.Signal, error)

	// Status returns the current scan state snapshot.
	Status() ScanStatus

	// Reset forces the scan state back to Idle.
	Reset()
}

type signalGenerator struct {
	cfg        *screenercfg.Config
	log        *logger.Logger
	collectors collector.Registry
	sentiment  SentimentAnalyzer
	state      *scanState
	scorers    map[string]scorer.Scorer
	sizers     map[string]sizer.PositionSizer
}

// NewSignalGenerator wires a generator for the configured markets. The
// sentiment analyzer may be nil.
func NewSignalGenerator(cfg *screenercfg.Config, log *logger.Logger, collectors collector.Registry, sentiment SentimentAnalyzer) SignalGenerator {
	scorers := make(map[string]scorer.Scorer, len(cfg.Rubrics))
	sizers := make(map[string]sizer.PositionSizer, len(cfg.Rubrics))
	for market, rubric := range cfg.Rubrics {
		scorers[market] = scorer.NewScorer(rubric, nil)
		sizers[market] = sizer.NewPositionSizer(cfg.Screener, rubric)
	}
	return &signalGenerator{
		cfg:        cfg,
		log:        log,
		collectors: collectors,
		sentiment:  sentiment,
		state:      newScanState(),
		scorers:    scorers,
		sizers:     sizers,
	}
}

func (g *signalGenerator) Status() ScanStatus { return g.state.status() }

func (g *signalGenerator) Reset() { g.state.reset() }

func (g *signalGenerator) RunScan(ctx context.Context, markets []string) (*entity.ScreenerResult, error) {
	if err := g.state.tryStart(); err != nil {
		return nil, err
	}
	started := time.Now()

	g.log.InfoContext(ctx, "Scan started", logger.Field("markets", markets))

	type marketBatch struct {
		market     string
		candidates []entity.StockSnapshot
	}

	var (
		batches         []marketBatch
		totalCandidates int
		listErrors      int
	)
	for _, market := range markets {
		col, ok := g.collectors.ForMarket(market)
		if !ok {
			g.log.Warn("No collector registered for market, skipping", logger.StringField("market", market))
			listErrors++
			continue
		}
		candidates, err := col.ListCandidates(ctx, market, g.cfg.Screener.TopN)
		if err != nil {
			g.log.ErrorContext(ctx, "Candidate listing failed, skipping market",
				logger.ErrorField(err), logger.StringField("market", market))
			listErrors++
			continue
		}
		totalCandidates += len(candidates)
		batches = append(batches, marketBatch{market: market, candidates: candidates})
	}

	if listErrors == len(markets) {
		message := fmt.Sprintf("candidate listing failed for all %d markets", len(markets))
		g.state.fail(message)
		return nil, fmt.Errorf("run scan: %s", message)
	}

	var (
		mu      sync.Mutex
		signals []*entity.Signal
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, g.cfg.Screener.MaxConcurrent)

	for _, batch := range batches {
		col, _ := g.collectors.ForMarket(batch.market)
		for _, candidate := range batch.candidates {
			if !utils.ShouldContinue(ctx) {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			candidate := candidate
			utils.GoSafe(func() {
				defer wg.Done()
				defer func() { <-sem }()

				signal := g.analyze(ctx, col, candidate)
				if signal == nil {
					return
				}
				mu.Lock()
				signals = append(signals, signal)
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		g.state.fail(err.Error())
		return nil, fmt.Errorf("run scan: %w", err)
	}

	rankSignals(signals)
	if limit := g.cfg.Screener.MaxSignals; limit > 0 && len(signals) > limit {
		signals = signals[:limit]
	}

	result := &entity.ScreenerResult{
		Date:             utils.TimeNowKST(),
		TotalCandidates:  totalCandidates,
		FilteredCount:    len(signals),
		Signals:          signals,
		ByGrade:          gradeHistogram(signals),
		ByMarket:         marketHistogram(signals),
		ProcessingTimeMS: time.Since(started).Milliseconds(),
	}

	g.state.complete()
	g.log.InfoContext(ctx, "Scan completed",
		logger.IntField("total_candidates", result.TotalCandidates),
		logger.IntField("signals", result.FilteredCount),
		logger.Field("duration_ms", result.ProcessingTimeMS))
	return result, nil
}

func (g *signalGenerator) AnalyzeOne(ctx context.Context, market, code, name string) (*entity.Signal, error) {
	col, ok := g.collectors.ForMarket(market)
	if !ok {
		return nil, fmt.Errorf("no collector registered for market %s", market)
	}

	bars, err := col.GetPriceHistory(ctx, code, g.cfg.Screener.ChartDays)
	if err != nil || len(bars) == 0 {
		return nil, fmt.Errorf("no price history for %s", code)
	}
	last := bars[len(bars)-1]
	changePct := 0.0
	if len(bars) >= 2 && bars[len(bars)-2].Close > 0 {
		changePct = (last.Close - bars[len(bars)-2].Close) / bars[len(bars)-2].Close * 100
	}
	candidate := entity.StockSnapshot{
		Code:         code,
		Name:         name,
		Market:       market,
		Close:        last.Close,
		ChangePct:    changePct,
		Volume:       last.Volume,
		TradingValue: int64(last.Close * float64(last.Volume)),
	}
	return g.analyze(ctx, col, candidate), nil
}

// analyze enriches and scores one candidate. Every failure path degrades to
// "no signal": a candidate can never abort its siblings.
func (g *signalGenerator) analyze(ctx context.Context, col collector.Collector, candidate entity.StockSnapshot) *entity.Signal {
	scr, ok := g.scorers[candidate.Market]
	if !ok {
		return nil
	}

	bars, err := col.GetPriceHistory(ctx, candidate.Code, g.cfg.Screener.ChartDays)
	if err != nil {
		g.log.Warn("Price history fetch failed, dropping candidate",
			logger.ErrorField(err), logger.StringField("code", candidate.Code))
		return nil
	}
	if len(bars) < g.cfg.Screener.MinChartBars {
		g.log.DebugContext(ctx, "Insufficient trading history, dropping candidate",
			logger.StringField("code", candidate.Code),
			logger.IntField("bars", len(bars)))
		return nil
	}

	if candidate.High52W == 0 {
		if detail, err := col.GetDetail(ctx, candidate.Code); err == nil {
			candidate.High52W = detail.High52W
		}
	}

	news, err := col.GetNews(ctx, candidate.Code, g.cfg.Screener.NewsLimit, candidate.Name)
	if err != nil {
		news = nil
	}
	supply, err := col.GetSupplyDemand(ctx, candidate.Code)
	if err != nil {
		supply = entity.SupplyDemand{Code: candidate.Code}
	}

	var sentiment *scorer.Sentiment
	if g.sentiment != nil && len(news) > 0 {
		sentiment, err = g.sentiment.Analyze(ctx, candidate, news)
		if err != nil {
			g.log.Warn("Sentiment analysis failed, using keyword fallback",
				logger.ErrorField(err), logger.StringField("code", candidate.Code))
			sentiment = nil
		}
	}

	score, checklist := scr.Calculate(candidate, bars, news, supply, sentiment)
	grade := scr.DetermineGrade(candidate, score)
	if !grade.Tradable() {
		return nil
	}

	plan := g.sizers[candidate.Market].Calculate(candidate.Close, grade)
	now := utils.TimeNowKST()
	return &entity.Signal{
		StockCode:    candidate.Code,
		StockName:    candidate.Name,
		Market:       candidate.Market,
		Sector:       candidate.Sector,
		// The signal date is the calendar day, not the scan timestamp, so
		// rescanning the same stock on the same day upserts one row.
		SignalDate:   utils.StartOfDay(now),
		Grade:        grade,
		Score:        score,
		Checklist:    checklist,
		Plan:         plan,
		News:         news,
		CurrentPrice: candidate.Close,
		TradingValue: candidate.TradingValue,
		ChangePct:    candidate.ChangePct,
		Status:       entity.SignalStatusPending,
		CreatedAt:    now,
	}
}

// rankSignals orders by grade rank ascending, then score total descending,
// with the code as a stable final tiebreak.
func rankSignals(signals []*entity.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Grade.Rank() != signals[j].Grade.Rank() {
			return signals[i].Grade.Rank() < signals[j].Grade.Rank()
		}
		if signals[i].Score.Total() != signals[j].Score.Total() {
			return signals[i].Score.Total() > signals[j].Score.Total()
		}
		return signals[i].StockCode < signals[j].StockCode
	})
}

func gradeHistogram(signals []*entity.Signal) map[entity.Grade]int {
	out := make(map[entity.Grade]int)
	for _, s := range signals {
		out[s.Grade]++
	}
	return out
}

func marketHistogram(signals []*entity.Signal) map[string]int {
	out := make(map[string]int)
	for _, s := range signals {
		out[s.Market]++
	}
	return out
}
