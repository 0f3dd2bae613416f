package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/internal/screener/collector"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/generator"
	"jongga-screener/internal/screener/repository"
	"jongga-screener/pkg/common"
	"jongga-screener/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSignalRepo struct {
	mu       sync.Mutex
	saved    [][]*entity.Signal
	byStatus []*entity.Signal
	byCode   map[string]*entity.Signal
	byDate   []*entity.Signal
	updates  []entity.SignalStatus
	reasons  []string
	expired  int64
}

func (m *mockSignalRepo) CreateBatch(ctx context.Context, signals []*entity.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, signals)
	return nil
}

func (m *mockSignalRepo) FindByDate(ctx context.Context, date time.Time) ([]*entity.Signal, error) {
	return m.byDate, nil
}

func (m *mockSignalRepo) FindByCode(ctx context.Context, code string) (*entity.Signal, error) {
	if s, ok := m.byCode[code]; ok {
		return s, nil
	}
	return nil, errors.New("record not found")
}

func (m *mockSignalRepo) FindByStatus(ctx context.Context, statuses ...entity.SignalStatus) ([]*entity.Signal, error) {
	return m.byStatus, nil
}

func (m *mockSignalRepo) UpdateStatus(ctx context.Context, id int64, status entity.SignalStatus, exitReason string, currentPrice, returnPct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, status)
	m.reasons = append(m.reasons, exitReason)
	return nil
}

func (m *mockSignalRepo) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.expired, nil
}

type mockScanRunRepo struct {
	mu        sync.Mutex
	runs      []*entity.ScanRun
	lastLimit int
}

func (m *mockScanRunRepo) Create(ctx context.Context, run *entity.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockScanRunRepo) FindLatest(ctx context.Context) (*entity.ScanRun, error) {
	if len(m.runs) == 0 {
		return nil, errors.New("record not found")
	}
	return m.runs[len(m.runs)-1], nil
}

func (m *mockScanRunRepo) FindRecent(ctx context.Context, limit int) ([]*entity.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return m.runs, nil
}

type mockResultCache struct {
	stored []*entity.ScreenerResult
	latest *entity.ScreenerResult
}

func (m *mockResultCache) Store(ctx context.Context, result *entity.ScreenerResult) error {
	m.stored = append(m.stored, result)
	return nil
}

func (m *mockResultCache) Latest(ctx context.Context) (*entity.ScreenerResult, error) {
	if m.latest == nil {
		return nil, repository.ErrNoCachedResult
	}
	return m.latest, nil
}

func (m *mockResultCache) ByDate(ctx context.Context, date time.Time) (*entity.ScreenerResult, error) {
	return nil, repository.ErrNoCachedResult
}

type mockGenerator struct {
	result  *entity.ScreenerResult
	err     error
	oneByID map[string]*entity.Signal
}

func (m *mockGenerator) RunScan(ctx context.Context, markets []string) (*entity.ScreenerResult, error) {
	return m.result, m.err
}

func (m *mockGenerator) AnalyzeOne(ctx context.Context, market, code, name string) (*entity.Signal, error) {
	return m.oneByID[code], nil
}

func (m *mockGenerator) Status() generator.ScanStatus {
	return generator.ScanStatus{State: entity.ScanStateIdle}
}

func (m *mockGenerator) Reset() {}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) SendMessage(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return nil
}

type priceCollector struct {
	collector.Collector
	bars map[string][]entity.PriceBar
}

func (p *priceCollector) GetPriceHistory(ctx context.Context, code string, maxDays int) ([]entity.PriceBar, error) {
	return p.bars[code], nil
}

func serviceConfig() *screenercfg.Config {
	return &screenercfg.Config{
		Screener: screenercfg.Screener{
			Markets:          []string{common.MarketKOSPI},
			SignalExpiryDays: 3,
		},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("debug", "console")
	require.NoError(t, err)
	return log
}

func sampleResult() *entity.ScreenerResult {
	return &entity.ScreenerResult{
		Date:            time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC),
		TotalCandidates: 10,
		FilteredCount:   1,
		Signals: []*entity.Signal{{
			StockCode: "005930", StockName: "삼성전자", Market: common.MarketKOSPI,
			Grade: entity.GradeS, Status: entity.SignalStatusPending,
		}},
		ByGrade:  map[entity.Grade]int{entity.GradeS: 1},
		ByMarket: map[string]int{common.MarketKOSPI: 1},
	}
}

func TestScanPersistsToEverySink(t *testing.T) {
	signalRepo := &mockSignalRepo{}
	runRepo := &mockScanRunRepo{}
	cache := &mockResultCache{}
	notifier := &mockNotifier{}
	gen := &mockGenerator{result: sampleResult()}

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), gen, signalRepo, runRepo, cache, notifier)
	result, err := svc.Scan(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, signalRepo.saved, 1)
	require.Len(t, runRepo.runs, 1)
	assert.Equal(t, entity.ScanStateCompleted, runRepo.runs[0].State)
	require.Len(t, cache.stored, 1)

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.messages) > 0
	}, time.Second, 5*time.Millisecond, "summary notification goes out asynchronously")
}

func TestScanFailureRecordsFailedRun(t *testing.T) {
	signalRepo := &mockSignalRepo{}
	runRepo := &mockScanRunRepo{}
	gen := &mockGenerator{err: errors.New("all markets down")}

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), gen, signalRepo, runRepo, &mockResultCache{}, nil)
	_, err := svc.Scan(context.Background())

	require.Error(t, err)
	require.Len(t, runRepo.runs, 1)
	assert.Equal(t, entity.ScanStateFailed, runRepo.runs[0].State)
	assert.Equal(t, "all markets down", runRepo.runs[0].ErrorMessage)
	assert.Empty(t, signalRepo.saved, "a failed scan hands nothing to the signal sink")
}

func TestScanRejectionLeavesNoRecord(t *testing.T) {
	runRepo := &mockScanRunRepo{}
	gen := &mockGenerator{err: generator.ErrScanInProgress}

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), gen, &mockSignalRepo{}, runRepo, &mockResultCache{}, nil)
	_, err := svc.Scan(context.Background())

	assert.ErrorIs(t, err, generator.ErrScanInProgress)
	assert.Empty(t, runRepo.runs, "a rejected start is not a failed run")
}

func TestLatestResultFallsBackToDatabase(t *testing.T) {
	signalRepo := &mockSignalRepo{byDate: sampleResult().Signals}
	runRepo := &mockScanRunRepo{}
	require.NoError(t, runRepo.Create(context.Background(), &entity.ScanRun{
		ScanDate: time.Now(), State: entity.ScanStateCompleted, TotalCandidates: 10,
	}))

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), &mockGenerator{}, signalRepo, runRepo, &mockResultCache{}, nil)
	result, err := svc.LatestResult(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 10, result.TotalCandidates)
	assert.Equal(t, 1, result.FilteredCount)
	assert.Equal(t, 1, result.ByGrade[entity.GradeS])
}

func TestReanalyzeUsesExistingSignal(t *testing.T) {
	prior := &entity.Signal{StockCode: "005930", StockName: "삼성전자", Market: common.MarketKOSPI, Sector: "전기전자"}
	fresh := &entity.Signal{StockCode: "005930", StockName: "삼성전자", Market: common.MarketKOSPI, Grade: entity.GradeA}

	signalRepo := &mockSignalRepo{byCode: map[string]*entity.Signal{"005930": prior}}
	gen := &mockGenerator{oneByID: map[string]*entity.Signal{"005930": fresh}}

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), gen, signalRepo, &mockScanRunRepo{}, &mockResultCache{}, nil)
	signal, err := svc.Reanalyze(context.Background(), "005930")

	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, "전기전자", signal.Sector, "sector carries over from the prior signal")
	require.Len(t, signalRepo.saved, 1)

	_, err = svc.Reanalyze(context.Background(), "999999")
	assert.Error(t, err, "unknown codes are rejected")
}

func TestRecentRunsClampsLimit(t *testing.T) {
	runRepo := &mockScanRunRepo{runs: []*entity.ScanRun{{State: entity.ScanStateCompleted}}}

	svc := NewScreenerService(serviceConfig(), newTestLogger(t), &mockGenerator{}, &mockSignalRepo{}, runRepo, &mockResultCache{}, nil)

	runs, err := svc.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, 10, runRepo.lastLimit, "a missing limit falls back to the default")

	_, err = svc.RecentRuns(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 10, runRepo.lastLimit, "an oversized limit falls back to the default")
}

func trackedSignal(status entity.SignalStatus, entry, stop, target float64) *entity.Signal {
	return &entity.Signal{
		ID: 1, StockCode: "005930", StockName: "삼성전자", Market: common.MarketKOSPI,
		SignalDate: time.Now().AddDate(0, 0, -2),
		Status:     status,
		Plan:       entity.PositionPlan{EntryPrice: entry, StopPrice: stop, TargetPrice: target},
	}
}

func trackerWith(t *testing.T, signal *entity.Signal, lastClose float64) (*mockSignalRepo, TrackerService) {
	t.Helper()
	signalRepo := &mockSignalRepo{byStatus: []*entity.Signal{signal}}
	col := &priceCollector{bars: map[string][]entity.PriceBar{
		"005930": {{Date: time.Now(), Close: lastClose}},
	}}
	registry := collector.Registry{common.MarketKOSPI: col}
	svc := NewTrackerService(serviceConfig(), newTestLogger(t), registry, signalRepo, nil)
	return signalRepo, svc
}

func TestTrackClosesOnStopLoss(t *testing.T) {
	signalRepo, svc := trackerWith(t, trackedSignal(entity.SignalStatusActive, 10_000, 9_700, 10_500), 9_600)

	require.NoError(t, svc.Track(context.Background()))
	require.Len(t, signalRepo.updates, 1)
	assert.Equal(t, entity.SignalStatusClosed, signalRepo.updates[0])
	assert.Equal(t, "stop loss hit", signalRepo.reasons[0])
}

func TestTrackClosesOnTarget(t *testing.T) {
	signalRepo, svc := trackerWith(t, trackedSignal(entity.SignalStatusActive, 10_000, 9_700, 10_500), 10_600)

	require.NoError(t, svc.Track(context.Background()))
	require.Len(t, signalRepo.updates, 1)
	assert.Equal(t, entity.SignalStatusClosed, signalRepo.updates[0])
	assert.Equal(t, "target reached", signalRepo.reasons[0])
}

func TestTrackActivatesPendingSignal(t *testing.T) {
	signalRepo, svc := trackerWith(t, trackedSignal(entity.SignalStatusPending, 10_000, 9_700, 10_500), 10_100)

	require.NoError(t, svc.Track(context.Background()))
	require.Len(t, signalRepo.updates, 1)
	assert.Equal(t, entity.SignalStatusActive, signalRepo.updates[0])
	assert.Empty(t, signalRepo.reasons[0])
}

func TestTrackSameDayBarDoesNotActivate(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	signal := trackedSignal(entity.SignalStatusPending, 10_000, 9_700, 10_500)
	signal.SignalDate = time.Date(2026, 8, 28, 0, 0, 0, 0, kst)

	signalRepo := &mockSignalRepo{byStatus: []*entity.Signal{signal}}
	col := &priceCollector{bars: map[string][]entity.PriceBar{
		"005930": {{Date: time.Date(2026, 8, 28, 15, 0, 0, 0, kst), Close: 10_100}},
	}}
	svc := NewTrackerService(serviceConfig(), newTestLogger(t), collector.Registry{common.MarketKOSPI: col}, signalRepo, nil)

	require.NoError(t, svc.Track(context.Background()))
	require.Len(t, signalRepo.updates, 1)
	assert.Equal(t, entity.SignalStatusPending, signalRepo.updates[0],
		"a bar from the signal's own session leaves the signal pending")
}

func TestTrackEarlyNextDayBarActivates(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	signal := trackedSignal(entity.SignalStatusPending, 10_000, 9_700, 10_500)
	signal.SignalDate = time.Date(2026, 8, 28, 0, 0, 0, 0, kst)

	signalRepo := &mockSignalRepo{byStatus: []*entity.Signal{signal}}
	col := &priceCollector{bars: map[string][]entity.PriceBar{
		"005930": {{Date: time.Date(2026, 8, 29, 1, 0, 0, 0, kst), Close: 10_100}},
	}}
	svc := NewTrackerService(serviceConfig(), newTestLogger(t), collector.Registry{common.MarketKOSPI: col}, signalRepo, nil)

	require.NoError(t, svc.Track(context.Background()))
	require.Len(t, signalRepo.updates, 1)
	assert.Equal(t, entity.SignalStatusActive, signalRepo.updates[0],
		"any bar past local midnight of the next day opens the entry window")
}

func TestTrackLeavesSignalWithoutPrice(t *testing.T) {
	signal := trackedSignal(entity.SignalStatusActive, 10_000, 9_700, 10_500)
	signalRepo := &mockSignalRepo{byStatus: []*entity.Signal{signal}}
	col := &priceCollector{bars: map[string][]entity.PriceBar{}}
	registry := collector.Registry{common.MarketKOSPI: col}
	svc := NewTrackerService(serviceConfig(), newTestLogger(t), registry, signalRepo, nil)

	require.NoError(t, svc.Track(context.Background()))
	assert.Empty(t, signalRepo.updates, "no price means no state change this cycle")
}
