package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/generator"
	"jongga-screener/internal/screener/repository"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/telegram"
	"jongga-screener/pkg/utils"
)

// ScreenerService runs scan cycles and serves their persisted results.
type ScreenerService interface {
	// Scan runs one full cycle over the configured markets and hands the
	// result to the persistence sinks. Mutually exclusive while running.
	Scan(ctx context.Context) (*entity.ScreenerResult, error)

	// LatestResult returns the most recent completed scan result.
	LatestResult(ctx context.Context) (*entity.ScreenerResult, error)

	// ResultByDate returns the scan result of a specific day.
	ResultByDate(ctx context.Context, date time.Time) (*entity.ScreenerResult, error)

	// Reanalyze re-scores one stock outside the scan cycle and updates its
	// persisted signal. A grade C outcome yields a nil signal.
	Reanalyze(ctx context.Context, code string) (*entity.Signal, error)

	// SignalsByDate lists the persisted signals of one day.
	SignalsByDate(ctx context.Context, date time.Time) ([]*entity.Signal, error)

	// RecentRuns lists the most recent scan runs, completed and failed.
	RecentRuns(ctx context.Context, limit int) ([]*entity.ScanRun, error)

	// Status returns the scan state snapshot.
	Status() generator.ScanStatus

	// Reset forces the scan state back to idle.
	Reset()
}

type screenerService struct {
	cfg         *screenercfg.Config
	log         *logger.Logger
	generator   generator.SignalGenerator
	signalRepo  repository.SignalRepository
	scanRunRepo repository.ScanRunRepository
	resultCache repository.ResultCache
	notifier    telegram.Notifier
}

// NewScreenerService wires the scan pipeline with its persistence sinks.
// notifier may be nil.
func NewScreenerService(
	cfg *screenercfg.Config,
	log *logger.Logger,
	gen generator.SignalGenerator,
	signalRepo repository.SignalRepository,
	scanRunRepo repository.ScanRunRepository,
	resultCache repository.ResultCache,
	notifier telegram.Notifier,
) ScreenerService {
	return &screenerService{
		cfg:         cfg,
		log:         log,
		generator:   gen,
		signalRepo:  signalRepo,
		scanRunRepo: scanRunRepo,
		resultCache: resultCache,
		notifier:    notifier,
	}
}

func (s *screenerService) Scan(ctx context.Context) (*entity.ScreenerResult, error) {
	result, err := s.generator.RunScan(ctx, s.cfg.Screener.Markets)
	if err != nil {
		if !errors.Is(err, generator.ErrScanInProgress) {
			s.recordFailedRun(ctx, err)
		}
		return nil, err
	}

	s.persist(ctx, result)
	s.notify(result)
	return result, nil
}

// persist hands the completed result to each sink. Sink failures are logged
// and do not invalidate the scan itself.
func (s *screenerService) persist(ctx context.Context, result *entity.ScreenerResult) {
	if err := s.signalRepo.CreateBatch(ctx, result.Signals); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist signals", logger.ErrorField(err))
	}
	if err := s.scanRunRepo.Create(ctx, repository.NewScanRunFromResult(result)); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist scan run", logger.ErrorField(err))
	}
	if err := s.resultCache.Store(ctx, result); err != nil {
		s.log.ErrorContext(ctx, "Failed to cache scan result", logger.ErrorField(err))
	}
}

func (s *screenerService) recordFailedRun(ctx context.Context, scanErr error) {
	run := &entity.ScanRun{
		ScanDate:     utils.TimeNowKST(),
		State:        entity.ScanStateFailed,
		ErrorMessage: scanErr.Error(),
	}
	if err := s.scanRunRepo.Create(ctx, run); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist failed scan run", logger.ErrorField(err))
	}
}

func (s *screenerService) notify(result *entity.ScreenerResult) {
	if s.notifier == nil {
		return
	}
	utils.GoSafe(func() {
		for _, message := range telegram.FormatScreenerResult(result) {
			if err := s.notifier.SendMessage(message); err != nil {
				s.log.Error("Failed to send scan summary", logger.ErrorField(err))
				return
			}
		}
	})
}

func (s *screenerService) LatestResult(ctx context.Context) (*entity.ScreenerResult, error) {
	result, err := s.resultCache.Latest(ctx)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, repository.ErrNoCachedResult) {
		s.log.Warn("Result cache read failed, falling back to database", logger.ErrorField(err))
	}

	run, err := s.scanRunRepo.FindLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("no scan result available: %w", err)
	}
	return s.rebuildResult(ctx, run)
}

func (s *screenerService) ResultByDate(ctx context.Context, date time.Time) (*entity.ScreenerResult, error) {
	result, err := s.resultCache.ByDate(ctx, date)
	if err == nil {
		return result, nil
	}

	signals, dbErr := s.signalRepo.FindByDate(ctx, date)
	if dbErr != nil || len(signals) == 0 {
		return nil, fmt.Errorf("no scan result for %s", date.Format("2006-01-02"))
	}
	return resultFromSignals(date, signals), nil
}

func (s *screenerService) rebuildResult(ctx context.Context, run *entity.ScanRun) (*entity.ScreenerResult, error) {
	signals, err := s.signalRepo.FindByDate(ctx, run.ScanDate)
	if err != nil {
		return nil, fmt.Errorf("rebuild scan result: %w", err)
	}
	result := resultFromSignals(run.ScanDate, signals)
	result.TotalCandidates = run.TotalCandidates
	result.ProcessingTimeMS = run.ProcessingTimeMS
	return result, nil
}

func resultFromSignals(date time.Time, signals []*entity.Signal) *entity.ScreenerResult {
	byGrade := make(map[entity.Grade]int)
	byMarket := make(map[string]int)
	for _, signal := range signals {
		byGrade[signal.Grade]++
		byMarket[signal.Market]++
	}
	return &entity.ScreenerResult{
		Date:          date,
		FilteredCount: len(signals),
		Signals:       signals,
		ByGrade:       byGrade,
		ByMarket:      byMarket,
	}
}

func (s *screenerService) Reanalyze(ctx context.Context, code string) (*entity.Signal, error) {
	existing, err := s.signalRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("no prior signal for %s: %w", code, err)
	}

	signal, err := s.generator.AnalyzeOne(ctx, existing.Market, code, existing.StockName)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		// The stock no longer qualifies; the tracker will expire the old
		// signal on its own schedule.
		return nil, nil
	}

	signal.Sector = existing.Sector
	if err := s.signalRepo.CreateBatch(ctx, []*entity.Signal{signal}); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist reanalyzed signal",
			logger.ErrorField(err), logger.StringField("code", code))
	}
	return signal, nil
}

func (s *screenerService) SignalsByDate(ctx context.Context, date time.Time) ([]*entity.Signal, error) {
	return s.signalRepo.FindByDate(ctx, date)
}

func (s *screenerService) RecentRuns(ctx context.Context, limit int) ([]*entity.ScanRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.scanRunRepo.FindRecent(ctx, limit)
}

func (s *screenerService) Status() generator.ScanStatus { return s.generator.Status() }

func (s *screenerService) Reset() { s.generator.Reset() }
