package scheduler

import (
	"context"
	"time"

	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/service"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the daily scan and the signal tracking cycle on cron
// schedules. Both specs are optional; an empty spec disables the job.
type Scheduler struct {
	cfg      *screenercfg.Config
	log      *logger.Logger
	screener service.ScreenerService
	tracker  service.TrackerService
	cron     *cron.Cron
}

// New creates the scheduler in the exchange's timezone.
func New(cfg *screenercfg.Config, log *logger.Logger, screener service.ScreenerService, tracker service.TrackerService) *Scheduler {
	location, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		location = time.UTC
	}
	return &Scheduler{
		cfg:      cfg,
		log:      log,
		screener: screener,
		tracker:  tracker,
		cron:     cron.New(cron.WithLocation(location)),
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if spec := s.cfg.Screener.CronSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.runScan(ctx) }); err != nil {
			return err
		}
		s.log.Info("Scheduled scan job", logger.StringField("spec", spec))
	}
	if spec := s.cfg.Screener.TrackerCronSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.runTracker(ctx) }); err != nil {
			return err
		}
		s.log.Info("Scheduled tracker job", logger.StringField("spec", spec))
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) runScan(ctx context.Context) {
	utils.GoSafe(func() {
		if _, err := s.screener.Scan(ctx); err != nil {
			s.log.ErrorContext(ctx, "Scheduled scan failed", logger.ErrorField(err))
		}
	})
}

func (s *Scheduler) runTracker(ctx context.Context) {
	utils.GoSafe(func() {
		if err := s.tracker.Track(ctx); err != nil {
			s.log.ErrorContext(ctx, "Scheduled tracking cycle failed", logger.ErrorField(err))
		}
	})
}
