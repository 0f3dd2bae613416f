package service

import (
	"context"
	"fmt"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/internal/screener/collector"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/repository"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/telegram"
	"jongga-screener/pkg/utils"
)

// TrackerService walks the open signals once per cycle, refreshes their
// prices and applies the exit rules: stop loss, take profit and time exit.
type TrackerService interface {
	Track(ctx context.Context) error
}

type trackerService struct {
	cfg        *screenercfg.Config
	log        *logger.Logger
	collectors collector.Registry
	signalRepo repository.SignalRepository
	notifier   telegram.Notifier
}

// NewTrackerService creates the signal lifecycle tracker. notifier may be nil.
func NewTrackerService(
	cfg *screenercfg.Config,
	log *logger.Logger,
	collectors collector.Registry,
	signalRepo repository.SignalRepository,
	notifier telegram.Notifier,
) TrackerService {
	return &trackerService{
		cfg:        cfg,
		log:        log,
		collectors: collectors,
		signalRepo: signalRepo,
		notifier:   notifier,
	}
}

func (t *trackerService) Track(ctx context.Context) error {
	signals, err := t.signalRepo.FindByStatus(ctx, entity.SignalStatusPending, entity.SignalStatusActive)
	if err != nil {
		return fmt.Errorf("load open signals: %w", err)
	}

	var closed int
	for _, signal := range signals {
		if !utils.ShouldContinue(ctx) {
			break
		}
		if t.trackOne(ctx, signal) {
			closed++
		}
	}

	cutoff := utils.TimeNowKST().AddDate(0, 0, -t.cfg.Screener.SignalExpiryDays)
	expired, err := t.signalRepo.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to expire stale signals", logger.ErrorField(err))
	}

	t.log.InfoContext(ctx, "Signal tracking cycle finished",
		logger.IntField("open", len(signals)),
		logger.IntField("closed", closed),
		logger.Field("expired", expired))
	return nil
}

// trackOne refreshes one signal and reports whether it was closed. Fetch
// failures leave the signal untouched for the next cycle.
func (t *trackerService) trackOne(ctx context.Context, signal *entity.Signal) bool {
	col, ok := t.collectors.ForMarket(signal.Market)
	if !ok {
		return false
	}

	bars, err := col.GetPriceHistory(ctx, signal.StockCode, 5)
	if err != nil || len(bars) == 0 {
		t.log.Warn("No fresh price for open signal",
			logger.StringField("code", signal.StockCode))
		return false
	}
	current := bars[len(bars)-1].Close
	if current <= 0 || signal.Plan.EntryPrice <= 0 {
		return false
	}
	returnPct := (current - signal.Plan.EntryPrice) / signal.Plan.EntryPrice * 100

	status := signal.Status
	exitReason := ""
	switch {
	case current <= signal.Plan.StopPrice:
		status = entity.SignalStatusClosed
		exitReason = "stop loss hit"
	case current >= signal.Plan.TargetPrice:
		status = entity.SignalStatusClosed
		exitReason = "target reached"
	case signal.Status == entity.SignalStatusPending && t.sessionAfterSignal(signal, bars[len(bars)-1].Date):
		status = entity.SignalStatusActive
	}

	if err := t.signalRepo.UpdateStatus(ctx, signal.ID, status, exitReason, current, returnPct); err != nil {
		t.log.ErrorContext(ctx, "Failed to update signal",
			logger.ErrorField(err), logger.StringField("code", signal.StockCode))
		return false
	}

	if status == entity.SignalStatusClosed {
		t.log.InfoContext(ctx, "Signal closed",
			logger.StringField("code", signal.StockCode),
			logger.StringField("reason", exitReason),
			logger.Float64Field("return_pct", returnPct))
		t.notifyExit(signal, exitReason, current, returnPct)
		return true
	}
	return false
}

// sessionAfterSignal reports whether the latest bar belongs to a trading day
// after the signal day, meaning the entry window has opened. The boundary is
// midnight in the signal's own timezone.
func (t *trackerService) sessionAfterSignal(signal *entity.Signal, barDate time.Time) bool {
	nextDay := utils.StartOfDay(signal.SignalDate).AddDate(0, 0, 1)
	return !barDate.Before(nextDay)
}

func (t *trackerService) notifyExit(signal *entity.Signal, reason string, current, returnPct float64) {
	if t.notifier == nil {
		return
	}
	message := fmt.Sprintf("🔚 *%s* (%s) %s\n현재가 %.0f · 수익률 %+.2f%%",
		signal.StockName, signal.StockCode, reason, current, returnPct)
	utils.GoSafe(func() {
		if err := t.notifier.SendMessage(message); err != nil {
			t.log.Error("Failed to send exit notification", logger.ErrorField(err))
		}
	})
}
