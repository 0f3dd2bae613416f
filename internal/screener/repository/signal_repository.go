package repository

import (
	"context"
	"time"

	"jongga-screener/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalRepository persists and queries generated signals.
type SignalRepository interface {
	CreateBatch(ctx context.Context, signals []*entity.Signal) error
	FindByDate(ctx context.Context, date time.Time) ([]*entity.Signal, error)
	FindByCode(ctx context.Context, code string) (*entity.Signal, error)
	FindByStatus(ctx context.Context, statuses ...entity.SignalStatus) ([]*entity.Signal, error)
	UpdateStatus(ctx context.Context, id int64, status entity.SignalStatus, exitReason string, currentPrice, returnPct float64) error
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type signalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new SignalRepository backed by PostgreSQL.
func NewSignalRepository(db *gorm.DB) SignalRepository {
	return &signalRepository{db: db}
}

// CreateBatch inserts one scan's signals. Re-running a scan on the same day
// for the same stock updates the existing row instead of duplicating it.
func (r *signalRepository) CreateBatch(ctx context.Context, signals []*entity.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stock_code"}, {Name: "signal_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"grade", "score", "checklist", "plan", "news",
			"current_price", "return_pct", "trading_value", "change_pct",
			"status", "updated_at",
		}),
	}).Create(signals).Error
}

func (r *signalRepository) FindByDate(ctx context.Context, date time.Time) ([]*entity.Signal, error) {
	var signals []*entity.Signal
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	err := r.db.WithContext(ctx).
		Where("signal_date >= ? AND signal_date < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Order("created_at DESC").
		Find(&signals).Error
	return signals, err
}

// FindByCode returns the most recent signal for a stock.
func (r *signalRepository) FindByCode(ctx context.Context, code string) (*entity.Signal, error) {
	var signal entity.Signal
	err := r.db.WithContext(ctx).
		Where("stock_code = ?", code).
		Order("signal_date DESC").
		First(&signal).Error
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *signalRepository) FindByStatus(ctx context.Context, statuses ...entity.SignalStatus) ([]*entity.Signal, error) {
	var signals []*entity.Signal
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("signal_date ASC").
		Find(&signals).Error
	return signals, err
}

func (r *signalRepository) UpdateStatus(ctx context.Context, id int64, status entity.SignalStatus, exitReason string, currentPrice, returnPct float64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Signal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"exit_reason":   exitReason,
			"current_price": currentPrice,
			"return_pct":    returnPct,
			"updated_at":    time.Now(),
		}).Error
}

// ExpireOlderThan marks stale pending/active signals expired and returns the
// number of rows touched.
func (r *signalRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Signal{}).
		Where("signal_date < ? AND status IN ?", cutoff,
			[]entity.SignalStatus{entity.SignalStatusPending, entity.SignalStatusActive}).
		Updates(map[string]interface{}{
			"status":      entity.SignalStatusExpired,
			"exit_reason": "holding period elapsed",
			"updated_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}
