package repository

import (
	"context"
	"encoding/json"

	"jongga-screener/internal/entity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScanRunRepository persists the per-cycle audit record.
type ScanRunRepository interface {
	Create(ctx context.Context, run *entity.ScanRun) error
	FindLatest(ctx context.Context) (*entity.ScanRun, error)
	FindRecent(ctx context.Context, limit int) ([]*entity.ScanRun, error)
}

type scanRunRepository struct {
	db *gorm.DB
}

// NewScanRunRepository creates a new ScanRunRepository backed by PostgreSQL.
func NewScanRunRepository(db *gorm.DB) ScanRunRepository {
	return &scanRunRepository{db: db}
}

func (r *scanRunRepository) Create(ctx context.Context, run *entity.ScanRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *scanRunRepository) FindLatest(ctx context.Context) (*entity.ScanRun, error) {
	var run entity.ScanRun
	err := r.db.WithContext(ctx).Order("scan_date DESC").First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *scanRunRepository) FindRecent(ctx context.Context, limit int) ([]*entity.ScanRun, error) {
	var runs []*entity.ScanRun
	err := r.db.WithContext(ctx).Order("scan_date DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// NewScanRunFromResult builds the persisted record for a completed scan.
func NewScanRunFromResult(result *entity.ScreenerResult) *entity.ScanRun {
	byGrade, _ := json.Marshal(result.ByGrade)
	byMarket, _ := json.Marshal(result.ByMarket)
	return &entity.ScanRun{
		ScanDate:         result.Date,
		State:            entity.ScanStateCompleted,
		TotalCandidates:  result.TotalCandidates,
		FilteredCount:    result.FilteredCount,
		ByGrade:          datatypes.JSON(byGrade),
		ByMarket:         datatypes.JSON(byMarket),
		ProcessingTimeMS: result.ProcessingTimeMS,
	}
}
