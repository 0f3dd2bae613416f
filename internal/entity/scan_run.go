package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ScanState is the lifecycle state of a scan run.
type ScanState string

const (
	ScanStateIdle      ScanState = "idle"
	ScanStateRunning   ScanState = "running"
	ScanStateCompleted ScanState = "completed"
	ScanStateFailed    ScanState = "failed"
)

// ScreenerResult is the in-memory aggregate a completed scan hands to the
// persistence sink: ranked signals plus run-level counters.
type ScreenerResult struct {
	Date             time.Time      `json:"date"`
	TotalCandidates  int            `json:"total_candidates"`
	FilteredCount    int            `json:"filtered_count"`
	Signals          []*Signal      `json:"signals"`
	ByGrade          map[Grade]int  `json:"by_grade"`
	ByMarket         map[string]int `json:"by_market"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
}

// ScanRun is the persisted record of one scan cycle, completed or failed.
type ScanRun struct {
	ID               int64          `json:"id"`
	ScanDate         time.Time      `json:"scan_date"`
	State            ScanState      `json:"state"`
	TotalCandidates  int            `json:"total_candidates"`
	FilteredCount    int            `json:"filtered_count"`
	ByGrade          datatypes.JSON `json:"by_grade" gorm:"type:jsonb"`
	ByMarket         datatypes.JSON `json:"by_market" gorm:"type:jsonb"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (ScanRun) TableName() string {
	return "scan_runs"
}
