package dto

import (
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/internal/screener/generator"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScanResponse wraps one scan result.
type ScanResponse struct {
	Result *entity.ScreenerResult `json:"result"`
}

// StatusResponse reports the scan state machine.
type StatusResponse struct {
	Status generator.ScanStatus `json:"status"`
}

// SignalsResponse lists signals for one day.
type SignalsResponse struct {
	Date    string           `json:"date"`
	Count   int              `json:"count"`
	Signals []*entity.Signal `json:"signals"`
}

// RunsResponse lists recent scan runs.
type RunsResponse struct {
	Count int               `json:"count"`
	Runs  []*entity.ScanRun `json:"runs"`
}

// ReanalyzeResponse wraps a single refreshed signal. Signal is null when the
// stock no longer qualifies.
type ReanalyzeResponse struct {
	Code      string         `json:"code"`
	Qualified bool           `json:"qualified"`
	Signal    *entity.Signal `json:"signal,omitempty"`
}

// ParseDateParam parses a yyyy-mm-dd query value, defaulting to now.
func ParseDateParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}
