package generator

import (
	"errors"
	"sync"
	"time"

	"jongga-screener/internal/entity"
)

// ErrScanInProgress is returned when a scan start is attempted while
// another scan is running. The caller gets the rejection synchronously;
// requests are never queued.
var ErrScanInProgress = errors.New("scan already in progress")

// ScanStatus is the snapshot a status read returns.
type ScanStatus struct {
	State     entity.ScanState `json:"state"`
	Message   string           `json:"message,omitempty"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
}

// scanState guards the process-wide "is a scan running" flag. All reads and
// writes go through the mutex.
type scanState struct {
	mu        sync.Mutex
	state     entity.ScanState
	message   string
	startedAt *time.Time
}

func newScanState() *scanState {
	return &scanState{state: entity.ScanStateIdle}
}

// tryStart transitions Idle/Completed/Failed to Running, or rejects with
// ErrScanInProgress.
func (s *scanState) tryStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == entity.ScanStateRunning {
		return ErrScanInProgress
	}
	now := time.Now()
	s.state = entity.ScanStateRunning
	s.message = ""
	s.startedAt = &now
	return nil
}

// complete marks the running scan finished. A no-op after a forced reset,
// so an abandoned run cannot clobber a newer run's state.
func (s *scanState) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == entity.ScanStateRunning {
		s.state = entity.ScanStateCompleted
	}
}

func (s *scanState) fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == entity.ScanStateRunning {
		s.state = entity.ScanStateFailed
		s.message = message
	}
}

// reset forces the flag back to Idle without cancelling in-flight network
// calls of an abandoned scan.
func (s *scanState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = entity.ScanStateIdle
	s.message = ""
	s.startedAt = nil
}

func (s *scanState) status() ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScanStatus{State: s.state, Message: s.message, StartedAt: s.startedAt}
}
