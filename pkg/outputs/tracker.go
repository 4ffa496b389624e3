// Package outputs tracks live execution output with bounded memory. Each
// tracked execution keeps a capped ring of output chunks; the tracker itself
// caps how many executions it tracks and sweeps finished ones after a
// retention window. Worst-case memory is O(records × chunks) no matter how
// much output flows through.
package outputs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of a tracked execution's output record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var (
	// ErrAlreadyTracked indicates Start was called twice for the same id.
	ErrAlreadyTracked = errors.New("execution already tracked")

	// ErrNotTracked indicates the id is unknown, possibly already evicted.
	ErrNotTracked = errors.New("execution not tracked")
)

// Chunk is one piece of captured output.
type Chunk struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// Record is a snapshot of one tracked execution's output.
type Record struct {
	ID          string     `json:"id"`
	Backend     string     `json:"backend"`
	StartedAt   time.Time  `json:"started_at"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Chunks      []Chunk    `json:"chunks"`
}

// Config bounds the tracker's memory.
type Config struct {
	MaxRecords int           // global cap on concurrently tracked executions
	MaxChunks  int           // per-record chunk ring size
	Retention  time.Duration // how long finished records stay visible
}

const (
	DefaultMaxRecords = 200
	DefaultMaxChunks  = 100
	DefaultRetention  = 5 * time.Minute
)

// Tracker is safe for concurrent use; HTTP handlers and executor goroutines
// all append through one instance.
type Tracker struct {
	mu         sync.Mutex
	records    map[string]*Record
	maxRecords int
	maxChunks  int
	retention  time.Duration
	now        func() time.Time
}

// NewTracker creates a tracker, applying defaults for unset bounds.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}

	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}

	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Tracker{
		records:    make(map[string]*Record),
		maxRecords: cfg.MaxRecords,
		maxChunks:  cfg.MaxChunks,
		retention:  cfg.Retention,
		now:        time.Now,
	}
}

// Start begins tracking output for an execution.
func (t *Tracker) Start(id, backend string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}

	t.records[id] = &Record{
		ID:        id,
		Backend:   backend,
		StartedAt: t.now().UTC(),
		Status:    StatusRunning,
		Chunks:    make([]Chunk, 0, t.maxChunks),
	}

	t.evictOverCapLocked()

	return nil
}

// Append adds an output chunk to a tracked execution. When the ring is full
// the oldest chunk is discarded first.
func (t *Tracker) Append(id, data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.records[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}

	if len(record.Chunks) >= t.maxChunks {
		copy(record.Chunks, record.Chunks[1:])
		record.Chunks = record.Chunks[:t.maxChunks-1]
	}

	record.Chunks = append(record.Chunks, Chunk{
		Timestamp: t.now().UTC(),
		Data:      data,
	})

	return nil
}

// Complete marks a tracked execution finished. The record stays visible until
// the retention sweep removes it.
func (t *Tracker) Complete(id string, success bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.records[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}

	completedAt := t.now().UTC()
	record.CompletedAt = &completedAt

	if success {
		record.Status = StatusCompleted
	} else {
		record.Status = StatusError
	}

	return nil
}

// Get returns a snapshot of one record.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.records[id]
	if !exists {
		return Record{}, false
	}

	return snapshot(record), true
}

// List returns snapshots of all tracked records, most recently started first.
func (t *Tracker) List() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Record, 0, len(t.records))
	for _, record := range t.records {
		result = append(result, snapshot(record))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	return result
}

// Sweep removes finished records whose completion is older than the retention
// window and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().UTC().Add(-t.retention)
	removed := 0

	for id, record := range t.records {
		if record.CompletedAt != nil && record.CompletedAt.Before(cutoff) {
			delete(t.records, id)

			removed++
		}
	}

	return removed
}

// StartSweeper runs the retention sweep periodically until the context is
// cancelled.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// evictOverCapLocked drops the earliest-started records until the global cap
// holds again. Caller must hold the mutex.
func (t *Tracker) evictOverCapLocked() {
	for len(t.records) > t.maxRecords {
		var (
			oldestID string
			oldestAt time.Time
		)

		for id, record := range t.records {
			if oldestID == "" || record.StartedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = record.StartedAt
			}
		}

		delete(t.records, oldestID)
	}
}

func snapshot(record *Record) Record {
	out := *record
	out.Chunks = make([]Chunk, len(record.Chunks))
	copy(out.Chunks, record.Chunks)

	if record.CompletedAt != nil {
		completedAt := *record.CompletedAt
		out.CompletedAt = &completedAt
	}

	return out
}
