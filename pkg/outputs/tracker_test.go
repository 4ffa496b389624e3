package outputs

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := NewTracker(Config{})

	require.NoError(t, tracker.Start("exec-1", "shell"))
	require.NoError(t, tracker.Append("exec-1", "line one"))
	require.NoError(t, tracker.Append("exec-1", "line two"))
	require.NoError(t, tracker.Complete("exec-1", true))

	record, ok := tracker.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, "shell", record.Backend)
	assert.Equal(t, StatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
	require.Len(t, record.Chunks, 2)
	assert.Equal(t, "line one", record.Chunks[0].Data)
}

func TestTrackerFailureStatus(t *testing.T) {
	tracker := NewTracker(Config{})

	require.NoError(t, tracker.Start("exec-1", ""))
	require.NoError(t, tracker.Complete("exec-1", false))

	record, ok := tracker.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, StatusError, record.Status)
}

func TestTrackerDuplicateStart(t *testing.T) {
	tracker := NewTracker(Config{})

	require.NoError(t, tracker.Start("exec-1", ""))

	err := tracker.Start("exec-1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyTracked))
}

func TestTrackerUnknownID(t *testing.T) {
	tracker := NewTracker(Config{})

	assert.True(t, errors.Is(tracker.Append("ghost", "data"), ErrNotTracked))
	assert.True(t, errors.Is(tracker.Complete("ghost", true), ErrNotTracked))

	_, ok := tracker.Get("ghost")
	assert.False(t, ok)
}

func TestTrackerChunkRingDropsOldest(t *testing.T) {
	tracker := NewTracker(Config{MaxChunks: 3})

	require.NoError(t, tracker.Start("exec-1", ""))

	for i := 1; i <= 5; i++ {
		require.NoError(t, tracker.Append("exec-1", fmt.Sprintf("chunk-%d", i)))
	}

	record, ok := tracker.Get("exec-1")
	require.True(t, ok)
	require.Len(t, record.Chunks, 3)
	assert.Equal(t, "chunk-3", record.Chunks[0].Data)
	assert.Equal(t, "chunk-5", record.Chunks[2].Data)
}

func TestTrackerGlobalCapEvictsEarliestStarted(t *testing.T) {
	tracker := NewTracker(Config{MaxRecords: 2})

	current := time.Now()
	tracker.now = func() time.Time {
		current = current.Add(time.Second)

		return current
	}

	require.NoError(t, tracker.Start("first", ""))
	require.NoError(t, tracker.Start("second", ""))
	require.NoError(t, tracker.Start("third", ""))

	_, ok := tracker.Get("first")
	assert.False(t, ok, "earliest-started record should be evicted")

	_, ok = tracker.Get("second")
	assert.True(t, ok)

	_, ok = tracker.Get("third")
	assert.True(t, ok)
}

func TestTrackerSweepRemovesExpiredFinishedRecords(t *testing.T) {
	tracker := NewTracker(Config{Retention: time.Minute})

	base := time.Now()
	tracker.now = func() time.Time { return base }

	require.NoError(t, tracker.Start("finished", ""))
	require.NoError(t, tracker.Start("running", ""))
	require.NoError(t, tracker.Complete("finished", true))

	// Nothing is old enough yet.
	assert.Zero(t, tracker.Sweep())

	tracker.now = func() time.Time { return base.Add(2 * time.Minute) }

	assert.Equal(t, 1, tracker.Sweep())

	_, ok := tracker.Get("finished")
	assert.False(t, ok)

	// Unfinished records survive regardless of age.
	_, ok = tracker.Get("running")
	assert.True(t, ok)
}

func TestTrackerListSortsNewestFirst(t *testing.T) {
	tracker := NewTracker(Config{})

	current := time.Now()
	tracker.now = func() time.Time {
		current = current.Add(time.Second)

		return current
	}

	require.NoError(t, tracker.Start("older", ""))
	require.NoError(t, tracker.Start("newer", ""))

	records := tracker.List()
	require.Len(t, records, 2)
	assert.Equal(t, "newer", records[0].ID)
	assert.Equal(t, "older", records[1].ID)
}

func TestTrackerSnapshotsAreIsolated(t *testing.T) {
	tracker := NewTracker(Config{})

	require.NoError(t, tracker.Start("exec-1", ""))
	require.NoError(t, tracker.Append("exec-1", "original"))

	record, ok := tracker.Get("exec-1")
	require.True(t, ok)

	record.Chunks[0].Data = "mutated"

	fresh, ok := tracker.Get("exec-1")
	require.True(t, ok)
	assert.Equal(t, "original", fresh.Chunks[0].Data)
}

func TestTrackerConcurrentAppends(t *testing.T) {
	tracker := NewTracker(Config{MaxChunks: 50})

	require.NoError(t, tracker.Start("exec-1", ""))

	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_ = tracker.Append("exec-1", fmt.Sprintf("chunk-%d", n))
		}(i)
	}

	wg.Wait()

	record, ok := tracker.Get("exec-1")
	require.True(t, ok)
	assert.Len(t, record.Chunks, 50)
}
