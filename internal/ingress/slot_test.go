package ingress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(seq uint64) *detector.Snapshot {
	s := detector.NewSnapshot(time.Unix(1_700_000_000, 0))
	s.Seq = seq
	return s
}

func TestSlot_KeepsOnlyNewest(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	for i := uint64(1); i <= 5; i++ {
		slot.Put(snapshot(i))
	}

	got, ok := slot.NextSnapshot(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, uint64(5), got.Seq)

	_, ok = slot.NextSnapshot(context.Background(), 0)
	assert.False(t, ok, "a snapshot is handed out once")

	stats := slot.Stats()
	assert.Equal(t, uint64(5), stats.Put)
	assert.Equal(t, uint64(1), stats.Taken)
	assert.Equal(t, uint64(4), stats.Superseded)
}

func TestSlot_NextSnapshotWaits(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	go func() {
		time.Sleep(20 * time.Millisecond)
		slot.Put(snapshot(1))
	}()

	got, ok := slot.NextSnapshot(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Seq)
}

func TestSlot_NextSnapshotTimeout(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	start := time.Now()
	_, ok := slot.NextSnapshot(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSlot_NextSnapshotCancelled(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := slot.NextSnapshot(ctx, time.Minute)
	assert.False(t, ok)
}

func TestSlot_NilPutIgnored(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	slot.Put(nil)
	_, ok := slot.NextSnapshot(context.Background(), 0)
	assert.False(t, ok)
	assert.Zero(t, slot.Stats().Put)
}

func TestSlot_ConcurrentPutTake(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= n; i++ {
			slot.Put(snapshot(i))
		}
	}()

	var last uint64
	deadline := time.Now().Add(2 * time.Second)
	for last < n && time.Now().Before(deadline) {
		if s, ok := slot.NextSnapshot(context.Background(), 10*time.Millisecond); ok {
			require.Greater(t, s.Seq, last, "snapshots arrive in order")
			last = s.Seq
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(n), last)

	stats := slot.Stats()
	assert.Equal(t, stats.Put, stats.Taken+stats.Superseded)
}

func TestSlot_CheckTimeout(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	slot := NewSlot()
	slot.now = func() time.Time { return now }

	assert.NoError(t, slot.CheckTimeout(time.Second), "the clock starts at the first check")

	now = now.Add(1500 * time.Millisecond)
	assert.ErrorIs(t, slot.CheckTimeout(time.Second), ErrAcquisitionTimeout)
	assert.True(t, slot.Stats().TimedOut)

	slot.Put(snapshot(1))
	assert.NoError(t, slot.CheckTimeout(time.Second))
	assert.False(t, slot.Stats().TimedOut)

	assert.NoError(t, slot.CheckTimeout(0), "a zero timeout disables the check")
}
