// Package ingress hands landmark snapshots from the capture and inference loop to
// the tracking pipeline.
package ingress

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
)

// ErrAcquisitionTimeout reports that no snapshot arrived within the configured window.
var ErrAcquisitionTimeout = errors.New("acquisition timeout")

// Provider supplies the newest landmark snapshot. A false result means nothing new
// arrived before the timeout or the context ended; it is never an error.
type Provider interface {
	NextSnapshot(ctx context.Context, timeout time.Duration) (*detector.Snapshot, bool)
}

// Slot is a single-value handoff. Put replaces any snapshot that has not been taken
// yet, so a slow consumer always sees the newest one.
type Slot struct {
	mu      sync.Mutex
	snap    *detector.Snapshot
	notify  chan struct{}
	lastPut time.Time
	now     func() time.Time

	put        uint64
	taken      uint64
	superseded uint64

	timedOut bool
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Put stores a snapshot, replacing an unconsumed one.
func (s *Slot) Put(snap *detector.Snapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	if s.snap != nil {
		s.superseded++
	}
	s.snap = snap
	s.put++
	s.lastPut = s.now()
	if s.timedOut {
		s.timedOut = false
		log.Println("Landmark snapshots resumed")
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// NextSnapshot takes the pending snapshot, waiting up to timeout for one.
// A zero timeout never waits.
func (s *Slot) NextSnapshot(ctx context.Context, timeout time.Duration) (*detector.Snapshot, bool) {
	if snap, ok := s.take(); ok {
		return snap, true
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-s.notify:
			if snap, ok := s.take(); ok {
				return snap, true
			}
		case <-timer.C:
			return s.take()
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *Slot) take() (*detector.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, false
	}
	snap := s.snap
	s.snap = nil
	s.taken++
	return snap, true
}

// CheckTimeout returns ErrAcquisitionTimeout when the last snapshot is older than
// timeout. The first snapshot clock starts at the first call. The timeout is
// logged once per episode.
func (s *Slot) CheckTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.lastPut.IsZero() {
		s.lastPut = now
	}
	if now.Sub(s.lastPut) <= timeout {
		return nil
	}
	if !s.timedOut {
		s.timedOut = true
		log.Printf("No landmark snapshot for %v", now.Sub(s.lastPut).Round(time.Millisecond))
	}
	return ErrAcquisitionTimeout
}

// SlotStats counts slot traffic.
type SlotStats struct {
	Put        uint64        `json:"put"`
	Taken      uint64        `json:"taken"`
	Superseded uint64        `json:"superseded"`
	Age        time.Duration `json:"age"`
	TimedOut   bool          `json:"timed_out"`
}

// Stats returns the counters and the age of the last snapshot.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SlotStats{
		Put:        s.put,
		Taken:      s.taken,
		Superseded: s.superseded,
		TimedOut:   s.timedOut,
	}
	if !s.lastPut.IsZero() {
		st.Age = s.now().Sub(s.lastPut)
	}
	return st
}
