// Package status publishes immutable point-in-time views of the pipeline.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/filter"
	"github.com/ayusman/vtrack/internal/gesture"
	"github.com/ayusman/vtrack/internal/ingress"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/ayusman/vtrack/internal/transmit"
)

// Snapshot is the state of the pipeline after one tick. Snapshots are never
// modified after they are published.
type Snapshot struct {
	Seq                uint64              `json:"seq"`
	Time               time.Time           `json:"time"`
	Enabled            bool                `json:"enabled"`
	Calibrating        bool                `json:"calibrating"`
	Trackers           []filter.State      `json:"trackers"`
	Hands              [2]gesture.State    `json:"hands"`
	Profile            calibration.Profile `json:"profile"`
	Ingress            ingress.Health      `json:"ingress"`
	AcquisitionTimeout bool                `json:"acquisition_timeout"`
	Transmit           transmit.Stats      `json:"transmit"`
	Unmapped           []pose.Role         `json:"unmapped,omitempty"`
	LastError          string              `json:"last_error,omitempty"`
}

// Tracker returns the state of one role, if present.
func (s *Snapshot) Tracker(role pose.Role) (filter.State, bool) {
	for _, st := range s.Trackers {
		if st.Role == role {
			return st, true
		}
	}
	return filter.State{}, false
}

// ActiveCount returns the number of trackers currently sending poses.
func (s *Snapshot) ActiveCount() int {
	n := 0
	for _, st := range s.Trackers {
		if st.Status != filter.Lost {
			n++
		}
	}
	return n
}

// Publisher holds the latest snapshot and fans it out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the snapshot.
type Publisher struct {
	latest atomic.Pointer[Snapshot]

	mu     sync.Mutex
	subs   map[int]chan *Snapshot
	nextID int
	missed atomic.Uint64
}

// NewPublisher creates a publisher with no snapshot.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan *Snapshot)}
}

// Publish stores snap as the latest and offers it to every subscriber.
func (p *Publisher) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	p.latest.Store(snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			p.missed.Add(1)
		}
	}
}

// Latest returns the most recent snapshot, or nil before the first tick.
func (p *Publisher) Latest() *Snapshot {
	return p.latest.Load()
}

// Subscribe returns a channel of snapshots and a cancel func that closes it.
func (p *Publisher) Subscribe(buffer int) (<-chan *Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Snapshot, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Missed counts snapshots dropped for slow subscribers.
func (p *Publisher) Missed() uint64 {
	return p.missed.Load()
}
