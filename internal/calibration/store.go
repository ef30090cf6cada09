package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Persistence loads and saves the calibration profile.
// Load returns nil, nil when nothing has been saved yet.
type Persistence interface {
	Load() (*Profile, error)
	Save(Profile) error
}

// Store owns the current calibration profile. It is safe for concurrent use; readers
// and writers only hold the lock long enough to copy a Profile value.
type Store struct {
	// changing serializes changes with their notifications so listeners see
	// versions in order.
	changing  sync.Mutex
	mu        sync.RWMutex
	profile   Profile
	persist   Persistence
	handshake HandshakeConfig
	listeners []func(Profile)
	now       func() time.Time
}

// NewStore creates a store holding the default profile. persist may be nil.
func NewStore(persist Persistence, handshake HandshakeConfig) *Store {
	p := Default()
	p.ID = uuid.New().String()
	return &Store{
		profile:   p,
		persist:   persist,
		handshake: handshake,
		now:       time.Now,
	}
}

// Get returns the current profile. The returned value must be treated as read-only.
func (s *Store) Get() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Apply changes the profile incrementally. A zero delta is a no-op and returns the
// current profile unchanged.
func (s *Store) Apply(d Delta) (Profile, error) {
	if d.IsZero() {
		return s.Get(), nil
	}

	s.changing.Lock()
	defer s.changing.Unlock()

	s.mu.Lock()
	next := d.applyTo(s.profile)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Profile{}, err
	}
	next.Version = s.profile.Version + 1
	next.UpdatedAt = s.timestamp()
	s.profile = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
	return next, nil
}

// Set validates p and makes it the current profile.
func (s *Store) Set(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	next := p.Clone()
	if next.ID == "" {
		next.ID = uuid.New().String()
	}

	s.changing.Lock()
	defer s.changing.Unlock()

	s.mu.Lock()
	next.Version = s.profile.Version + 1
	next.UpdatedAt = s.timestamp()
	s.profile = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, next)
	return next, nil
}

// OnChange registers fn to be called with the new profile after every change.
// Listeners run on the goroutine that made the change, one change at a time and in
// version order. A listener must not change the store itself.
func (s *Store) OnChange(fn func(Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// HandshakeConfig returns the handshake parameters the store was created with.
func (s *Store) HandshakeConfig() HandshakeConfig {
	return s.handshake
}

// Load replaces the current profile with the persisted one, if any.
// Listeners are not notified.
func (s *Store) Load() error {
	if s.persist == nil {
		return nil
	}
	p, err := s.persist.Load()
	if err != nil {
		return fmt.Errorf("load calibration: %w", err)
	}
	if p == nil {
		return nil
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("load calibration: %w", err)
	}

	s.mu.Lock()
	s.profile = p.Clone()
	s.mu.Unlock()
	return nil
}

// Save persists the current profile.
func (s *Store) Save() error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(s.Get()); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Round(0)
}

func notify(listeners []func(Profile), p Profile) {
	for _, fn := range listeners {
		fn(p)
	}
}
