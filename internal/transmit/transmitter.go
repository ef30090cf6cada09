package transmit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransmitFailure wraps errors from writing to the receiver.
var ErrTransmitFailure = errors.New("transmit failure")

// Conn is the write side of a connected UDP socket. *net.UDPConn satisfies it.
type Conn interface {
	Write(b []byte) (int, error)
	Close() error
}

// Endpoint is a receiver address.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Config configures the transmitter.
type Config struct {
	VMT Endpoint `yaml:"vmt"`
	// VMC mirrors tracker poses to a VMC receiver when enabled.
	VMC        Endpoint   `yaml:"vmc"`
	VMCEnabled bool       `yaml:"vmc_enabled"`
	Options    VMTOptions `yaml:"options"`
	// QueueSize bounds the frames waiting for the writer.
	QueueSize    int           `yaml:"queue_size"`
	LogInterval  time.Duration `yaml:"log_interval"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

// DefaultConfig returns the default transmitter settings.
func DefaultConfig() Config {
	return Config{
		VMT:          Endpoint{Host: "127.0.0.1", Port: 39570},
		VMC:          Endpoint{Host: "127.0.0.1", Port: 39539},
		Options:      VMTOptions{PinchButton: 1, TriggerIndex: 0},
		QueueSize:    8,
		LogInterval:  5 * time.Second,
		FlushTimeout: 500 * time.Millisecond,
	}
}

// Stats counts transmitter activity since start.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Retried uint64 `json:"retried"`
}

type packet struct {
	conn      Conn
	data      []byte
	retryable bool
}

// Transmitter queues frames from the pipeline and writes them from its own goroutine.
// Send never blocks; a full queue drops the frame.
type Transmitter struct {
	cfg   Config
	vmt   Conn
	vmc   Conn
	queue chan Frame
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	frames  atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
	retried atomic.Uint64

	errMu   sync.Mutex
	lastErr error

	// Writer goroutine only.
	pending     []packet
	errCount    int
	intervalErr error
}

// Dial opens UDP sockets to the configured receivers.
func Dial(cfg Config) (*Transmitter, error) {
	vmt, err := dialUDP(cfg.VMT)
	if err != nil {
		return nil, err
	}
	var vmc Conn
	if cfg.VMCEnabled {
		c, err := dialUDP(cfg.VMC)
		if err != nil {
			vmt.Close()
			return nil, err
		}
		vmc = c
	}
	return New(cfg, vmt, vmc), nil
}

func dialUDP(ep Endpoint) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", ep.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ep, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep, err)
	}
	return conn, nil
}

// New creates a transmitter over existing connections. vmc may be nil.
func New(cfg Config, vmt, vmc Conn) *Transmitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultConfig().LogInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}
	return &Transmitter{
		cfg:   cfg,
		vmt:   vmt,
		vmc:   vmc,
		queue: make(chan Frame, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the writer goroutine. It runs until Shutdown.
func (t *Transmitter) Start() {
	t.mu.Lock()
	if t.started || t.closed {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run()

	if t.vmc != nil {
		log.Printf("Transmitting to VMT at %s, mirroring to VMC at %s", t.cfg.VMT, t.cfg.VMC)
	} else {
		log.Printf("Transmitting to VMT at %s", t.cfg.VMT)
	}
}

func (t *Transmitter) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-t.queue:
			if !ok {
				t.logErrors()
				return
			}
			t.write(f)
		case <-ticker.C:
			t.logErrors()
		}
	}
}

// Send queues a frame without blocking. It returns false when the frame was dropped.
func (t *Transmitter) Send(f Frame) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.dropped.Add(1)
		return false
	}
	select {
	case t.queue <- f:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Shutdown queues the final frame, waits up to the flush timeout for the writer to
// drain, then closes the sockets. Frames sent after Shutdown are dropped.
func (t *Transmitter) Shutdown(final Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	if !started {
		close(t.queue)
		for f := range t.queue {
			t.write(f)
		}
		t.write(final)
		t.logErrors()
		return t.closeConns()
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FlushTimeout)
	defer cancel()

	var err error
	select {
	case t.queue <- final:
	case <-ctx.Done():
		t.dropped.Add(1)
		err = fmt.Errorf("%w: final frame not queued before deadline", ErrTransmitFailure)
	}
	close(t.queue)

	select {
	case <-t.done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("%w: flush did not finish before deadline", ErrTransmitFailure)
		}
	}

	if cerr := t.closeConns(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (t *Transmitter) closeConns() error {
	var errs []error
	if t.vmt != nil {
		errs = append(errs, t.vmt.Close())
	}
	if t.vmc != nil {
		errs = append(errs, t.vmc.Close())
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (t *Transmitter) Stats() Stats {
	return Stats{
		Frames:  t.frames.Load(),
		Sent:    t.sent.Load(),
		Failed:  t.failed.Load(),
		Dropped: t.dropped.Load(),
		Retried: t.retried.Load(),
	}
}

// LastError returns the most recent write error, or nil.
func (t *Transmitter) LastError() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.lastErr
}

// write sends any messages left over from the previous frame, then the frame.
// A retryable message that fails is kept for exactly one more attempt.
func (t *Transmitter) write(f Frame) {
	t.frames.Add(1)

	retry := t.pending
	t.pending = nil
	for _, p := range retry {
		t.retried.Add(1)
		t.writePacket(p)
	}

	for _, p := range t.encode(f) {
		if !t.writePacket(p) && p.retryable {
			t.pending = append(t.pending, p)
		}
	}
}

func (t *Transmitter) encode(f Frame) []packet {
	var out []packet
	add := func(conn Conn, msgs []Message) {
		for _, m := range msgs {
			data, err := m.Encode()
			if err != nil {
				t.recordError(fmt.Errorf("%w: encode %s: %v", ErrTransmitFailure, m.OSC.Address, err))
				continue
			}
			out = append(out, packet{conn: conn, data: data, retryable: m.Retryable})
		}
	}
	add(t.vmt, VMTMessages(f, t.cfg.Options))
	if t.vmc != nil {
		add(t.vmc, VMCMessages(f))
	}
	return out
}

func (t *Transmitter) writePacket(p packet) bool {
	if _, err := p.conn.Write(p.data); err != nil {
		t.recordError(fmt.Errorf("%w: %w", ErrTransmitFailure, err))
		return false
	}
	t.sent.Add(1)
	return true
}

func (t *Transmitter) recordError(err error) {
	t.failed.Add(1)
	t.errCount++
	t.intervalErr = err

	t.errMu.Lock()
	t.lastErr = err
	t.errMu.Unlock()
}

// logErrors reports the errors of the last interval in one line.
func (t *Transmitter) logErrors() {
	if t.errCount > 0 && t.intervalErr != nil {
		log.Printf("Failed to send %d OSC messages (latest: %v)", t.errCount, t.intervalErr)
		t.errCount = 0
		t.intervalErr = nil
	}
}
