package transmit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// fakeConn records writes. The first failNext writes fail; failAll fails every write.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	failNext int
	failAll  bool
	closed   bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll || c.failNext > 0 {
		if c.failNext > 0 {
			c.failNext--
		}
		return 0, errors.New("connection refused")
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []*osc.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*osc.Message, 0, len(c.writes))
	for _, w := range c.writes {
		out = append(out, parse(t, w))
	}
	return out
}

func parse(t *testing.T, data []byte) *osc.Message {
	t.Helper()
	pkt, err := osc.ParsePacket(string(data))
	require.NoError(t, err)
	msg, ok := pkt.(*osc.Message)
	require.True(t, ok, "expected an OSC message, got %T", pkt)
	return msg
}

func decode(t *testing.T, m Message) *osc.Message {
	t.Helper()
	data, err := m.Encode()
	require.NoError(t, err)
	return parse(t, data)
}

func sampleFrame() Frame {
	return Frame{
		Seq:     7,
		Elapsed: 1500 * time.Millisecond,
		Trackers: []TrackerUpdate{
			{
				Index:   3,
				Role:    pose.Waist,
				Pose:    pose.Pose{Position: r3.Vec{X: 0.1, Y: 1.0, Z: -0.2}, Orientation: pose.Identity},
				Enabled: true,
			},
			{Index: 4, Role: pose.LeftFoot, Pose: pose.Pose{Orientation: pose.Identity}},
		},
		Hands: []HandUpdate{
			{Index: 2, Side: detector.Right, Pressed: true, Trigger: 0.75, Changed: true},
		},
	}
}

func TestVMTMessages(t *testing.T) {
	t.Parallel()

	msgs := VMTMessages(sampleFrame(), DefaultConfig().Options)
	require.Len(t, msgs, 4)

	t.Run("room pose layout", func(t *testing.T) {
		m := decode(t, msgs[0])
		assert.Equal(t, AddrVMTRoom, m.Address)
		assert.Equal(t, []interface{}{
			int32(3), int32(1), float32(0),
			float32(0.1), float32(1.0), float32(-0.2),
			float32(0), float32(0), float32(0), float32(1),
		}, m.Arguments)
		assert.False(t, msgs[0].Retryable)
	})

	t.Run("inactive tracker", func(t *testing.T) {
		m := decode(t, msgs[1])
		assert.Equal(t, AddrVMTRoom, m.Address)
		assert.Equal(t, int32(4), m.Arguments[0])
		assert.Equal(t, int32(0), m.Arguments[1])
		assert.True(t, msgs[1].Retryable)
	})

	t.Run("button and trigger", func(t *testing.T) {
		button := decode(t, msgs[2])
		assert.Equal(t, AddrVMTButton, button.Address)
		assert.Equal(t, []interface{}{int32(2), int32(1), float32(0), int32(1)}, button.Arguments)
		assert.True(t, msgs[2].Retryable)

		trigger := decode(t, msgs[3])
		assert.Equal(t, AddrVMTTrigger, trigger.Address)
		assert.Equal(t, []interface{}{int32(2), int32(0), float32(0), float32(0.75)}, trigger.Arguments)
		assert.False(t, msgs[3].Retryable)
	})
}

func TestVMTMessages_HandsAsControllers(t *testing.T) {
	t.Parallel()

	f := Frame{Trackers: []TrackerUpdate{
		{Index: 1, Role: pose.LeftHand, Pose: pose.Pose{Orientation: pose.Identity}, Enabled: true},
		{Index: 2, Role: pose.RightHand, Pose: pose.Pose{Orientation: pose.Identity}, Enabled: true},
		{Index: 3, Role: pose.Waist, Pose: pose.Pose{Orientation: pose.Identity}, Enabled: true},
	}}

	msgs := VMTMessages(f, VMTOptions{HandsAsControllers: true})
	require.Len(t, msgs, 3)
	assert.Equal(t, int32(2), decode(t, msgs[0]).Arguments[1])
	assert.Equal(t, int32(3), decode(t, msgs[1]).Arguments[1])
	assert.Equal(t, int32(1), decode(t, msgs[2]).Arguments[1])
}

func TestVMCMessages(t *testing.T) {
	t.Parallel()

	msgs := VMCMessages(sampleFrame())
	require.Len(t, msgs, 3, "disabled trackers are skipped")

	tracker := decode(t, msgs[0])
	assert.Equal(t, AddrVMCTracker, tracker.Address)
	assert.Equal(t, "vtrack_waist", tracker.Arguments[0])
	assert.Equal(t, float32(1.0), tracker.Arguments[2])

	clock := decode(t, msgs[1])
	assert.Equal(t, AddrVMCTime, clock.Address)
	assert.Equal(t, []interface{}{float32(1.5)}, clock.Arguments)

	ok := decode(t, msgs[2])
	assert.Equal(t, AddrVMCOK, ok.Address)
}

func TestReleaseFrame(t *testing.T) {
	t.Parallel()

	f := ReleaseFrame(9,
		map[pose.Role]int{pose.Waist: 3, pose.Head: 0},
		map[detector.Side]int{detector.Left: 1, detector.Right: 2},
	)

	require.Len(t, f.Trackers, 2)
	assert.Equal(t, pose.Head, f.Trackers[0].Role)
	for _, u := range f.Trackers {
		assert.False(t, u.Enabled)
	}
	require.Len(t, f.Hands, 2)
	for _, h := range f.Hands {
		assert.False(t, h.Pressed)
		assert.True(t, h.Changed)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FlushTimeout = time.Second
	return cfg
}

func TestTransmitter_SendAndShutdown(t *testing.T) {
	t.Parallel()

	vmt := &fakeConn{}
	vmc := &fakeConn{}
	tx := New(testConfig(), vmt, vmc)
	tx.Start()

	require.True(t, tx.Send(sampleFrame()))

	final := ReleaseFrame(8, map[pose.Role]int{pose.Waist: 3}, nil)
	require.NoError(t, tx.Shutdown(final))

	msgs := vmt.messages(t)
	require.Len(t, msgs, 5)
	last := msgs[4]
	assert.Equal(t, AddrVMTRoom, last.Address)
	assert.Equal(t, int32(0), last.Arguments[1], "final frame deactivates")

	assert.Len(t, vmc.messages(t), 3+2)
	assert.True(t, vmt.closed)
	assert.True(t, vmc.closed)

	stats := tx.Stats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(10), stats.Sent)
	assert.Zero(t, stats.Failed)

	assert.False(t, tx.Send(sampleFrame()), "send after shutdown is dropped")
	assert.NoError(t, tx.Shutdown(final), "second shutdown is a no-op")
}

func TestTransmitter_FailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	vmt := &fakeConn{failAll: true}
	tx := New(testConfig(), vmt, nil)
	tx.Start()

	deadline := time.Now().Add(time.Second)
	for i := 0; i < 50; i++ {
		tx.Send(sampleFrame())
	}
	assert.True(t, time.Now().Before(deadline), "Send must not block on a failing receiver")

	require.NoError(t, tx.Shutdown(Frame{}))

	stats := tx.Stats()
	assert.NotZero(t, stats.Failed)
	assert.Zero(t, stats.Sent)
	assert.ErrorIs(t, tx.LastError(), ErrTransmitFailure)
}

func TestTransmitter_RetryOnce(t *testing.T) {
	t.Parallel()

	t.Run("failed deactivation is resent with the next frame", func(t *testing.T) {
		t.Parallel()
		vmt := &fakeConn{failNext: 1}
		tx := New(testConfig(), vmt, nil)

		inactive := Frame{Trackers: []TrackerUpdate{{Index: 4, Role: pose.LeftFoot, Pose: pose.Pose{Orientation: pose.Identity}}}}
		require.True(t, tx.Send(inactive))
		require.NoError(t, tx.Shutdown(Frame{}))

		msgs := vmt.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, int32(4), msgs[0].Arguments[0])
		assert.Equal(t, int32(0), msgs[0].Arguments[1])
		assert.Equal(t, uint64(1), tx.Stats().Retried)
	})

	t.Run("pose updates are not retried", func(t *testing.T) {
		t.Parallel()
		vmt := &fakeConn{failNext: 1}
		tx := New(testConfig(), vmt, nil)

		active := Frame{Trackers: []TrackerUpdate{{Index: 3, Role: pose.Waist, Pose: pose.Pose{Orientation: pose.Identity}, Enabled: true}}}
		require.True(t, tx.Send(active))
		require.NoError(t, tx.Shutdown(Frame{}))

		assert.Empty(t, vmt.messages(t))
		assert.Zero(t, tx.Stats().Retried)
	})

	t.Run("retry is bounded", func(t *testing.T) {
		t.Parallel()
		vmt := &fakeConn{failAll: true}
		tx := New(testConfig(), vmt, nil)

		inactive := Frame{Trackers: []TrackerUpdate{{Index: 4, Role: pose.LeftFoot, Pose: pose.Pose{Orientation: pose.Identity}}}}
		for i := 0; i < 3; i++ {
			require.True(t, tx.Send(inactive))
		}
		require.NoError(t, tx.Shutdown(Frame{}))

		// Each of the three deactivations is retried exactly once.
		assert.Equal(t, uint64(3), tx.Stats().Retried)
		assert.Equal(t, uint64(6), tx.Stats().Failed)
	})
}

func TestTransmitter_QueueFullDrops(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QueueSize = 1
	vmt := &fakeConn{}
	tx := New(cfg, vmt, nil)

	assert.True(t, tx.Send(sampleFrame()))
	assert.False(t, tx.Send(sampleFrame()))
	assert.Equal(t, uint64(1), tx.Stats().Dropped)

	require.NoError(t, tx.Shutdown(Frame{}))
	assert.Len(t, vmt.messages(t), 4)
}

func TestEndpoint_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "127.0.0.1:39570", DefaultConfig().VMT.String())
}
