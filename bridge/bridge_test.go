// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/canlink-project/canlink/bridge"
	"github.com/canlink-project/canlink/canbus"
	"github.com/canlink-project/canlink/lib/clock"
	"github.com/canlink-project/canlink/lib/testutil"
	"github.com/canlink-project/canlink/wire"
)

// fakeConn is an in-memory net.Conn that records written bytes and can
// be scripted to fail after a number of successful writes.
type fakeConn struct {
	mu               sync.Mutex
	buf              bytes.Buffer
	writes           int
	writesBeforeFail int // -1 means never fail
	closed           bool
}

func newFakeConn(writesBeforeFail int) *fakeConn {
	return &fakeConn{writesBeforeFail: writesBeforeFail}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.writesBeforeFail >= 0 && c.writes >= c.writesBeforeFail {
		return 0, syscall.EPIPE
	}
	c.writes++
	return c.buf.Write(p)
}

func (c *fakeConn) Read(p []byte) (int, error) { return 0, net.ErrClosed }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func (c *fakeConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// fakeDialer hands out scripted connections in order, or fails every
// attempt if failAll is set.
type fakeDialer struct {
	mu       sync.Mutex
	conns    []net.Conn
	next     int
	failAll  bool
	attempts int
}

func (d *fakeDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failAll {
		return nil, syscall.ECONNREFUSED
	}
	if d.next >= len(d.conns) {
		return nil, syscall.ECONNREFUSED
	}
	conn := d.conns[d.next]
	d.next++
	return conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// waitFor polls until the condition holds or the test deadline hits.
func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startBridge runs the bridge in the background and returns a stop
// function that cancels it and waits for Run to return.
func startBridge(t *testing.T, b *bridge.Bridge) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "bridge shutdown"); err != nil {
			t.Errorf("Run returned %v on cancellation, want nil", err)
		}
	}
}

func mustBridge(t *testing.T, cfg bridge.Config) *bridge.Bridge {
	t.Helper()
	if cfg.ReceiveTimeout == 0 {
		cfg.ReceiveTimeout = time.Millisecond
	}
	b, err := bridge.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestForwardsFramesBackToBack(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	transport := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	frames := []canbus.Frame{
		canbus.MustFrame(0x123, []byte{0xAA, 0xBB}),
		canbus.MustFrame(0x7FF, nil),
		canbus.MustFrame(0x1FFFFFFF, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	for _, frame := range frames {
		if err := source.Send(frame); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	b := mustBridge(t, bridge.Config{Source: source, Conn: conn})
	stop := startBridge(t, b)
	waitFor(t, "3 forwarded frames", func() bool { return b.Stats().Forwarded == 3 })
	stop()

	// Exactly 3 wire messages, back-to-back, each matching the
	// documented layout.
	var want []byte
	for _, frame := range frames {
		encoded, err := wire.Encode(frame)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		want = append(want, encoded...)
	}
	if got := transport.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("transport bytes = % X, want % X", got, want)
	}
}

func TestTimeoutOnlySourceNeverSends(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	transport := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	b := mustBridge(t, bridge.Config{Source: source, Conn: conn})
	stop := startBridge(t, b)

	// Let the loop spin through a number of idle windows.
	waitFor(t, "first connect", func() bool { return b.Stats().Connects == 1 })
	time.Sleep(20 * time.Millisecond)
	if conn.State() != bridge.StateConnected {
		t.Fatalf("state = %v, want connected while idle", conn.State())
	}
	stop()

	if got := transport.Bytes(); len(got) != 0 {
		t.Fatalf("idle bus produced %d bytes on the wire", len(got))
	}
	stats := b.Stats()
	if stats.Forwarded != 0 || stats.Lost != 0 || stats.Dropped != 0 {
		t.Fatalf("idle stats = %+v", stats)
	}
}

func TestSendFailureLosesFrameAndReconnects(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	first := newFakeConn(1) // accepts 1 write, fails the 2nd
	second := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{first, second}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	frames := []canbus.Frame{
		canbus.MustFrame(0x10, []byte{1}),
		canbus.MustFrame(0x20, []byte{2}),
		canbus.MustFrame(0x30, []byte{3}),
	}
	for _, frame := range frames {
		if err := source.Send(frame); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	b := mustBridge(t, bridge.Config{
		Source: source,
		Conn:   conn,
		// Immediate reconnect so the test does not wait out a real
		// backoff; backoff timing is covered separately.
		BackoffMin: time.Nanosecond,
	})
	stop := startBridge(t, b)
	waitFor(t, "frame 3 after reconnect", func() bool {
		stats := b.Stats()
		return stats.Forwarded == 2 && stats.Lost == 1 && stats.Connects == 2
	})
	stop()

	// Frame 1 went over the first connection; frame 2 was lost and
	// never retried; frame 3 went over the second connection.
	wantFirst, _ := wire.Encode(frames[0])
	if got := first.Bytes(); !bytes.Equal(got, wantFirst) {
		t.Errorf("first connection bytes = % X, want % X", got, wantFirst)
	}
	wantSecond, _ := wire.Encode(frames[2])
	if got := second.Bytes(); !bytes.Equal(got, wantSecond) {
		t.Errorf("second connection bytes = % X, want % X", got, wantSecond)
	}
}

func TestOversizedFrameDroppedBeforeWire(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	transport := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	// A driver fault: length above 8. Then a valid frame to prove the
	// loop kept going.
	if err := source.InjectFrame(canbus.Frame{ID: 0x99, Len: 12}); err != nil {
		t.Fatalf("InjectFrame: %v", err)
	}
	valid := canbus.MustFrame(0x42, []byte{0xEE})
	if err := source.Send(valid); err != nil {
		t.Fatalf("Send: %v", err)
	}

	b := mustBridge(t, bridge.Config{Source: source, Conn: conn})
	stop := startBridge(t, b)
	waitFor(t, "drop and forward", func() bool {
		stats := b.Stats()
		return stats.Dropped == 1 && stats.Forwarded == 1
	})
	stop()

	want, _ := wire.Encode(valid)
	if got := transport.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("transport bytes = % X, want only the valid frame % X", got, want)
	}
}

func TestBusErrorDoesNotStopLoop(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	transport := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	if err := source.InjectError(errors.New("bus-off recovery in progress")); err != nil {
		t.Fatalf("InjectError: %v", err)
	}
	valid := canbus.MustFrame(0x55, []byte{0x01, 0x02})
	if err := source.Send(valid); err != nil {
		t.Fatalf("Send: %v", err)
	}

	b := mustBridge(t, bridge.Config{Source: source, Conn: conn})
	stop := startBridge(t, b)
	waitFor(t, "bus fault then forward", func() bool {
		stats := b.Stats()
		return stats.BusErrors == 1 && stats.Forwarded == 1
	})
	stop()

	// The bus fault did not touch the connection.
	if b.Stats().Connects != 1 {
		t.Errorf("Connects = %d, want 1", b.Stats().Connects)
	}
}

func TestReconnectBackoffFloorAndCeiling(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	dialer := &fakeDialer{failAll: true}
	conn := bridge.NewConn("collector:5000", dialer, nil)
	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	b := mustBridge(t, bridge.Config{
		Source: source,
		Conn:   conn,
		Clock:  fakeClock,
	})
	stop := startBridge(t, b)
	defer stop()

	// First attempt fails immediately; the loop parks on the 1s
	// backoff floor.
	fakeClock.WaitForTimers(1)
	if got := dialer.attemptCount(); got != 1 {
		t.Fatalf("attempts before any backoff elapsed = %d, want 1", got)
	}

	// 999ms is inside the floor: no retry yet.
	fakeClock.Advance(999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if got := dialer.attemptCount(); got != 1 {
		t.Fatalf("attempts after 999ms = %d, want 1 (floor is 1s)", got)
	}

	// Crossing the floor releases exactly one more attempt, and the
	// interval doubles each failure: 1s, 2s, 4s, 8s, 16s.
	fakeClock.Advance(1 * time.Millisecond)
	attempts := 2
	for _, interval := range []time.Duration{2, 4, 8, 16} {
		waitFor(t, "next attempt", func() bool { return dialer.attemptCount() == attempts })
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(interval * time.Second)
		attempts++
	}
	waitFor(t, "attempt 6", func() bool { return dialer.attemptCount() == 6 })

	// The next interval would be 32s unbounded; the ceiling caps it
	// at 30s.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(29 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := dialer.attemptCount(); got != 6 {
		t.Fatalf("attempts after 29s = %d, want 6 (ceiling is 30s)", got)
	}
	fakeClock.Advance(1 * time.Second)
	waitFor(t, "attempt 7 at the 30s ceiling", func() bool { return dialer.attemptCount() == 7 })
}

func TestLinkReadyGatesFirstConnect(t *testing.T) {
	source := canbus.NewQueue(8)
	defer source.Close()
	transport := newFakeConn(-1)
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)
	linkReady := make(chan struct{})

	b := mustBridge(t, bridge.Config{
		Source:    source,
		Conn:      conn,
		LinkReady: linkReady,
	})
	stop := startBridge(t, b)
	defer stop()

	time.Sleep(20 * time.Millisecond)
	if got := dialer.attemptCount(); got != 0 {
		t.Fatalf("dial attempted before link ready: %d attempts", got)
	}

	close(linkReady)
	waitFor(t, "connect after link ready", func() bool { return dialer.attemptCount() == 1 })
}

func TestSendWhileDisconnectedReturnsSendError(t *testing.T) {
	conn := bridge.NewConn("collector:5000", &fakeDialer{failAll: true}, nil)
	err := conn.Send(canbus.MustFrame(0x1, []byte{1}))
	var sendError *bridge.SendError
	if !errors.As(err, &sendError) {
		t.Fatalf("Send while disconnected = %v, want *SendError", err)
	}
	if !errors.Is(err, bridge.ErrNotConnected) {
		t.Fatalf("SendError should wrap ErrNotConnected, got %v", err)
	}
}

func TestConnStateTransitions(t *testing.T) {
	transport := newFakeConn(0) // every write fails
	dialer := &fakeDialer{conns: []net.Conn{transport}}
	conn := bridge.NewConn("collector:5000", dialer, nil)

	if conn.State() != bridge.StateDisconnected {
		t.Fatalf("initial state = %v, want disconnected", conn.State())
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.State() != bridge.StateConnected {
		t.Fatalf("state after Connect = %v, want connected", conn.State())
	}

	err := conn.Send(canbus.MustFrame(0x1, []byte{1}))
	var sendError *bridge.SendError
	if !errors.As(err, &sendError) {
		t.Fatalf("Send on broken transport = %v, want *SendError", err)
	}
	if conn.State() != bridge.StateDisconnected {
		t.Fatalf("state after send failure = %v, want disconnected", conn.State())
	}
}
