package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/presence"
)

type persistCall struct {
	RobotID     string
	Electricity int
	Active      bool
}

// recordingStore is a TelemetryStore that records every call.
type recordingStore struct {
	mu    sync.Mutex
	calls []persistCall
	err   error
}

func (s *recordingStore) PersistTelemetry(_ context.Context, robotID string, electricity int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, persistCall{robotID, electricity, active})
	return s.err
}

func (s *recordingStore) Calls() []persistCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]persistCall(nil), s.calls...)
}

// blockingStore holds every PersistTelemetry call until release is closed.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *blockingStore) PersistTelemetry(ctx context.Context, _ string, _ int, _ bool) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeClock is a settable time source for the registry.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// testRobot is the robot end of a piped session.
type testRobot struct {
	conn    net.Conn
	session *Session
	done    chan error
}

// startRobot runs a Session over net.Pipe as if peer had connected.
func startRobot(t *testing.T, reg *presence.Registry, store TelemetryStore, peer string, cfg SessionConfig) *testRobot {
	t.Helper()

	serverEnd, robotEnd := net.Pipe()
	sess := NewSession(serverEnd, netip.MustParseAddr(peer), reg, store, cfg)
	r := &testRobot{
		conn:    robotEnd,
		session: sess,
		done:    make(chan error, 1),
	}
	go func() { r.done <- sess.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = robotEnd.Close()
		_ = sess.Close()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return r
}

// exchange writes payload and reads back the same number of bytes.
func (r *testRobot) exchange(t *testing.T, payload string) string {
	t.Helper()

	_ = r.conn.SetDeadline(time.Now().Add(2 * time.Second))
	defer func() { _ = r.conn.SetDeadline(time.Time{}) }()

	if _, err := r.conn.Write([]byte(payload)); err != nil {
		t.Fatalf("robot write: %v", err)
	}
	buf := make([]byte, len(payload))
	if _, err := io.ReadFull(r.conn, buf); err != nil {
		t.Fatalf("robot read: %v", err)
	}
	return string(buf)
}

// expectSilence fails if anything arrives on the robot connection within d.
func (r *testRobot) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()

	_ = r.conn.SetReadDeadline(time.Now().Add(d))
	defer func() { _ = r.conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 64)
	n, err := r.conn.Read(buf)
	if n > 0 {
		t.Fatalf("unexpected write to robot: %q", buf[:n])
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// waitDone waits for the session's Run to return.
func (r *testRobot) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		r.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}
