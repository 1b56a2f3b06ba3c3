package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/presence"
)

const frameR1 = `{"robot_id":"R1","electricity":"87","activate":"true"}`

func TestSession_ValidFrameUpdatesRegistryAndStore(t *testing.T) {
	reg := presence.NewRegistry()
	store := &recordingStore{}
	robot := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})

	if echo := robot.exchange(t, frameR1); echo != frameR1 {
		t.Errorf("echo = %q, want %q", echo, frameR1)
	}

	addr, ok := reg.ResolveAddress("R1")
	if !ok || addr != netip.MustParseAddr("10.0.0.5") {
		t.Errorf("ResolveAddress(R1) = %v, %v; want 10.0.0.5", addr, ok)
	}
	if h, ok := reg.ResolveSession("R1"); !ok || h.ID() != robot.session.ID() {
		t.Errorf("ResolveSession(R1) does not point at the session")
	}

	calls := store.Calls()
	want := persistCall{RobotID: "R1", Electricity: 87, Active: true}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("persist calls = %+v, want [%+v]", calls, want)
	}
}

func TestSession_ReconnectFromNewAddress(t *testing.T) {
	reg := presence.NewRegistry()
	store := &recordingStore{}
	first := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})
	second := startRobot(t, reg, store, "10.0.0.9", SessionConfig{})

	first.exchange(t, frameR1)
	update := `{"robot_id":"R1","electricity":"80","activate":"false"}`
	second.exchange(t, update)

	addr, _ := reg.ResolveAddress("R1")
	if addr != netip.MustParseAddr("10.0.0.9") {
		t.Errorf("ResolveAddress(R1) = %v, want 10.0.0.9", addr)
	}
	if h, _ := reg.ResolveSession("R1"); h.ID() != second.session.ID() {
		t.Errorf("session for R1 = %s, want %s", h.ID(), second.session.ID())
	}

	// The superseded connection stays open and keeps echoing.
	if echo := first.exchange(t, "still here"); echo != "still here" {
		t.Errorf("old connection echo = %q", echo)
	}
}

func TestSession_FreshnessEvictionLeavesDeviceEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	reg := presence.NewRegistry()
	reg.SetClock(clock.Now)
	robot := startRobot(t, reg, &recordingStore{}, "10.0.0.5", SessionConfig{})

	robot.exchange(t, frameR1)

	sweeper, err := presence.NewSweeper(reg, presence.SweeperConfig{Interval: 5 * time.Second, Window: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	clock.Advance(6 * time.Second)
	if n := sweeper.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := reg.LastSeen(netip.MustParseAddr("10.0.0.5")); ok {
		t.Error("10.0.0.5 still fresh after sweep")
	}
	if addr, ok := reg.ResolveAddress("R1"); !ok || addr != netip.MustParseAddr("10.0.0.5") {
		t.Errorf("ResolveAddress(R1) = %v, %v; eviction must not change it", addr, ok)
	}
}

func TestSession_GarbageIsEchoedWithoutMutation(t *testing.T) {
	reg := presence.NewRegistry()
	store := &recordingStore{}
	robot := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})

	if echo := robot.exchange(t, "garbage not json"); echo != "garbage not json" {
		t.Errorf("echo = %q, want %q", echo, "garbage not json")
	}

	stats := reg.Stats()
	if stats.Devices != 0 || stats.Sessions != 0 {
		t.Errorf("registry device entries = %+v, want none", stats)
	}
	if calls := store.Calls(); len(calls) != 0 {
		t.Errorf("persist calls = %+v, want none", calls)
	}
	if got := robot.session.Stats().FramesMalformed; got != 1 {
		t.Errorf("FramesMalformed = %d, want 1", got)
	}
}

func TestSession_EchoPrecedesNextFrame(t *testing.T) {
	reg := presence.NewRegistry()
	store := &recordingStore{}
	robot := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})

	frames := []string{
		frameR1,
		"\xff\xfe not utf8",
		`{"robot_id":"R2","electricity":"12","activate":"0"}`,
		`{"robot_id":"R1"}`,
	}
	for _, f := range frames {
		if echo := robot.exchange(t, f); echo != f {
			t.Errorf("echo = %q, want %q", echo, f)
		}
	}

	if calls := store.Calls(); len(calls) != 2 {
		t.Errorf("persist calls = %d, want 2", len(calls))
	}
}

func TestSession_StoreFailureDoesNotEndSession(t *testing.T) {
	reg := presence.NewRegistry()
	store := &recordingStore{err: errors.New("database is locked")}
	robot := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})

	robot.exchange(t, frameR1)
	if _, ok := reg.ResolveAddress("R1"); !ok {
		t.Error("registry update rolled back after store failure")
	}

	if echo := robot.exchange(t, frameR1); echo != frameR1 {
		t.Errorf("session stopped echoing after store failure")
	}
	if calls := store.Calls(); len(calls) != 2 {
		t.Errorf("persist calls = %d, want 2", len(calls))
	}
}

func TestSession_DispatchNotBlockedBySlowStore(t *testing.T) {
	reg := presence.NewRegistry()
	store := newBlockingStore()
	robot := startRobot(t, reg, store, "10.0.0.5", SessionConfig{})
	release := sync.OnceFunc(func() { close(store.release) })
	t.Cleanup(release)

	_ = robot.conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := robot.conn.Write([]byte(frameR1)); err != nil {
		t.Fatalf("robot write: %v", err)
	}
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("store was not called")
	}

	result := make(chan error, 1)
	go func() {
		result <- NewDispatcher(reg).SendCommand(context.Background(), "R1", []byte("hello robot"))
	}()

	buf := make([]byte, len("hello robot"))
	if _, err := io.ReadFull(robot.conn, buf); err != nil {
		t.Fatalf("robot read while store blocked: %v", err)
	}
	if string(buf) != "hello robot" {
		t.Errorf("robot received %q, want %q", buf, "hello robot")
	}
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("SendCommand() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendCommand() blocked behind the store call")
	}

	release()
	echo := make([]byte, len(frameR1))
	if _, err := io.ReadFull(robot.conn, echo); err != nil {
		t.Fatalf("robot read echo: %v", err)
	}
	if string(echo) != frameR1 {
		t.Errorf("echo = %q, want %q", echo, frameR1)
	}
	_ = robot.conn.SetDeadline(time.Time{})
}

func TestSession_PeerCloseEndsCleanly(t *testing.T) {
	robot := startRobot(t, presence.NewRegistry(), nil, "10.0.0.5", SessionConfig{})
	robot.exchange(t, frameR1)

	_ = robot.conn.Close()
	if err := robot.waitDone(t); err != nil {
		t.Errorf("Run() error = %v, want nil on peer close", err)
	}

	if err := robot.session.Send(context.Background(), []byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_StalePolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      StalePolicy
		wantRetains bool
	}{
		{"retain keeps entries", PolicyRetain, true},
		{"default keeps entries", "", true},
		{"remove on disconnect drops entries", PolicyRemoveOnDisconnect, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := presence.NewRegistry()
			robot := startRobot(t, reg, nil, "10.0.0.5", SessionConfig{StalePolicy: tt.policy})
			robot.exchange(t, frameR1)

			_ = robot.conn.Close()
			robot.waitDone(t)

			_, hasSession := reg.ResolveSession("R1")
			_, hasAddress := reg.ResolveAddress("R1")
			if hasSession != tt.wantRetains || hasAddress != tt.wantRetains {
				t.Errorf("session=%v address=%v, want both %v", hasSession, hasAddress, tt.wantRetains)
			}
		})
	}
}

func TestSession_ConcurrentWritesDoNotInterleave(t *testing.T) {
	reg := presence.NewRegistry()
	robot := startRobot(t, reg, nil, "10.0.0.5", SessionConfig{})
	robot.exchange(t, frameR1)

	const (
		echoes   = 20
		commands = 20
		msgLen   = 8
	)
	total := (echoes + commands) * msgLen

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, total)
		_ = robot.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _ := io.ReadFull(robot.conn, buf)
		received <- string(buf[:n])
	}()

	dispatcher := NewDispatcher(reg)
	var wg sync.WaitGroup
	for i := 0; i < commands; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := dispatcher.SendCommand(context.Background(), "R1", []byte(fmt.Sprintf("CMD-%03d|", i))); err != nil {
				t.Errorf("SendCommand() error = %v", err)
			}
		}(i)
	}

	_ = robot.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < echoes; i++ {
		if _, err := robot.conn.Write([]byte(fmt.Sprintf("ECH-%03d|", i))); err != nil {
			t.Fatalf("robot write: %v", err)
		}
	}
	wg.Wait()

	stream := <-received
	if len(stream) != total {
		t.Fatalf("received %d bytes, want %d", len(stream), total)
	}
	seen := make(map[string]bool)
	for i := 0; i < len(stream); i += msgLen {
		msg := stream[i : i+msgLen]
		if !strings.HasSuffix(msg, "|") || (!strings.HasPrefix(msg, "CMD-") && !strings.HasPrefix(msg, "ECH-")) {
			t.Fatalf("torn write at offset %d: %q", i, msg)
		}
		seen[msg] = true
	}
	if len(seen) != echoes+commands {
		t.Errorf("distinct messages = %d, want %d", len(seen), echoes+commands)
	}
}
