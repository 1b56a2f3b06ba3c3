package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/gateway"
)

type stubSender struct {
	err error
}

func (s stubSender) SendCommand(context.Context, string, []byte) error { return s.err }

type memoryRepo struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memoryRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("not used")
}

type warnCounter struct {
	mu    sync.Mutex
	count int
}

func (w *warnCounter) Warn(string, ...any) {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

func TestSender_RecordsOutcome(t *testing.T) {
	writeErr := errors.New("gateway: write failed: broken pipe")
	tests := []struct {
		name       string
		sendErr    error
		ctx        func() context.Context
		wantStatus string
		wantSource string
		wantBytes  int
		wantError  string
		wantSubj   string
	}{
		{
			name:       "sent",
			ctx:        context.Background,
			wantStatus: StatusSent,
			wantSource: SourceAPI,
			wantBytes:  5,
		},
		{
			name:       "not connected",
			sendErr:    &gateway.NotConnectedError{RobotID: "R1"},
			ctx:        context.Background,
			wantStatus: StatusNotConnected,
			wantSource: SourceAPI,
			wantError:  "R1 not connected",
		},
		{
			name:       "failed",
			sendErr:    writeErr,
			ctx:        context.Background,
			wantStatus: StatusFailed,
			wantSource: SourceAPI,
			wantError:  writeErr.Error(),
		},
		{
			name: "source and subject from context",
			ctx: func() context.Context {
				return WithSubject(WithSource(context.Background(), SourceManage), "ops-console")
			},
			wantStatus: StatusSent,
			wantSource: SourceManage,
			wantBytes:  5,
			wantSubj:   "ops-console",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memoryRepo{}
			s := NewSender(stubSender{err: tt.sendErr}, repo, SourceAPI)
			at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
			s.now = func() time.Time { return at }

			err := s.SendCommand(tt.ctx(), "R1", []byte("hello"))
			if !errors.Is(err, tt.sendErr) {
				t.Errorf("SendCommand() error = %v, want %v", err, tt.sendErr)
			}
			if len(repo.entries) != 1 {
				t.Fatalf("recorded %d entries, want 1", len(repo.entries))
			}
			got := repo.entries[0]
			want := Entry{
				RobotID:   "R1",
				Source:    tt.wantSource,
				Status:    tt.wantStatus,
				Bytes:     tt.wantBytes,
				Subject:   tt.wantSubj,
				Error:     tt.wantError,
				CreatedAt: at,
			}
			if got != want {
				t.Errorf("entry = %+v\nwant    %+v", got, want)
			}
		})
	}
}

func TestSender_RecordsCancelledRequest(t *testing.T) {
	repo := &memoryRepo{}
	s := NewSender(stubSender{err: context.Canceled}, repo, SourceAPI)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = s.SendCommand(ctx, "R1", []byte("x"))

	if len(repo.entries) != 1 || repo.entries[0].Status != StatusFailed {
		t.Errorf("entries = %+v, want one failed entry", repo.entries)
	}
}

func TestSender_InsertFailureKeepsResult(t *testing.T) {
	repo := &memoryRepo{err: errors.New("disk full")}
	logger := &warnCounter{}
	s := NewSender(stubSender{}, repo, SourceMQTT)
	s.SetLogger(logger)

	if err := s.SendCommand(context.Background(), "R1", []byte("x")); err != nil {
		t.Errorf("SendCommand() error = %v, want nil", err)
	}
	if logger.count != 1 {
		t.Errorf("warnings = %d, want 1", logger.count)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, StatusSent},
		{&gateway.NotConnectedError{RobotID: "R1"}, StatusNotConnected},
		{gateway.ErrNotConnected, StatusNotConnected},
		{gateway.ErrSessionClosed, StatusFailed},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
