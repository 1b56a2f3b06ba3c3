package audit

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/gateway"
)

// recordTimeout bounds one audit insert. It is detached from the caller's
// context so a cancelled request is still recorded.
const recordTimeout = 2 * time.Second

// CommandSender is satisfied by *gateway.Dispatcher.
type CommandSender interface {
	SendCommand(ctx context.Context, robotID string, payload []byte) error
}

// Logger is the logging interface used by Sender.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

type ctxKey int

const (
	ctxKeySource ctxKey = iota
	ctxKeySubject
)

// WithSource overrides the Sender's default source for one call.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// WithSubject attaches the authenticated caller to ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

// SubjectFrom returns the subject attached by WithSubject, or "".
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject).(string)
	return s
}

// Sender wraps a CommandSender and records every attempt.
//
// A failed insert is logged and never changes the dispatch result.
type Sender struct {
	next   CommandSender
	repo   Repository
	source string
	logger Logger
	now    func() time.Time
}

// NewSender returns a Sender recording under source unless a call's
// context carries WithSource.
func NewSender(next CommandSender, repo Repository, source string) *Sender {
	return &Sender{
		next:   next,
		repo:   repo,
		source: source,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for insert failures.
func (s *Sender) SetLogger(logger Logger) {
	s.logger = logger
}

// SendCommand dispatches through the wrapped sender, then records the outcome.
func (s *Sender) SendCommand(ctx context.Context, robotID string, payload []byte) error {
	err := s.next.SendCommand(ctx, robotID, payload)

	entry := &Entry{
		RobotID:   robotID,
		Source:    s.source,
		Status:    Classify(err),
		Bytes:     len(payload),
		Subject:   SubjectFrom(ctx),
		CreatedAt: s.now(),
	}
	if src, ok := ctx.Value(ctxKeySource).(string); ok && src != "" {
		entry.Source = src
	}
	if err != nil {
		entry.Bytes = 0
		entry.Error = err.Error()
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if recErr := s.repo.Create(recCtx, entry); recErr != nil {
		s.logger.Warn("command audit insert failed", "robot_id", robotID, "error", recErr)
	}
	return err
}

// Classify maps a dispatch error to an audit status.
func Classify(err error) string {
	switch {
	case err == nil:
		return StatusSent
	case errors.Is(err, gateway.ErrNotConnected):
		return StatusNotConnected
	default:
		return StatusFailed
	}
}
