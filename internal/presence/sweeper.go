package presence

import (
	"context"
	"fmt"
	"time"
)

// SweeperConfig controls the eviction cycle.
type SweeperConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// Window is the maximum silence before an address is evicted.
	Window time.Duration
}

// Sweeper periodically evicts stale address freshness entries.
//
// Because the scan runs on a fixed interval, an address is removed between
// Window and Window+Interval after its last packet.
type Sweeper struct {
	registry *Registry
	cfg      SweeperConfig
	logger   Logger
}

// NewSweeper creates a sweeper for registry.
//
// Returns:
//   - *Sweeper: ready to Run
//   - error: ErrInvalidWindow if Interval or Window is not positive
func NewSweeper(registry *Registry, cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Interval <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: interval=%s window=%s", ErrInvalidWindow, cfg.Interval, cfg.Window)
	}
	return &Sweeper{
		registry: registry,
		cfg:      cfg,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Run sweeps every Interval until ctx is cancelled. It always returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("eviction sweeper started",
		"interval", s.cfg.Interval.String(),
		"window", s.cfg.Window.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("eviction sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one eviction cycle and returns the number of evicted addresses.
func (s *Sweeper) Sweep() int {
	evicted, before, after := s.registry.sweep(s.cfg.Window, s.registry.Now())
	if evicted > 0 {
		s.logger.Info("address cleanup done",
			"evicted", evicted,
			"before", before,
			"after", after,
		)
	}
	return evicted
}
