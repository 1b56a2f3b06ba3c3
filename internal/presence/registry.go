package presence

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry and Sweeper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SessionHandle is the write side of one live robot connection.
//
// Send must serialise concurrent callers so that each payload reaches the
// wire as one uninterrupted write.
type SessionHandle interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

// Device is a snapshot of one robot's registry entries.
type Device struct {
	RobotID   string     `json:"robot_id"`
	Address   netip.Addr `json:"address"`
	SessionID string     `json:"session_id,omitempty"`
	Fresh     bool       `json:"fresh"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// Stats holds registry sizes.
type Stats struct {
	FreshAddresses int `json:"fresh_addresses"`
	Devices        int `json:"devices"`
	Sessions       int `json:"sessions"`
}

// Registry is the concurrency-safe store of address freshness,
// device address, and device session mappings.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - No method performs I/O while holding the lock.
type Registry struct {
	mu        sync.RWMutex
	fresh     map[netip.Addr]time.Time
	addresses map[string]netip.Addr
	sessions  map[string]SessionHandle

	now    func() time.Time
	logger Logger
}

// NewRegistry creates an empty registry using the wall clock.
func NewRegistry() *Registry {
	return &Registry{
		fresh:     make(map[netip.Addr]time.Time),
		addresses: make(map[string]netip.Addr),
		sessions:  make(map[string]SessionHandle),
		now:       time.Now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source. Must be called before the registry is shared.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Touch records addr as seen now, inserting or refreshing its freshness entry.
func (r *Registry) Touch(addr netip.Addr) {
	t := r.now()

	r.mu.Lock()
	r.fresh[addr] = t
	r.mu.Unlock()
}

// SetDevice points robotID at addr and handle. Last write wins.
func (r *Registry) SetDevice(robotID string, addr netip.Addr, handle SessionHandle) {
	r.mu.Lock()
	r.addresses[robotID] = addr
	r.sessions[robotID] = handle
	r.mu.Unlock()
}

// ResolveAddress returns the address last named by a valid frame for robotID.
func (r *Registry) ResolveAddress(robotID string) (netip.Addr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.addresses[robotID]
	return addr, ok
}

// ResolveSession returns the session handle last registered for robotID.
// The handle may belong to a connection that has since closed.
func (r *Registry) ResolveSession(robotID string) (SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[robotID]
	return h, ok
}

// EvictOlderThan removes every freshness entry whose last-seen instant is
// more than window before now. An entry exactly window old is kept.
// Device address and session entries are not touched.
//
// Returns the number of evicted entries.
func (r *Registry) EvictOlderThan(window time.Duration, now time.Time) int {
	evicted, _, _ := r.sweep(window, now)
	return evicted
}

// sweep performs eviction and reports the map size before and after.
func (r *Registry) sweep(window time.Duration, now time.Time) (evicted, before, after int) {
	var removed []netip.Addr

	r.mu.Lock()
	before = len(r.fresh)
	for addr, seen := range r.fresh {
		if now.Sub(seen) > window {
			delete(r.fresh, addr)
			removed = append(removed, addr)
		}
	}
	after = len(r.fresh)
	r.mu.Unlock()

	for _, addr := range removed {
		r.logger.Debug("removing inactive address", "address", addr.String())
	}

	return len(removed), before, after
}

// ForgetSession removes the device entries that still point at handle and
// returns the affected robot IDs. Entries that were already overwritten by a
// newer session are left alone.
func (r *Registry) ForgetSession(handle SessionHandle) []string {
	id := handle.ID()

	r.mu.Lock()
	var robots []string
	for robotID, h := range r.sessions {
		if h.ID() == id {
			delete(r.sessions, robotID)
			delete(r.addresses, robotID)
			robots = append(robots, robotID)
		}
	}
	r.mu.Unlock()

	sort.Strings(robots)
	return robots
}

// LastSeen returns the freshness timestamp for addr, if any.
func (r *Registry) LastSeen(addr netip.Addr) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.fresh[addr]
	return t, ok
}

// FreshAddresses returns a copy of the freshness map.
func (r *Registry) FreshAddresses() map[netip.Addr]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[netip.Addr]time.Time, len(r.fresh))
	for addr, t := range r.fresh {
		out[addr] = t
	}
	return out
}

// Devices returns a snapshot of every known robot, sorted by robot ID.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.addresses))
	for robotID, addr := range r.addresses {
		d := Device{RobotID: robotID, Address: addr}
		if h, ok := r.sessions[robotID]; ok {
			d.SessionID = h.ID()
		}
		if seen, ok := r.fresh[addr]; ok {
			d.Fresh = true
			d.LastSeen = &seen
		}
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].RobotID < devices[j].RobotID
	})
	return devices
}

// Stats returns the current size of each map.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		FreshAddresses: len(r.fresh),
		Devices:        len(r.addresses),
		Sessions:       len(r.sessions),
	}
}
