// Package presence tracks which robots are reachable and where.
//
// A Registry holds three related maps behind one lock:
//
//   - address freshness: peer IP → instant of the last inbound packet
//   - device address: robot ID → peer IP named by its latest valid frame
//   - device session: robot ID → live session handle for command dispatch
//
// Sessions insert and refresh freshness entries with Touch. The Sweeper is
// the only component that removes them. Device entries are replaced on every
// valid frame and are never pruned by the sweeper; whether they survive the
// end of their connection is decided by the gateway's stale session policy
// (see Registry.ForgetSession).
//
// The Registry is an injected value. There is no package-level state.
package presence
