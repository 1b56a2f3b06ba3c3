// Package gateway implements the robot-facing TCP side of RoboLink.
//
// A Server accepts connections and runs one Session per connection. Each
// Session reads frames, records the peer in the presence registry, parses
// telemetry, hands valid readings to a TelemetryStore, and echoes every read
// back to the robot verbatim.
//
// Every write to a connection goes through its Session's outbound queue,
// drained by a single writer goroutine. Echoes and commands pushed by the
// Dispatcher therefore never interleave on the wire, though their relative
// order is not fixed.
//
// Frame format (one read, no delimiter):
//
//	{"robot_id": "R1", "electricity": "87", "activate": "true"}
//
// Malformed frames are echoed and otherwise ignored.
package gateway
