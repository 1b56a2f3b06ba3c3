// Package telemetry persists robot readings accepted by the gateway.
//
// A Recorder implements gateway.TelemetryStore. Every reading is upserted
// into a Repository (the latest status per robot) and then fanned out to
// optional sinks: InfluxDB points, retained MQTT state messages, and the
// API WebSocket hub. Sink failures are logged and never fail the reading.
//
// Two repositories are provided:
//   - SQLiteRepository: robot_status plus optional telemetry_history
//   - PostgresRepository: the robot_manager table, via a pgx pool
package telemetry
