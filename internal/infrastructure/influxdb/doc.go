// Package influxdb mirrors robot telemetry into InfluxDB for trend analysis.
//
// It wraps the official influxdb-client-go v2 library. Writes go through the
// non-blocking, batched WriteAPI; failures are reported asynchronously to the
// callback registered with SetOnError.
//
// # Measurements
//
//   - robot_telemetry (tag robot_id; fields electricity, active)
//   - gateway_stats (tag site; fields sessions, fresh_addresses, devices)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // time-series mirror not configured
//	}
//	defer client.Close()
//
//	client.WriteRobotTelemetry("R1", 87, true, time.Now())
package influxdb
