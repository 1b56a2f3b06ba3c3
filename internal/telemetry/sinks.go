package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteRobotTelemetry(robotID string, electricity int, active bool, at time.Time)
}

// InfluxSink mirrors readings into InfluxDB as robot_telemetry points.
func InfluxSink(w PointWriter) Sink {
	return SinkFunc(func(_ context.Context, s Status) error {
		w.WriteRobotTelemetry(s.RobotID, s.Electricity, s.Active, s.UpdatedAt)
		return nil
	})
}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// StateTopicFunc maps a robot ID to its state topic.
type StateTopicFunc func(robotID string) string

// MQTTSink publishes each reading as a retained JSON message on the robot's
// state topic.
func MQTTSink(p Publisher, topic StateTopicFunc) Sink {
	return SinkFunc(func(_ context.Context, s Status) error {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encoding state for %s: %w", s.RobotID, err)
		}
		return p.PublishRetained(topic(s.RobotID), payload)
	})
}
