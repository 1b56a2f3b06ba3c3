package mqtt

import "strings"

// TopicPrefix is the root of every RoboLink topic.
const TopicPrefix = "robolink"

// Topics provides builders for RoboLink MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.RobotState("R1") // "robolink/state/R1"
type Topics struct{}

// RobotState returns the retained telemetry topic for a robot.
func (Topics) RobotState(robotID string) string {
	return TopicPrefix + "/state/" + robotID
}

// RobotAck returns the topic on which command outcomes are published.
func (Topics) RobotAck(robotID string) string {
	return TopicPrefix + "/ack/" + robotID
}

// AllRobotCommands matches every robot command topic.
func (Topics) AllRobotCommands() string {
	return TopicPrefix + "/command/+"
}

// SystemStatus returns the gateway status topic used for the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// RobotIDFromTopic extracts the robot ID from a command, ack, or state topic.
//
// Returns ErrInvalidTopic when topic is not robolink/{kind}/{robot_id} with
// a non-empty robot ID.
func RobotIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] == "" {
		return "", ErrInvalidTopic
	}
	switch parts[1] {
	case "command", "ack", "state":
		return parts[2], nil
	default:
		return "", ErrInvalidTopic
	}
}
