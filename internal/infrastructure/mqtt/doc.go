// Package mqtt connects the gateway to an MQTT broker.
//
// The broker carries three kinds of traffic for RoboLink:
//
//	robolink/command/{robot_id}   inbound commands for a connected robot
//	robolink/ack/{robot_id}       dispatch outcome for each command
//	robolink/state/{robot_id}     retained latest telemetry per robot
//	robolink/system/status        retained gateway online/offline status (LWT)
//
// The client wraps paho.mqtt.golang with auto-reconnect, restores
// subscriptions after a reconnect, and recovers panics in message handlers.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllRobotCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        robotID, _ := mqtt.RobotIDFromTopic(topic)
//	        return dispatch(robotID, payload)
//	    })
package mqtt
