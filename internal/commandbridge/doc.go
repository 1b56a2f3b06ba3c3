// Package commandbridge forwards robot commands received over MQTT to the
// gateway dispatcher and acknowledges each one.
//
// A message on robolink/command/{robot_id} is written verbatim to that
// robot's connection. The outcome is published on robolink/ack/{robot_id}:
//
//	{"robot_id":"R1","status":"sent","bytes":11}
//	{"robot_id":"R9","status":"not_connected","error":"R9 not connected"}
//	{"robot_id":"R1","status":"failed","error":"gateway: dispatch failed: ..."}
package commandbridge
