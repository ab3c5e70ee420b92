// Package mqtt publishes roomgate events to an MQTT broker.
//
// When mqtt.enabled is set, accepted commands and uplinks are fanned out to
// the LAN so sensor nodes can react without polling the downlink route.
// The relay never subscribes.
//
// # Topics
//
//	roomgate/status                   online/offline (retained, LWT)
//	roomgate/command                  latest operator command (retained)
//	roomgate/uplink/status            room status uplinks
//	roomgate/uplink/reading/{room_id} per-room readings
//
// The prefix comes from mqtt.topic_prefix.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().Command(), payload, 1, true)
//
// Security: use TLS (mqtt.broker.tls) on anything but a trusted LAN.
// Payloads carry commands verbatim and are not encrypted beyond TLS.
package mqtt
