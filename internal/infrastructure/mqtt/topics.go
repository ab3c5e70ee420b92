package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "roomgate"

// wildcardChars may appear in subscriptions only, never in a published topic.
const wildcardChars = "+#\x00"

// Topics builds roomgate topic names under a prefix:
//
//	{prefix}/status                   relay online/offline (retained)
//	{prefix}/command                  latest operator command (retained)
//	{prefix}/uplink/status            accepted room status uplinks
//	{prefix}/uplink/reading/{room_id} accepted per-room readings
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status returns the relay status topic.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Command returns the operator command topic.
func (t Topics) Command() string {
	return t.prefix + "/command"
}

// Uplink returns the topic for an accepted uplink of the given shape.
// Reading uplinks get one topic per room. Room IDs come from devices, so a
// room that cannot form a single topic level is rejected with ErrInvalidTopic.
func (t Topics) Uplink(shape, roomID string) (string, error) {
	if shape == "" {
		shape = "status"
	}
	topic := t.prefix + "/uplink/" + shape
	if roomID == "" {
		return topic, nil
	}
	if err := topicLevel(roomID); err != nil {
		return "", err
	}
	return topic + "/" + roomID, nil
}

// topicLevel checks that s can be used as one literal topic level.
func topicLevel(s string) error {
	if strings.ContainsAny(s, wildcardChars+"/") {
		return fmt.Errorf("%w: level %q contains '/', '+', '#' or NUL", ErrInvalidTopic, s)
	}
	return nil
}
