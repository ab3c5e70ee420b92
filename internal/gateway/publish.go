package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher sends a payload to a broker topic. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TopicBuilder names the topics events are published to.
type TopicBuilder interface {
	Command() string
	Uplink(shape, roomID string) (string, error)
}

// BrokerNotifier publishes events to a message broker so LAN nodes receive
// commands without polling the downlink.
type BrokerNotifier struct {
	pub    Publisher
	topics TopicBuilder
	qos    byte
}

// NewBrokerNotifier returns a Notifier publishing on topics at qos.
func NewBrokerNotifier(pub Publisher, topics TopicBuilder, qos byte) *BrokerNotifier {
	return &BrokerNotifier{pub: pub, topics: topics, qos: qos}
}

// Notify implements Notifier. Failed forwards are not published: nodes only
// act on data the store accepted. Commands are retained so a node that
// reconnects picks up the latest one. A room ID the topic builder rejects
// is reported as an error and nothing is published.
func (n *BrokerNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.Outcome == OutcomeFailed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	var topic string
	retained := false
	switch ev.Kind {
	case EventCommand:
		topic = n.topics.Command()
		retained = true
	default:
		topic, err = n.topics.Uplink(string(ev.Shape), ev.RoomID)
		if err != nil {
			return fmt.Errorf("skipping %s event: %w", ev.Kind, err)
		}
	}

	if err := n.pub.Publish(topic, payload, n.qos, retained); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.Kind, err)
	}
	return nil
}
