package chat

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventsTopic is the pub/sub topic session lifecycle events are published on.
const EventsTopic = "chat.events"

// EventType identifies a session lifecycle notification.
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventTitleUpdated     EventType = "session.title_updated"
	EventMessageFinalized EventType = "message.finalized"
	EventCacheCleared     EventType = "cache.cleared"
)

// Event is one session lifecycle notification delivered to observers.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Title     string    `json:"title,omitempty"`
}

// Bus carries session lifecycle events between the registry and its
// observers over an in-process pub/sub channel, replacing any notion of
// global broadcast state.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
}

// Publish emits an event to all current subscribers.
func (b *Bus) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(EventsTopic, message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe returns a channel of raw event messages. Payloads decode into
// Event via DecodeEvent. The channel closes when ctx is cancelled or the
// bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, EventsTopic)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeEvent unmarshals a bus message payload.
func DecodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}
