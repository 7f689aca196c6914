package chat

import (
	"context"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(Event{Type: EventSessionCreated, SessionID: "s1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		ev, err := DecodeEvent(msg)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		msg.Ack()
		if ev.Type != EventSessionCreated || ev.SessionID != "s1" {
			t.Errorf("Unexpected event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Event never delivered")
	}
}

func TestRegistryPublishesTitleUpdate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	reg := New(Options{Sender: &scriptedSender{}, Bus: bus})
	reg.SetSessionTitle("s1", "Renamed")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-msgs:
			ev, err := DecodeEvent(msg)
			msg.Ack()
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			// Session creation publishes too; wait for the title event.
			if ev.Type == EventTitleUpdated {
				if ev.SessionID != "s1" || ev.Title != "Renamed" {
					t.Errorf("Unexpected event: %+v", ev)
				}
				return
			}
		case <-deadline:
			t.Fatal("Title event never delivered")
		}
	}
}
