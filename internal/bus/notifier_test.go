package bus

import (
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(16)
	// Must not panic or block.
	n.Publish(Event{Type: TraceRegistered, TraceID: "t1", Timestamp: time.Now().UnixNano()})
}

func TestNotifier_SubscribeReceives(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe("cache", nil)

	n.Publish(Event{Type: TraceRegistered, TraceID: "trace-a", StepCount: 3})

	select {
	case ev := <-sub.Ch:
		if ev.TraceID != "trace-a" {
			t.Errorf("trace ID mismatch: %s", ev.TraceID)
		}
		if ev.Type != TraceRegistered {
			t.Errorf("type mismatch: %v", ev.Type)
		}
		if ev.StepCount != 3 {
			t.Errorf("step count mismatch: %d", ev.StepCount)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestNotifier_FilterByTraceIDPrefix(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe("filtered", []string{"trace-a"})

	n.Publish(Event{Type: TraceDeleted, TraceID: "trace-b"})
	n.Publish(Event{Type: TraceDeleted, TraceID: "trace-a"})

	select {
	case ev := <-sub.Ch:
		if ev.TraceID != "trace-a" {
			t.Errorf("filter leaked event for %s", ev.TraceID)
		}
	case <-time.After(time.Second):
		t.Fatal("matching event not delivered")
	}

	select {
	case ev := <-sub.Ch:
		t.Errorf("unexpected second event: %+v", ev)
	default:
	}
}

func TestNotifier_FullChannelDropsEvent(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe("slow", nil)

	n.Publish(Event{Type: TraceRegistered, TraceID: "t1"})
	n.Publish(Event{Type: TraceRegistered, TraceID: "t2"}) // dropped

	ev := <-sub.Ch
	if ev.TraceID != "t1" {
		t.Errorf("expected first event, got %s", ev.TraceID)
	}
	select {
	case ev := <-sub.Ch:
		t.Errorf("second event should have been dropped, got %+v", ev)
	default:
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe("gone", nil)
	n.Unsubscribe("gone")

	if _, ok := <-sub.Ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	n.Publish(Event{Type: TraceRegistered, TraceID: "t1"})
}

func TestNotifier_SubscribeAutoID(t *testing.T) {
	n := NewNotifier(16)
	ch := n.SubscribeAutoID()

	n.Publish(Event{Type: ReplayFinished, TraceID: "t9"})
	select {
	case ev := <-ch:
		if ev.Type != ReplayFinished {
			t.Errorf("type mismatch: %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered to auto-ID subscriber")
	}
}
