package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"frontdesk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func routedEvent(sender string) Event {
	return Event{
		Type:    EventMessageRouted,
		Channel: domain.ChannelWhatsApp,
		Routed: &domain.RoutedMessage{
			Message:  domain.InboundMessage{Channel: domain.ChannelWhatsApp, Sender: sender},
			Priority: domain.PriorityNormal,
		},
	}
}

func TestEventBus_EmitRouted(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)

	var got string
	eb.On(EventMessageRouted, func(e Event) { got = e.Routed.Message.Sender })
	eb.Emit(routedEvent("85291234567"))

	if got != "85291234567" {
		t.Errorf("expected sender 85291234567, got %q", got)
	}
}

func TestEventBus_Wildcard(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)

	var count int32
	eb.On("*", func(Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(routedEvent("a"))
	eb.Emit(Event{Type: EventMessageMalformed, Err: errors.New("bad")})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_OffKeepsOtherHandlers(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)

	var first, second int32
	id := eb.On(EventMessageRouted, func(Event) { atomic.AddInt32(&first, 1) })
	eb.On(EventMessageRouted, func(Event) { atomic.AddInt32(&second, 1) })

	eb.Emit(routedEvent("a"))
	eb.Off(EventMessageRouted, id)
	eb.Emit(routedEvent("b"))

	if first != 1 || second != 2 {
		t.Errorf("expected first=1 second=2, got %d %d", first, second)
	}
}

func TestEventBus_HandlerIDsUnique(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)
	a := eb.On(EventMessageRouted, func(Event) {})
	eb.Off(EventMessageRouted, a)
	b := eb.On(EventMessageRouted, func(Event) {})
	if a == b {
		t.Errorf("handler id %q reused after Off", a)
	}
}

func TestEventBus_Replay(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)

	eb.Emit(Event{Type: EventMessageRouted, Timestamp: time.Now().Add(-time.Hour)})
	threshold := time.Now()
	eb.Emit(routedEvent("a"))
	eb.Emit(Event{Type: EventMessageMalformed})

	if n := len(eb.Replay(EventMessageRouted, time.Time{})); n != 2 {
		t.Errorf("expected 2 routed events, got %d", n)
	}
	if n := len(eb.Replay("*", threshold)); n != 2 {
		t.Errorf("expected 2 events since threshold, got %d", n)
	}
}

func TestEventBus_HistoryLimit(t *testing.T) {
	eb := NewEventBus(testLogger(), 5)
	for i := 0; i < 10; i++ {
		eb.Emit(routedEvent("a"))
	}
	if eb.HistoryLen() != 5 {
		t.Errorf("expected 5, got %d", eb.HistoryLen())
	}
}

func TestEventBus_PanicIsolation(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)

	var after int32
	eb.On(EventMessageRouted, func(Event) { panic("subscriber failure") })
	eb.On(EventMessageRouted, func(Event) { atomic.AddInt32(&after, 1) })

	eb.Emit(routedEvent("a"))

	if atomic.LoadInt32(&after) != 1 {
		t.Error("handler after a panicking one should still run")
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus(testLogger(), 0)
	eb.Emit(routedEvent("a"))

	events := eb.Replay(EventMessageRouted, time.Time{})
	if len(events) != 1 || events[0].Timestamp.IsZero() {
		t.Fatalf("expected one timestamped event, got %+v", events)
	}
}

func TestQueue_DeliversInOrder(t *testing.T) {
	got := make(chan string, 3)
	q := NewQueue("test", 3, func(e Event) { got <- e.Routed.Message.Sender }, testLogger())

	q.Enqueue(routedEvent("a"))
	q.Enqueue(routedEvent("b"))
	q.Enqueue(routedEvent("c"))
	q.Close()
	q.Run(context.Background())

	for _, want := range []string{"a", "b", "c"} {
		if s := <-got; s != want {
			t.Errorf("expected %q, got %q", want, s)
		}
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue("test", 1, func(Event) {}, testLogger())
	q.timeout = 10 * time.Millisecond

	q.Enqueue(routedEvent("a"))
	q.Enqueue(routedEvent("b"))

	if q.Len() != 1 {
		t.Errorf("expected 1 buffered event, got %d", q.Len())
	}
}

func TestQueue_ClosedDropsAndSurvivesPanic(t *testing.T) {
	var handled int32
	q := NewQueue("test", 4, func(e Event) {
		if e.Routed.Message.Sender == "boom" {
			panic("handler failure")
		}
		atomic.AddInt32(&handled, 1)
	}, testLogger())

	q.Enqueue(routedEvent("boom"))
	q.Enqueue(routedEvent("ok"))
	q.Close()
	q.Enqueue(routedEvent("late"))
	q.Close()
	q.Run(context.Background())

	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("expected 1 handled event, got %d", handled)
	}
}

func TestQueue_CloseUnblocksFullEnqueue(t *testing.T) {
	q := NewQueue("test", 1, func(Event) {}, testLogger())
	q.timeout = time.Minute
	q.Enqueue(routedEvent("a"))

	returned := make(chan struct{})
	go func() {
		q.Enqueue(routedEvent("b"))
		close(returned)
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	for name, ch := range map[string]chan struct{}{"Enqueue": returned, "Close": closed} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s still blocked on a full queue after Close", name)
		}
	}
}

func TestQueue_DropsImmediatelyAfterRunStops(t *testing.T) {
	q := NewQueue("test", 1, func(Event) {}, testLogger())
	q.timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx)

	start := time.Now()
	q.Enqueue(routedEvent("a"))
	q.Enqueue(routedEvent("b"))
	if d := time.Since(start); d > time.Second {
		t.Errorf("Enqueue waited %v after Run stopped", d)
	}
	if q.Len() != 0 {
		t.Errorf("expected nothing buffered after stop, got %d", q.Len())
	}
}
