package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	boom := errors.New("boom")

	d.Subscribe(EventTicketMessage, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventTicketMessage, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventReportUpdated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketMessage})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestDispatcherWithoutListeners(t *testing.T) {
	d := NewInMemoryDispatcher()
	if err := d.Publish(context.Background(), Event{Type: EventTicketClosed}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRedisSinkChannel(t *testing.T) {
	s := NewRedisSink(nil, "etala:events", 0)
	if got := s.Channel(EventReportUpdated); got != "etala:events:reportUpdated" {
		t.Fatalf("got %q", got)
	}
	if err := s.Publish(context.Background(), Event{Type: EventReportUpdated}); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		panic("subscriber bug")
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketClosed})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if !reached {
		t.Fatal("handler after the panicking one did not run")
	}
}
