package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewInMemoryDispatcher()
	var created, status int
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { created++; return nil })
	d.Subscribe(EventTicketStatusChanged, func(context.Context, Event) error { status++; return nil })

	ctx := context.Background()
	if err := d.Publish(ctx, Event{Type: EventTicketCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := d.Publish(ctx, Event{Type: EventTicketMessageAdded}); err != nil {
		t.Fatalf("publish without listeners: %v", err)
	}
	if created != 1 || status != 0 {
		t.Fatalf("created=%d status=%d", created, status)
	}
}

func TestDispatcherRunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	calls := 0
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { calls++; return errA })
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { calls++; return nil })
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { calls++; return errB })

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	if calls != 3 {
		t.Fatalf("expected all handlers to run, ran %d", calls)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
}
