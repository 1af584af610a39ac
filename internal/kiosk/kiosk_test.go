package kiosk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
	"github.com/angiediaz0209/artistline/internal/store/memory"
)

func seedEvent(t *testing.T, s *memory.Store) string {
	t.Helper()
	event, err := s.CreateEvent(context.Background(), store.CreateEventInput{OrganizerID: "org", Name: "Comic Fest", Date: time.Now()})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return event.EventID
}

func seedQueue(t *testing.T, s *memory.Store, eventID, name string, visible bool) string {
	t.Helper()
	queue, err := s.CreateQueue(context.Background(), store.CreateQueueInput{EventID: eventID, Name: name, IsVisible: visible})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return queue.QueueID
}

func TestKioskFullCycle(t *testing.T) {
	s := memory.NewStore()
	eventID := seedEvent(t, s)
	queueID := seedQueue(t, s, eventID, "Signing", true)
	seedQueue(t, s, eventID, "Sketches", true)
	c := NewController(s, eventID, Options{ResetDelay: 20 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()

	if c.State() != StateSelecting {
		t.Fatalf("state = %s, want selecting", c.State())
	}
	queues, err := c.Queues(ctx)
	if err != nil || len(queues) != 2 {
		t.Fatalf("Queues = %v, %v", queues, err)
	}
	if err := c.SelectQueue(ctx, queueID); err != nil {
		t.Fatalf("SelectQueue: %v", err)
	}
	if c.State() != StateIntake {
		t.Fatalf("state = %s, want intake", c.State())
	}

	ticket, err := c.Submit(ctx, JoinForm{Name: "Dana", Phone: "+15550100"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ticket.Number != 1 || c.State() != StateConfirmed {
		t.Fatalf("ticket %+v state %s", ticket, c.State())
	}
	if got, ok := c.LastTicket(); !ok || got.CustomerID != ticket.CustomerID {
		t.Fatalf("LastTicket = %+v, %v", got, ok)
	}

	// The countdown clears the screen but the ticket stays in the queue.
	deadline := time.Now().Add(time.Second)
	for c.State() != StateSelecting {
		if time.Now().After(deadline) {
			t.Fatal("kiosk never reset")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := c.LastTicket(); ok {
		t.Fatal("ticket still on screen after reset")
	}
	kept, err := s.GetCustomer(ctx, ticket.CustomerID)
	if err != nil || kept.Status != models.StatusWaiting {
		t.Fatalf("ticket retracted by reset: %+v, %v", kept, err)
	}
}

func TestKioskManualAdvance(t *testing.T) {
	s := memory.NewStore()
	eventID := seedEvent(t, s)
	queueID := seedQueue(t, s, eventID, "Signing", true)
	seedQueue(t, s, eventID, "Sketches", true)
	c := NewController(s, eventID, Options{ResetDelay: time.Hour})
	defer c.Close()
	ctx := context.Background()

	if err := c.SelectQueue(ctx, queueID); err != nil {
		t.Fatalf("SelectQueue: %v", err)
	}
	if _, err := c.Submit(ctx, JoinForm{Name: "Dana"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Advance()
	if c.State() != StateSelecting {
		t.Fatalf("state = %s, want selecting", c.State())
	}
}

func TestKioskSingleQueueSkipsSelection(t *testing.T) {
	s := memory.NewStore()
	eventID := seedEvent(t, s)
	queueID := seedQueue(t, s, eventID, "Signing", true)
	c := NewController(s, eventID, Options{ResetDelay: time.Hour})
	defer c.Close()
	ctx := context.Background()

	// With one open queue there is nothing to pick; land on the intake form.
	if c.State() != StateIntake {
		t.Fatalf("state = %s, want intake", c.State())
	}
	ticket, err := c.Submit(ctx, JoinForm{Name: "Dana"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ticket.QueueID != queueID {
		t.Fatalf("ticket joined %s, want %s", ticket.QueueID, queueID)
	}
	c.Advance()
	if c.State() != StateIntake {
		t.Fatalf("reset landed on %s, want intake", c.State())
	}
	if _, err := c.Submit(ctx, JoinForm{Name: "Eli"}); err != nil {
		t.Fatalf("Submit after reset: %v", err)
	}

	// A second queue opening brings the selection screen back.
	seedQueue(t, s, eventID, "Sketches", true)
	c.Advance()
	if c.State() != StateSelecting {
		t.Fatalf("reset with two open queues landed on %s, want selecting", c.State())
	}
}

func TestKioskForcedQueueSkipsSelection(t *testing.T) {
	s := memory.NewStore()
	eventID := seedEvent(t, s)
	queueID := seedQueue(t, s, eventID, "Signing", false)
	c := NewController(s, eventID, Options{ForcedQueueID: queueID, ResetDelay: time.Hour})
	defer c.Close()
	ctx := context.Background()

	if c.State() != StateIntake {
		t.Fatalf("state = %s, want intake", c.State())
	}
	// Pinned kiosks may front hidden queues.
	if _, err := c.Submit(ctx, JoinForm{Name: "Dana"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Advance()
	if c.State() != StateIntake {
		t.Fatalf("forced kiosk reset to %s, want intake", c.State())
	}
}

func TestKioskGuardsTransitions(t *testing.T) {
	s := memory.NewStore()
	eventID := seedEvent(t, s)
	queueID := seedQueue(t, s, eventID, "Signing", true)
	seedQueue(t, s, eventID, "Sketches", true)
	c := NewController(s, eventID, Options{ResetDelay: time.Hour})
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Submit(ctx, JoinForm{Name: "x"}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("submit while selecting err = %v", err)
	}
	if err := c.SelectQueue(ctx, "missing"); !errors.Is(err, store.ErrQueueNotFound) {
		t.Fatalf("select missing queue err = %v", err)
	}

	if _, err := s.SetQueueStatus(ctx, queueID, models.QueueClosed); err != nil {
		t.Fatalf("SetQueueStatus: %v", err)
	}
	if err := c.SelectQueue(ctx, queueID); !errors.Is(err, store.ErrQueueClosed) {
		t.Fatalf("select closed queue err = %v", err)
	}
}
