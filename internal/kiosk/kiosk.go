// Package kiosk drives the self-service terminal state machine: pick a queue,
// fill in the intake form, show the ticket, then reset for the next person.
package kiosk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
)

type State string

const (
	StateSelecting State = "selecting"
	StateIntake    State = "intake"
	StateConfirmed State = "confirmed"
)

const defaultResetDelay = 10 * time.Second

type Options struct {
	// ForcedQueueID pins the kiosk to one queue and skips selection.
	ForcedQueueID string
	ResetDelay    time.Duration
}

type JoinForm struct {
	Name               string
	GuestName          string
	Phone              string
	Email              string
	PushToken          string
	NotificationMethod string
}

type Controller struct {
	store      store.Store
	eventID    string
	forced     string
	resetDelay time.Duration

	mu         sync.Mutex
	state      State
	queueID    string
	lastTicket models.Customer
	hasTicket  bool
	timer      *time.Timer
}

func NewController(st store.Store, eventID string, opts Options) *Controller {
	delay := opts.ResetDelay
	if delay <= 0 {
		delay = defaultResetDelay
	}
	c := &Controller{
		store:      st,
		eventID:    eventID,
		forced:     opts.ForcedQueueID,
		resetDelay: delay,
	}
	c.state, c.queueID = c.landing(context.Background())
	return c
}

// landing picks the screen an idle kiosk shows. A pinned kiosk always sits on
// the intake form, and a sole open queue needs no selection step either.
func (c *Controller) landing(ctx context.Context) (State, string) {
	if c.forced != "" {
		return StateIntake, c.forced
	}
	queues, err := c.store.ListOpenQueues(ctx, c.eventID)
	if err == nil && len(queues) == 1 {
		return StateIntake, queues[0].QueueID
	}
	return StateSelecting, ""
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Queues lists what the selection screen offers.
func (c *Controller) Queues(ctx context.Context) ([]models.Queue, error) {
	return c.store.ListOpenQueues(ctx, c.eventID)
}

func (c *Controller) SelectQueue(ctx context.Context, queueID string) error {
	queue, err := c.store.GetQueue(ctx, queueID)
	if err != nil {
		return err
	}
	if queue.Status != models.QueueOpen {
		return store.ErrQueueClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSelecting {
		return store.ErrInvalidTransition
	}
	c.queueID = queueID
	c.state = StateIntake
	return nil
}

// Submit joins the selected queue and arms the reset countdown. The ticket is
// durable the moment the store accepts it; a later reset only clears the
// screen, it never retracts the ticket.
func (c *Controller) Submit(ctx context.Context, form JoinForm) (models.Customer, error) {
	c.mu.Lock()
	if c.state != StateIntake {
		c.mu.Unlock()
		return models.Customer{}, store.ErrInvalidTransition
	}
	queueID := c.queueID
	c.mu.Unlock()

	channel := "kiosk"
	if c.forced != "" {
		// A pinned kiosk is staff-provisioned and may front a hidden queue.
		channel = "staff"
	}
	customer, _, err := c.store.JoinQueue(ctx, store.JoinInput{
		RequestID:          uuid.NewString(),
		QueueID:            queueID,
		Name:               form.Name,
		GuestName:          form.GuestName,
		Phone:              form.Phone,
		Email:              form.Email,
		PushToken:          form.PushToken,
		NotificationMethod: form.NotificationMethod,
		Channel:            channel,
	})
	if err != nil {
		return models.Customer{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateConfirmed
	c.lastTicket = customer
	c.hasTicket = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.resetDelay, c.reset)
	return customer, nil
}

// Advance resets immediately instead of waiting out the countdown.
func (c *Controller) Advance() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.reset()
}

func (c *Controller) LastTicket() (models.Customer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTicket, c.hasTicket
}

func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) reset() {
	state, queueID := c.landing(context.Background())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasTicket = false
	c.lastTicket = models.Customer{}
	c.state = state
	c.queueID = queueID
}
