// Package notify turns call events into outbound messages. The worker tails
// the outbox, enqueues a notification request for every called customer, and
// drains pending requests through the configured providers. Delivery runs
// outside the call transaction, so a slow or failing provider never stalls a
// staff console.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
)

type Worker struct {
	store       store.Store
	batchSize   int
	maxAttempts int
	providers   map[string]Provider
}

type Config struct {
	BatchSize     int
	MaxAttempts   int
	SMSProvider   string
	EmailProvider string
	PushProvider  string
}

func New(st store.Store, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		store:       st,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		providers: map[string]Provider{
			models.MethodSMS:   newProvider(cfg.SMSProvider, models.MethodSMS),
			models.MethodEmail: newProvider(cfg.EmailProvider, models.MethodEmail),
			models.MethodPush:  newProvider(cfg.PushProvider, models.MethodPush),
		},
	}
}

// Run performs one scan-and-drain cycle.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.enqueueFromOutbox(ctx); err != nil {
		return err
	}
	return w.drainPending(ctx)
}

func (w *Worker) enqueueFromOutbox(ctx context.Context) error {
	last, err := w.store.GetNotifyOffset(ctx)
	if err != nil {
		return err
	}
	events, err := w.store.ListOutboxEvents(ctx, last, w.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.Type == store.EventCustomerCalled {
			w.enqueueCall(ctx, event)
		}
		last = event.Seq
	}
	if len(events) > 0 {
		if err := w.store.UpdateNotifyOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) enqueueCall(ctx context.Context, event store.OutboxEvent) {
	var payload struct {
		CustomerID string `json:"customer_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.CustomerID == "" {
		log.Printf("notify: bad outbox payload %s: %v", event.EventID, err)
		return
	}
	_, err := w.store.EnqueueNotification(ctx, store.EnqueueInput{
		CustomerID: payload.CustomerID,
		Trigger:    models.TriggerAutoCall,
	})
	switch {
	case errors.Is(err, store.ErrNoContactInfo):
		// Walk-ups without contact info are legal; the wall display covers them.
	case errors.Is(err, store.ErrCustomerNotFound):
		log.Printf("notify: customer %s gone before enqueue", payload.CustomerID)
	case err != nil:
		log.Printf("notify: enqueue for %s: %v", payload.CustomerID, err)
	}
}

func (w *Worker) drainPending(ctx context.Context) error {
	pending, err := w.store.ListPendingNotifications(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, request := range pending {
		if err := w.deliver(ctx, request); err != nil {
			// One attempt per cycle; the request stays pending until the
			// attempt budget is spent, so retries are paced by the scan
			// interval instead of hammering the provider.
			final := request.Attempts+1 >= w.maxAttempts
			log.Printf("notify: %s to %s failed (attempt %d/%d): %v", request.Method, request.Target, request.Attempts+1, w.maxAttempts, err)
			if err := w.store.MarkNotificationFailed(ctx, request.NotificationID, err.Error(), final); err != nil {
				return err
			}
			continue
		}
		if err := w.store.MarkNotificationSent(ctx, request.NotificationID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, request models.NotificationRequest) error {
	provider, ok := w.providers[request.Method]
	if !ok {
		return fmt.Errorf("no provider for method %q", request.Method)
	}
	return provider.Send(ctx, request.Message, request.Target)
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.Printf("notify worker error: %v", err)
			}
		}
	}
}
