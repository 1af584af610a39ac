package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angiediaz0209/artistline/internal/models"
)

type CreateEventInput struct {
	OrganizerID string
	Name        string
	Location    string
	Date        time.Time
}

type CreateQueueInput struct {
	EventID           string
	Name              string
	IsVisible         bool
	AvgServiceMinutes int
}

type JoinInput struct {
	RequestID          string
	QueueID            string
	Name               string
	GuestName          string
	Phone              string
	Email              string
	PushToken          string
	NotificationMethod string
	Channel            string
	JoinedAt           time.Time
}

type CallNextInput struct {
	RequestID string
	QueueID   string
	CalledAt  time.Time
}

type RespondInput struct {
	CustomerID  string
	Response    string
	RespondedAt time.Time
}

type EnqueueInput struct {
	CustomerID  string
	Trigger     string
	TriggeredBy string
}

// Store is the engine's durable surface. JoinQueue and CallNext return a
// second bool reporting whether the call was applied (false when an earlier
// submission with the same RequestID already was).
type Store interface {
	CreateEvent(ctx context.Context, input CreateEventInput) (models.Event, error)
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	CompleteEvent(ctx context.Context, eventID string) (models.Event, error)

	CreateQueue(ctx context.Context, input CreateQueueInput) (models.Queue, error)
	GetQueue(ctx context.Context, queueID string) (models.Queue, error)
	ListOpenQueues(ctx context.Context, eventID string) ([]models.Queue, error)
	SetQueueStatus(ctx context.Context, queueID, status string) (models.Queue, error)
	DeleteQueue(ctx context.Context, queueID string) error

	JoinQueue(ctx context.Context, input JoinInput) (models.Customer, bool, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Customer, bool, error)
	RespondToCall(ctx context.Context, input RespondInput) (models.Customer, error)
	RemoveCustomer(ctx context.Context, customerID string) error
	GetCustomer(ctx context.Context, customerID string) (models.Customer, error)
	ListCustomers(ctx context.Context, queueID string) ([]models.Customer, error)
	GetSnapshot(ctx context.Context, queueID string) (models.Snapshot, error)

	EnqueueNotification(ctx context.Context, input EnqueueInput) (models.NotificationRequest, error)
	ListPendingNotifications(ctx context.Context, limit int) ([]models.NotificationRequest, error)
	MarkNotificationSent(ctx context.Context, notificationID string) error
	// MarkNotificationFailed records one failed attempt. The request stays
	// pending for the next scan cycle unless final is set.
	MarkNotificationFailed(ctx context.Context, notificationID, lastError string, final bool) error

	ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]OutboxEvent, error)
	LatestOutboxSeq(ctx context.Context) (int64, error)
	GetNotifyOffset(ctx context.Context) (int64, error)
	UpdateNotifyOffset(ctx context.Context, seq int64) error

	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	EventCustomerCreated = "customer.created"
	EventCustomerCalled  = "customer.called"
	EventCustomerComing  = "customer.coming"
	EventCustomerRemoved = "customer.removed"
	EventQueueUpdated    = "queue.updated"
)
