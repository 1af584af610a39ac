package models

import "time"

type Event struct {
	EventID        string    `json:"event_id"`
	OrganizerID    string    `json:"organizer_id,omitempty"`
	Name           string    `json:"name"`
	Location       string    `json:"location,omitempty"`
	Date           time.Time `json:"date"`
	Status         string    `json:"status"`
	TotalCustomers int       `json:"total_customers"`
	CreatedAt      time.Time `json:"created_at"`
}

type Queue struct {
	QueueID           string    `json:"queue_id"`
	EventID           string    `json:"event_id"`
	Name              string    `json:"name"`
	IsVisible         bool      `json:"is_visible"`
	Status            string    `json:"status"`
	LastNumber        int       `json:"last_number"`
	CurrentNumber     int       `json:"current_number"`
	WaitingCount      int       `json:"waiting_count"`
	TotalServed       int       `json:"total_served"`
	AvgServiceMinutes int       `json:"avg_service_minutes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type Customer struct {
	CustomerID         string     `json:"customer_id"`
	QueueID            string     `json:"queue_id"`
	EventID            string     `json:"event_id,omitempty"`
	Number             int        `json:"number"`
	Name               string     `json:"name"`
	GuestName          string     `json:"guest_name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Email              string     `json:"email,omitempty"`
	PushToken          string     `json:"push_token,omitempty"`
	NotificationMethod string     `json:"notification_method"`
	Status             string     `json:"status"`
	Response           string     `json:"response,omitempty"`
	RequestID          string     `json:"request_id,omitempty"`
	JoinedAt           time.Time  `json:"joined_at"`
	CalledAt           *time.Time `json:"called_at,omitempty"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
}

type NotificationRequest struct {
	NotificationID string    `json:"notification_id"`
	CustomerID     string    `json:"customer_id"`
	QueueID        string    `json:"queue_id"`
	EventID        string    `json:"event_id,omitempty"`
	Method         string    `json:"method"`
	Target         string    `json:"target"`
	Message        string    `json:"message"`
	Trigger        string    `json:"trigger"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Snapshot is the denormalized queue view pushed to subscribers.
type Snapshot struct {
	QueueID       string `json:"queue_id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	CurrentNumber int    `json:"current_number"`
	WaitingCount  int    `json:"waiting_count"`
	TotalServed   int    `json:"total_served"`
}

type Position struct {
	Position             int  `json:"position"`
	EstimatedWaitSeconds int  `json:"estimated_wait_seconds"`
	Soon                 bool `json:"soon"`
}

const (
	StatusWaiting = "waiting"
	StatusCalled  = "called"
	StatusComing  = "coming"
	StatusRemoved = "removed"
)

const (
	ResponseComing   = "coming"
	ResponseDeclined = "declined"
)

const (
	QueueOpen   = "open"
	QueueClosed = "closed"
)

const (
	EventActive    = "active"
	EventCompleted = "completed"
)

const (
	MethodSMS   = "sms"
	MethodEmail = "email"
	MethodPush  = "push"
	MethodNone  = "none"
)

const (
	TriggerAutoCall = "auto_call"
	TriggerResend   = "resend"
)

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)
