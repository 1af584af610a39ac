// Package memory implements store.Store entirely in process memory. A single
// mutex serializes every operation, so each call is linearizable; it backs the
// kiosk controller and any deployment without a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
)

type actionResult struct {
	customerID string
	empty      bool
}

type Store struct {
	mu sync.Mutex

	events        map[string]*models.Event
	queues        map[string]*models.Queue
	customers     map[string]*models.Customer
	byRequestID   map[string]string       // join request_id -> customer_id
	actions       map[string]actionResult // action + "\x00" + request_id
	notifications map[string]*models.NotificationRequest
	outbox        []store.OutboxEvent
	outboxSeq     int64
	sessions      map[string]store.Session
	notifyOffset  int64
}

func NewStore() *Store {
	return &Store{
		events:        make(map[string]*models.Event),
		queues:        make(map[string]*models.Queue),
		customers:     make(map[string]*models.Customer),
		byRequestID:   make(map[string]string),
		actions:       make(map[string]actionResult),
		notifications: make(map[string]*models.NotificationRequest),
		sessions:      make(map[string]store.Session),
	}
}

func (s *Store) CreateEvent(ctx context.Context, input store.CreateEventInput) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event := models.Event{
		EventID:     uuid.NewString(),
		OrganizerID: input.OrganizerID,
		Name:        input.Name,
		Location:    input.Location,
		Date:        input.Date,
		Status:      models.EventActive,
		CreatedAt:   time.Now().UTC(),
	}
	s.events[event.EventID] = &event
	return event, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return models.Event{}, store.ErrEventNotFound
	}
	return *event, nil
}

func (s *Store) CompleteEvent(ctx context.Context, eventID string) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return models.Event{}, store.ErrEventNotFound
	}
	if event.Status != models.EventCompleted {
		event.Status = models.EventCompleted
		for _, queue := range s.queues {
			if queue.EventID == eventID && queue.Status != models.QueueClosed {
				queue.Status = models.QueueClosed
				s.appendQueueUpdated(*queue)
			}
		}
	}
	return *event, nil
}

func (s *Store) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[input.EventID]
	if !ok {
		return models.Queue{}, store.ErrEventNotFound
	}
	if event.Status == models.EventCompleted {
		return models.Queue{}, store.ErrEventCompleted
	}
	queue := models.Queue{
		QueueID:           uuid.NewString(),
		EventID:           input.EventID,
		Name:              input.Name,
		IsVisible:         input.IsVisible,
		Status:            models.QueueOpen,
		AvgServiceMinutes: input.AvgServiceMinutes,
		CreatedAt:         time.Now().UTC(),
	}
	s.queues[queue.QueueID] = &queue
	return queue, nil
}

func (s *Store) GetQueue(ctx context.Context, queueID string) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	return *queue, nil
}

func (s *Store) ListOpenQueues(ctx context.Context, eventID string) ([]models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queues []models.Queue
	for _, queue := range s.queues {
		if queue.EventID == eventID && queue.IsVisible && queue.Status == models.QueueOpen {
			queues = append(queues, *queue)
		}
	}
	sort.Slice(queues, func(i, j int) bool {
		return queues[i].CreatedAt.Before(queues[j].CreatedAt)
	})
	return queues, nil
}

func (s *Store) SetQueueStatus(ctx context.Context, queueID, status string) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	queue.Status = status
	s.appendQueueUpdated(*queue)
	return *queue, nil
}

func (s *Store) DeleteQueue(ctx context.Context, queueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[queueID]; !ok {
		return store.ErrQueueNotFound
	}
	delete(s.queues, queueID)
	for id, customer := range s.customers {
		if customer.QueueID == queueID {
			delete(s.byRequestID, customer.RequestID)
			delete(s.customers, id)
		}
	}
	return nil
}

func (s *Store) JoinQueue(ctx context.Context, input store.JoinInput) (models.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byRequestID[input.RequestID]; ok {
		return *s.customers[id], false, nil
	}
	queue, ok := s.queues[input.QueueID]
	if !ok {
		return models.Customer{}, false, store.ErrQueueNotFound
	}
	if queue.Status != models.QueueOpen {
		return models.Customer{}, false, store.ErrQueueClosed
	}
	if !queue.IsVisible && input.Channel != "staff" {
		return models.Customer{}, false, store.ErrQueueNotVisible
	}

	queue.LastNumber++
	queue.WaitingCount++

	joinedAt := input.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	customer := models.Customer{
		CustomerID:         uuid.NewString(),
		QueueID:            queue.QueueID,
		EventID:            queue.EventID,
		Number:             queue.LastNumber,
		Name:               input.Name,
		GuestName:          input.GuestName,
		Phone:              input.Phone,
		Email:              input.Email,
		PushToken:          input.PushToken,
		NotificationMethod: input.NotificationMethod,
		Status:             models.StatusWaiting,
		RequestID:          input.RequestID,
		JoinedAt:           joinedAt,
	}
	if customer.NotificationMethod == "" {
		customer.NotificationMethod = models.MethodNone
	}
	s.customers[customer.CustomerID] = &customer
	s.byRequestID[input.RequestID] = customer.CustomerID

	if event, ok := s.events[queue.EventID]; ok {
		event.TotalCustomers++
	}
	s.appendCustomerEvent(store.EventCustomerCreated, customer, *queue)
	return customer, true, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := "call_next\x00" + input.RequestID
	if prior, ok := s.actions[key]; ok {
		if prior.empty {
			return models.Customer{}, false, store.ErrQueueEmpty
		}
		return *s.customers[prior.customerID], false, nil
	}
	queue, ok := s.queues[input.QueueID]
	if !ok {
		return models.Customer{}, false, store.ErrQueueNotFound
	}

	var next *models.Customer
	for _, customer := range s.customers {
		if customer.QueueID != queue.QueueID || !store.ValidTransition(store.ActionCallNext, customer.Status) {
			continue
		}
		if next == nil || customer.Number < next.Number {
			next = customer
		}
	}
	if next == nil {
		s.actions[key] = actionResult{empty: true}
		return models.Customer{}, false, store.ErrQueueEmpty
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	next.Status = models.StatusCalled
	next.CalledAt = &calledAt

	queue.CurrentNumber = next.Number
	if queue.WaitingCount > 0 {
		queue.WaitingCount--
	}
	queue.TotalServed++

	s.actions[key] = actionResult{customerID: next.CustomerID}
	s.appendCustomerEvent(store.EventCustomerCalled, *next, *queue)
	return *next, true, nil
}

func (s *Store) RespondToCall(ctx context.Context, input store.RespondInput) (models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[input.CustomerID]
	if !ok {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	action := store.ActionConfirm
	if input.Response == models.ResponseDeclined {
		action = store.ActionDecline
	}
	if !store.ValidTransition(action, customer.Status) {
		return models.Customer{}, store.ErrInvalidTransition
	}

	respondedAt := input.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = time.Now().UTC()
	}
	eventType := store.EventCustomerComing
	if action == store.ActionDecline {
		customer.Status = models.StatusRemoved
		customer.Response = models.ResponseDeclined
		eventType = store.EventCustomerRemoved
	} else {
		customer.Status = models.StatusComing
		customer.Response = models.ResponseComing
	}
	customer.RespondedAt = &respondedAt

	queue := s.queues[customer.QueueID]
	s.appendCustomerEvent(eventType, *customer, *queue)
	return *customer, nil
}

func (s *Store) RemoveCustomer(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	if customer.Status == models.StatusRemoved {
		return nil
	}
	if !store.ValidTransition(store.ActionRemove, customer.Status) {
		return store.ErrInvalidTransition
	}
	wasWaiting := customer.Status == models.StatusWaiting
	customer.Status = models.StatusRemoved

	queue := s.queues[customer.QueueID]
	if wasWaiting && queue.WaitingCount > 0 {
		queue.WaitingCount--
	}
	s.appendCustomerEvent(store.EventCustomerRemoved, *customer, *queue)
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, queueID string) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var customers []models.Customer
	for _, customer := range s.customers {
		if customer.QueueID == queueID && customer.Status != models.StatusRemoved {
			customers = append(customers, *customer)
		}
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].Number < customers[j].Number
	})
	return customers, nil
}

func (s *Store) GetSnapshot(ctx context.Context, queueID string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Snapshot{}, store.ErrQueueNotFound
	}
	return snapshotOf(*queue), nil
}

func (s *Store) EnqueueNotification(ctx context.Context, input store.EnqueueInput) (models.NotificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[input.CustomerID]
	if !ok {
		return models.NotificationRequest{}, store.ErrCustomerNotFound
	}
	queueName := ""
	if queue, ok := s.queues[customer.QueueID]; ok {
		queueName = queue.Name
	}
	method, target := store.ResolveContact(*customer)
	if method == models.MethodNone || target == "" {
		return models.NotificationRequest{}, store.ErrNoContactInfo
	}

	request := models.NotificationRequest{
		NotificationID: uuid.NewString(),
		CustomerID:     customer.CustomerID,
		QueueID:        customer.QueueID,
		EventID:        customer.EventID,
		Method:         method,
		Target:         target,
		Message:        store.CallMessage(*customer, queueName),
		Trigger:        input.Trigger,
		Status:         models.NotificationPending,
		CreatedAt:      time.Now().UTC(),
	}
	s.notifications[request.NotificationID] = &request
	return request, nil
}

func (s *Store) ListPendingNotifications(ctx context.Context, limit int) ([]models.NotificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.NotificationRequest
	for _, request := range s.notifications {
		if request.Status == models.NotificationPending {
			pending = append(pending, *request)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.notifications[notificationID]
	if !ok {
		return nil
	}
	request.Status = models.NotificationSent
	request.Attempts++
	return nil
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, lastError string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.notifications[notificationID]
	if !ok {
		return nil
	}
	if final {
		request.Status = models.NotificationFailed
	}
	request.Attempts++
	request.LastError = lastError
	return nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []store.OutboxEvent
	for _, event := range s.outbox {
		if event.Seq > afterSeq {
			events = append(events, event)
		}
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) LatestOutboxSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outboxSeq, nil
}

func (s *Store) GetNotifyOffset(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyOffset, nil
}

func (s *Store) UpdateNotifyOffset(ctx context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyOffset = seq
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || time.Now().After(session.ExpiresAt) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

// PutSession seeds a session for tests and single-node deployments.
func (s *Store) PutSession(session store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
}

func snapshotOf(queue models.Queue) models.Snapshot {
	return models.Snapshot{
		QueueID:       queue.QueueID,
		EventID:       queue.EventID,
		Name:          queue.Name,
		Status:        queue.Status,
		CurrentNumber: queue.CurrentNumber,
		WaitingCount:  queue.WaitingCount,
		TotalServed:   queue.TotalServed,
	}
}

func (s *Store) appendCustomerEvent(eventType string, customer models.Customer, queue models.Queue) {
	payload, err := json.Marshal(map[string]interface{}{
		"customer_id":         customer.CustomerID,
		"queue_id":            customer.QueueID,
		"event_id":            customer.EventID,
		"number":              customer.Number,
		"status":              customer.Status,
		"name":                customer.Name,
		"guest_name":          customer.GuestName,
		"phone":               customer.Phone,
		"email":               customer.Email,
		"notification_method": customer.NotificationMethod,
		"queue":               snapshotOf(queue),
	})
	if err != nil {
		return
	}
	s.outboxSeq++
	s.outbox = append(s.outbox, store.OutboxEvent{
		Seq:       s.outboxSeq,
		EventID:   uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Store) appendQueueUpdated(queue models.Queue) {
	payload, err := json.Marshal(map[string]interface{}{
		"queue_id": queue.QueueID,
		"event_id": queue.EventID,
		"queue":    snapshotOf(queue),
	})
	if err != nil {
		return
	}
	s.outboxSeq++
	s.outbox = append(s.outbox, store.OutboxEvent{
		Seq:       s.outboxSeq,
		EventID:   uuid.NewString(),
		Type:      store.EventQueueUpdated,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}
