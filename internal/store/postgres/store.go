package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateEvent(ctx context.Context, input store.CreateEventInput) (models.Event, error) {
	eventID := uuid.NewString()
	createdAt := time.Now().UTC()

	var event models.Event
	row := s.pool.QueryRow(ctx, `
		INSERT INTO events (event_id, organizer_id, name, location, date, status, total_customers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		RETURNING event_id, organizer_id, name, location, date, status, total_customers, created_at
	`, eventID, input.OrganizerID, input.Name, input.Location, input.Date, models.EventActive, createdAt)
	if err := scanEvent(row, &event); err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	var event models.Event
	row := s.pool.QueryRow(ctx, `
		SELECT event_id, organizer_id, name, location, date, status, total_customers, created_at
		FROM events
		WHERE event_id = $1
	`, eventID)
	if err := scanEvent(row, &event); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, store.ErrEventNotFound
		}
		return models.Event{}, err
	}
	return event, nil
}

// CompleteEvent marks the event completed and closes its queues. Completion
// is forward-only and idempotent.
func (s *Store) CompleteEvent(ctx context.Context, eventID string) (models.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Event{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var event models.Event
	row := tx.QueryRow(ctx, `
		UPDATE events
		SET status = $2
		WHERE event_id = $1
		RETURNING event_id, organizer_id, name, location, date, status, total_customers, created_at
	`, eventID, models.EventCompleted)
	if err = scanEvent(row, &event); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrEventNotFound
		}
		return models.Event{}, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE queues
		SET status = $2
		WHERE event_id = $1 AND status <> $2
		RETURNING queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at
	`, eventID, models.QueueClosed)
	if err != nil {
		return models.Event{}, err
	}
	var closed []models.Queue
	for rows.Next() {
		var queue models.Queue
		if err = scanQueue(rows, &queue); err != nil {
			rows.Close()
			return models.Event{}, err
		}
		closed = append(closed, queue)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return models.Event{}, err
	}
	for _, queue := range closed {
		if err = insertOutboxQueueUpdated(ctx, tx, queue); err != nil {
			return models.Event{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (s *Store) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Queue{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var eventStatus string
	row := tx.QueryRow(ctx, `SELECT status FROM events WHERE event_id = $1`, input.EventID)
	if err = row.Scan(&eventStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, store.ErrEventNotFound
		}
		return models.Queue{}, err
	}
	if eventStatus == models.EventCompleted {
		return models.Queue{}, store.ErrEventCompleted
	}

	queueID := uuid.NewString()
	createdAt := time.Now().UTC()
	var queue models.Queue
	row = tx.QueryRow(ctx, `
		INSERT INTO queues (queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, 0, $6, $7)
		RETURNING queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at
	`, queueID, input.EventID, input.Name, input.IsVisible, models.QueueOpen, input.AvgServiceMinutes, createdAt)
	if err = scanQueue(row, &queue); err != nil {
		return models.Queue{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) GetQueue(ctx context.Context, queueID string) (models.Queue, error) {
	var queue models.Queue
	row := s.pool.QueryRow(ctx, `
		SELECT queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at
		FROM queues
		WHERE queue_id = $1
	`, queueID)
	if err := scanQueue(row, &queue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, store.ErrQueueNotFound
		}
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) ListOpenQueues(ctx context.Context, eventID string) ([]models.Queue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at
		FROM queues
		WHERE event_id = $1 AND is_visible = TRUE AND status = $2
		ORDER BY name ASC
	`, eventID, models.QueueOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []models.Queue
	for rows.Next() {
		var queue models.Queue
		if err := scanQueue(rows, &queue); err != nil {
			return nil, err
		}
		queues = append(queues, queue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *Store) SetQueueStatus(ctx context.Context, queueID, status string) (models.Queue, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Queue{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var queue models.Queue
	row := tx.QueryRow(ctx, `
		UPDATE queues
		SET status = $2
		WHERE queue_id = $1
		RETURNING queue_id, event_id, name, is_visible, status, last_number, current_number, waiting_count, total_served, avg_service_minutes, created_at
	`, queueID, status)
	if err = scanQueue(row, &queue); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, store.ErrQueueNotFound
		}
		return models.Queue{}, err
	}

	if err = insertOutboxQueueUpdated(ctx, tx, queue); err != nil {
		return models.Queue{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) DeleteQueue(ctx context.Context, queueID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queues WHERE queue_id = $1`, queueID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrQueueNotFound
	}
	return nil
}

func (s *Store) JoinQueue(ctx context.Context, input store.JoinInput) (models.Customer, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findCustomerByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Customer{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Customer{}, false, err
		}
		return existing, false, nil
	}

	// Lock the queue row: the read of its state and the bump of last_number
	// below must be one atomic unit per queue.
	var queueStatus string
	var isVisible bool
	var eventID string
	row := tx.QueryRow(ctx, `
		SELECT status, is_visible, event_id
		FROM queues
		WHERE queue_id = $1
		FOR UPDATE
	`, input.QueueID)
	if err = row.Scan(&queueStatus, &isVisible, &eventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, false, store.ErrQueueNotFound
		}
		return models.Customer{}, false, err
	}
	if queueStatus != models.QueueOpen {
		err = store.ErrQueueClosed
		return models.Customer{}, false, err
	}
	if !isVisible && input.Channel != "staff" {
		err = store.ErrQueueNotVisible
		return models.Customer{}, false, err
	}

	var number int
	row = tx.QueryRow(ctx, `
		UPDATE queues
		SET last_number = last_number + 1,
			waiting_count = waiting_count + 1
		WHERE queue_id = $1
		RETURNING last_number
	`, input.QueueID)
	if err = row.Scan(&number); err != nil {
		return models.Customer{}, false, err
	}

	joinedAt := input.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	method := input.NotificationMethod
	if method == "" {
		method = models.MethodNone
	}

	customerID := uuid.NewString()
	var customer models.Customer
	row = tx.QueryRow(ctx, `
		INSERT INTO customers (customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
	`, customerID, input.RequestID, input.QueueID, eventID, number, input.Name, input.GuestName, input.Phone, input.Email, input.PushToken, method, models.StatusWaiting, joinedAt)
	if err = scanCustomer(row, &customer); err != nil {
		return models.Customer{}, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE events
		SET total_customers = total_customers + 1
		WHERE event_id = $1
	`, eventID); err != nil {
		return models.Customer{}, false, err
	}

	if err = insertOutboxCustomer(ctx, tx, store.EventCustomerCreated, customer); err != nil {
		return models.Customer{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, false, err
	}
	return customer, true, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Customer, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Customer{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Customer{}, false, err
		}
		if empty {
			return models.Customer{}, false, store.ErrQueueEmpty
		}
		return existing, false, nil
	}

	// Serialize counter updates per queue.
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT TRUE FROM queues WHERE queue_id = $1 FOR UPDATE
	`, input.QueueID)
	if err = row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, false, store.ErrQueueNotFound
		}
		return models.Customer{}, false, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var customer models.Customer
	row = tx.QueryRow(ctx, `
		WITH next_customer AS (
			SELECT customer_id
			FROM customers
			WHERE queue_id = $1 AND status = ANY($2)
			ORDER BY number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE customers
		SET status = $3,
			called_at = $4
		FROM next_customer
		WHERE customers.customer_id = next_customer.customer_id
		RETURNING customers.customer_id, customers.request_id, customers.queue_id, customers.event_id, customers.number, customers.name, customers.guest_name, customers.phone, customers.email, customers.push_token, customers.notification_method, customers.status, customers.response, customers.joined_at, customers.called_at, customers.responded_at
	`, input.QueueID, store.TransitionSources(store.ActionCallNext), models.StatusCalled, calledAt)
	if err = scanCustomer(row, &customer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, input.QueueID, ""); err != nil {
				return models.Customer{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Customer{}, false, err
			}
			return models.Customer{}, false, store.ErrQueueEmpty
		}
		return models.Customer{}, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE queues
		SET current_number = $2,
			waiting_count = GREATEST(waiting_count - 1, 0),
			total_served = total_served + 1
		WHERE queue_id = $1
	`, input.QueueID, customer.Number); err != nil {
		return models.Customer{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, input.QueueID, customer.CustomerID); err != nil {
		return models.Customer{}, false, err
	}
	if err = insertOutboxCustomer(ctx, tx, store.EventCustomerCalled, customer); err != nil {
		return models.Customer{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, false, err
	}
	return customer, true, nil
}

func (s *Store) RespondToCall(ctx context.Context, input store.RespondInput) (models.Customer, error) {
	action := store.ActionConfirm
	toStatus := models.StatusComing
	response := models.ResponseComing
	eventType := store.EventCustomerComing
	if input.Response == models.ResponseDeclined {
		action = store.ActionDecline
		toStatus = models.StatusRemoved
		response = models.ResponseDeclined
		eventType = store.EventCustomerRemoved
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	respondedAt := input.RespondedAt
	if respondedAt.IsZero() {
		respondedAt = time.Now().UTC()
	}

	var customer models.Customer
	row := tx.QueryRow(ctx, `
		UPDATE customers
		SET status = $2,
			response = $3,
			responded_at = $4
		WHERE customer_id = $1 AND status = ANY($5)
		RETURNING customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
	`, input.CustomerID, toStatus, response, respondedAt, store.TransitionSources(action))
	if err = scanCustomer(row, &customer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, exists, stateErr := loadCustomerStatus(ctx, tx, input.CustomerID)
			if stateErr != nil {
				err = stateErr
				return models.Customer{}, err
			}
			if !exists {
				err = store.ErrCustomerNotFound
				return models.Customer{}, err
			}
			err = store.ErrInvalidTransition
			return models.Customer{}, err
		}
		return models.Customer{}, err
	}

	if err = insertOutboxCustomer(ctx, tx, eventType, customer); err != nil {
		return models.Customer{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) RemoveCustomer(ctx context.Context, customerID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status string
	var queueID string
	row := tx.QueryRow(ctx, `
		SELECT status, queue_id
		FROM customers
		WHERE customer_id = $1
		FOR UPDATE
	`, customerID)
	if err = row.Scan(&status, &queueID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCustomerNotFound
			return err
		}
		return err
	}

	if status == models.StatusRemoved {
		return tx.Commit(ctx)
	}
	if !store.ValidTransition(store.ActionRemove, status) {
		err = store.ErrInvalidTransition
		return err
	}

	var customer models.Customer
	row = tx.QueryRow(ctx, `
		UPDATE customers
		SET status = $2
		WHERE customer_id = $1
		RETURNING customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
	`, customerID, models.StatusRemoved)
	if err = scanCustomer(row, &customer); err != nil {
		return err
	}

	if status == models.StatusWaiting {
		if _, err = tx.Exec(ctx, `
			UPDATE queues
			SET waiting_count = GREATEST(waiting_count - 1, 0)
			WHERE queue_id = $1
		`, queueID); err != nil {
			return err
		}
	}

	if err = insertOutboxCustomer(ctx, tx, store.EventCustomerRemoved, customer); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	var customer models.Customer
	row := s.pool.QueryRow(ctx, `
		SELECT customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
		FROM customers
		WHERE customer_id = $1
	`, customerID)
	if err := scanCustomer(row, &customer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, store.ErrCustomerNotFound
		}
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, queueID string) ([]models.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
		FROM customers
		WHERE queue_id = $1 AND status <> $2
		ORDER BY number ASC
	`, queueID, models.StatusRemoved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var customer models.Customer
		if err := scanCustomer(rows, &customer); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetSnapshot(ctx context.Context, queueID string) (models.Snapshot, error) {
	queue, err := s.GetQueue(ctx, queueID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		QueueID:       queue.QueueID,
		EventID:       queue.EventID,
		Name:          queue.Name,
		Status:        queue.Status,
		CurrentNumber: queue.CurrentNumber,
		WaitingCount:  queue.WaitingCount,
		TotalServed:   queue.TotalServed,
	}, nil
}

func (s *Store) EnqueueNotification(ctx context.Context, input store.EnqueueInput) (models.NotificationRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.NotificationRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var customer models.Customer
	row := tx.QueryRow(ctx, `
		SELECT customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
		FROM customers
		WHERE customer_id = $1
	`, input.CustomerID)
	if err = scanCustomer(row, &customer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCustomerNotFound
			return models.NotificationRequest{}, err
		}
		return models.NotificationRequest{}, err
	}

	var queueName string
	row = tx.QueryRow(ctx, `SELECT name FROM queues WHERE queue_id = $1`, customer.QueueID)
	if err = row.Scan(&queueName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrQueueNotFound
			return models.NotificationRequest{}, err
		}
		return models.NotificationRequest{}, err
	}

	// Contact info is resolved now, not at send time.
	method, target := store.ResolveContact(customer)
	if method == models.MethodNone || target == "" {
		err = store.ErrNoContactInfo
		return models.NotificationRequest{}, err
	}

	notification := models.NotificationRequest{
		NotificationID: uuid.NewString(),
		CustomerID:     customer.CustomerID,
		QueueID:        customer.QueueID,
		EventID:        customer.EventID,
		Method:         method,
		Target:         target,
		Message:        store.CallMessage(customer, queueName),
		Trigger:        input.Trigger,
		Status:         models.NotificationPending,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO notification_requests (notification_id, customer_id, queue_id, event_id, method, target, message, trigger, triggered_by, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)
	`, notification.NotificationID, notification.CustomerID, notification.QueueID, nullIfEmpty(notification.EventID), notification.Method, notification.Target, notification.Message, notification.Trigger, nullIfEmpty(input.TriggeredBy), notification.Status, notification.CreatedAt); err != nil {
		return models.NotificationRequest{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.NotificationRequest{}, err
	}
	return notification, nil
}

func (s *Store) ListPendingNotifications(ctx context.Context, limit int) ([]models.NotificationRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT notification_id, customer_id, queue_id, COALESCE(event_id, ''), method, target, message, trigger, status, attempts, COALESCE(last_error, ''), created_at
		FROM notification_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, models.NotificationPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.NotificationRequest
	for rows.Next() {
		var n models.NotificationRequest
		if err := rows.Scan(&n.NotificationID, &n.CustomerID, &n.QueueID, &n.EventID, &n.Method, &n.Target, &n.Message, &n.Trigger, &n.Status, &n.Attempts, &n.LastError, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_requests
		SET status = $2,
			attempts = attempts + 1
		WHERE notification_id = $1
	`, notificationID, models.NotificationSent)
	return err
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, lastError string, final bool) error {
	status := models.NotificationPending
	if final {
		status = models.NotificationFailed
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_requests
		SET status = $2,
			attempts = attempts + 1,
			last_error = $3
		WHERE notification_id = $1
	`, notificationID, status, lastError)
	return err
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.Seq, &event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) LatestOutboxSeq(ctx context.Context) (int64, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM outbox_events`)
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) GetNotifyOffset(ctx context.Context) (int64, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_seq FROM notify_offsets WHERE id = 1`)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return seq, nil
}

func (s *Store) UpdateNotifyOffset(ctx context.Context, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notify_offsets (id, last_seq)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_seq = EXCLUDED.last_seq
	`, seq)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, expires_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(time.Now().UTC()) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func findCustomerByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Customer, bool, error) {
	var customer models.Customer
	row := tx.QueryRow(ctx, `
		SELECT customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
		FROM customers
		WHERE request_id = $1
	`, requestID)
	if err := scanCustomer(row, &customer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, false, nil
		}
		return models.Customer{}, false, err
	}
	return customer, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Customer, bool, bool, error) {
	var customerID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT customer_id
		FROM action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, false, false, nil
		}
		return models.Customer{}, false, false, err
	}

	if !customerID.Valid || customerID.String == "" {
		return models.Customer{}, true, true, nil
	}

	var customer models.Customer
	row = tx.QueryRow(ctx, `
		SELECT customer_id, request_id, queue_id, event_id, number, name, guest_name, phone, email, push_token, notification_method, status, response, joined_at, called_at, responded_at
		FROM customers
		WHERE customer_id = $1
	`, customerID.String)
	if err := scanCustomer(row, &customer); err != nil {
		return models.Customer{}, false, false, err
	}
	return customer, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, queueID, customerID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, queue_id, customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, action, requestID, queueID, nullIfEmpty(customerID), time.Now().UTC())
	return err
}

func loadCustomerStatus(ctx context.Context, tx pgx.Tx, customerID string) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `SELECT status FROM customers WHERE customer_id = $1`, customerID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func insertOutboxCustomer(ctx context.Context, tx pgx.Tx, eventType string, customer models.Customer) error {
	var snapshot models.Snapshot
	row := tx.QueryRow(ctx, `
		SELECT queue_id, event_id, name, status, current_number, waiting_count, total_served
		FROM queues
		WHERE queue_id = $1
	`, customer.QueueID)
	if err := row.Scan(&snapshot.QueueID, &snapshot.EventID, &snapshot.Name, &snapshot.Status, &snapshot.CurrentNumber, &snapshot.WaitingCount, &snapshot.TotalServed); err != nil {
		return err
	}

	payload := map[string]interface{}{
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
		"queue":               snapshot,
	}
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func insertOutboxQueueUpdated(ctx context.Context, tx pgx.Tx, queue models.Queue) error {
	payload := map[string]interface{}{
		"queue_id": queue.QueueID,
		"event_id": queue.EventID,
		"queue": models.Snapshot{
			QueueID:       queue.QueueID,
			EventID:       queue.EventID,
			Name:          queue.Name,
			Status:        queue.Status,
			CurrentNumber: queue.CurrentNumber,
			WaitingCount:  queue.WaitingCount,
			TotalServed:   queue.TotalServed,
		},
	}
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), store.EventQueueUpdated, payloadJSON, time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner, event *models.Event) error {
	var location sql.NullString
	if err := row.Scan(&event.EventID, &event.OrganizerID, &event.Name, &location, &event.Date, &event.Status, &event.TotalCustomers, &event.CreatedAt); err != nil {
		return err
	}
	if location.Valid {
		event.Location = location.String
	}
	return nil
}

func scanQueue(row rowScanner, queue *models.Queue) error {
	return row.Scan(&queue.QueueID, &queue.EventID, &queue.Name, &queue.IsVisible, &queue.Status, &queue.LastNumber, &queue.CurrentNumber, &queue.WaitingCount, &queue.TotalServed, &queue.AvgServiceMinutes, &queue.CreatedAt)
}

func scanCustomer(row rowScanner, customer *models.Customer) error {
	var guestName sql.NullString
	var phone sql.NullString
	var email sql.NullString
	var pushToken sql.NullString
	var response sql.NullString
	var calledAt sql.NullTime
	var respondedAt sql.NullTime
	if err := row.Scan(&customer.CustomerID, &customer.RequestID, &customer.QueueID, &customer.EventID, &customer.Number, &customer.Name, &guestName, &phone, &email, &pushToken, &customer.NotificationMethod, &customer.Status, &response, &customer.JoinedAt, &calledAt, &respondedAt); err != nil {
		return err
	}
	if guestName.Valid {
		customer.GuestName = guestName.String
	}
	if phone.Valid {
		customer.Phone = phone.String
	}
	if email.Valid {
		customer.Email = email.String
	}
	if pushToken.Valid {
		customer.PushToken = pushToken.String
	}
	if response.Valid {
		customer.Response = response.String
	}
	customer.CalledAt = nullTimePtr(calledAt)
	customer.RespondedAt = nullTimePtr(respondedAt)
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
