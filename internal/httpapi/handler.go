package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
)

type Handler struct {
	store             store.Store
	waitBufferSeconds int
}

type Options struct {
	WaitBufferSeconds int
}

func NewHandler(st store.Store, options Options) *Handler {
	return &Handler{
		store:             st,
		waitBufferSeconds: options.WaitBufferSeconds,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/events/", h.handleEventSubroutes)
	mux.HandleFunc("/api/queues", h.handleQueues)
	mux.HandleFunc("/api/queues/", h.handleQueueSubroutes)
	mux.HandleFunc("/api/customers/", h.handleCustomerSubroutes)
	return mux
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createEventRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Date     string `json:"date"`
}

type createQueueRequest struct {
	EventID           string `json:"event_id"`
	Name              string `json:"name"`
	IsVisible         *bool  `json:"is_visible"`
	AvgServiceMinutes int    `json:"avg_service_minutes"`
}

type joinRequest struct {
	RequestID          string `json:"request_id"`
	Name               string `json:"name"`
	GuestName          string `json:"guest_name"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	PushToken          string `json:"push_token"`
	NotificationMethod string `json:"notification_method"`
}

type callNextRequest struct {
	RequestID string `json:"request_id"`
}

type respondRequest struct {
	Response string `json:"response"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req createEventRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	req.Date = strings.TrimSpace(req.Date)
	if req.Name == "" || req.Date == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "name and date are required")
		return
	}
	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be RFC3339 timestamp")
		return
	}

	event, err := h.store.CreateEvent(r.Context(), store.CreateEventInput{
		OrganizerID: session.UserID,
		Name:        req.Name,
		Location:    req.Location,
		Date:        date,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) handleEventSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/events/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetEvent(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "complete" && r.Method == http.MethodPost:
		h.handleCompleteEvent(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	if !isValidUUID(eventID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id must be a UUID")
		return
	}
	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) handleCompleteEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	if !isValidUUID(eventID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id must be a UUID")
		return
	}
	if !h.requireOrganizer(w, r, eventID) {
		return
	}
	event, err := h.store.CompleteEvent(r.Context(), eventID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateQueue(w, r)
	case http.MethodGet:
		h.handleListQueues(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.Name = strings.TrimSpace(req.Name)
	if req.EventID == "" || req.Name == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id and name are required")
		return
	}
	if !isValidUUID(req.EventID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id must be a UUID")
		return
	}
	if req.AvgServiceMinutes < 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "avg_service_minutes must not be negative")
		return
	}
	if !h.requireOrganizer(w, r, req.EventID) {
		return
	}

	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}
	queue, err := h.store.CreateQueue(r.Context(), store.CreateQueueInput{
		EventID:           req.EventID,
		Name:              req.Name,
		IsVisible:         visible,
		AvgServiceMinutes: req.AvgServiceMinutes,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleListQueues(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.URL.Query().Get("event_id"))
	if eventID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id is required")
		return
	}
	if !isValidUUID(eventID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "event_id must be a UUID")
		return
	}
	queues, err := h.store.ListOpenQueues(r.Context(), eventID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if queues == nil {
		queues = []models.Queue{}
	}
	writeJSON(w, http.StatusOK, queues)
}

func (h *Handler) handleQueueSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queues/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	queueID := parts[0]
	if !isValidUUID(queueID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "queue_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDeleteQueue(w, r, queueID)
	case len(parts) == 2 && parts[1] == "join" && r.Method == http.MethodPost:
		h.handleJoin(w, r, queueID)
	case len(parts) == 2 && parts[1] == "snapshot" && r.Method == http.MethodGet:
		h.handleSnapshot(w, r, queueID)
	case len(parts) == 2 && parts[1] == "customers" && r.Method == http.MethodGet:
		h.handleListCustomers(w, r, queueID)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		h.handleQueueAction(w, r, queueID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleDeleteQueue(w http.ResponseWriter, r *http.Request, queueID string) {
	if !h.requireQueueOrganizer(w, r, queueID) {
		return
	}
	if err := h.store.DeleteQueue(r.Context(), queueID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, queueID string) {
	var req joinRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Name = strings.TrimSpace(req.Name)
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.PushToken = strings.TrimSpace(req.PushToken)
	req.NotificationMethod = strings.TrimSpace(req.NotificationMethod)

	if req.RequestID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.Name == "" && req.GuestName == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "name or guest_name is required")
		return
	}
	switch req.NotificationMethod {
	case "", models.MethodNone, models.MethodSMS, models.MethodEmail, models.MethodPush:
	default:
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "notification_method must be sms, email, push, or none")
		return
	}

	// Authenticated staff may join walk-ups into hidden queues.
	channel := "web"
	if _, ok := sessionFromContext(r.Context()); ok {
		channel = "staff"
	}

	customer, _, err := h.store.JoinQueue(r.Context(), store.JoinInput{
		RequestID:          req.RequestID,
		QueueID:            queueID,
		Name:               req.Name,
		GuestName:          req.GuestName,
		Phone:              req.Phone,
		Email:              req.Email,
		PushToken:          req.PushToken,
		NotificationMethod: req.NotificationMethod,
		Channel:            channel,
		JoinedAt:           time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request, queueID string) {
	snapshot, err := h.store.GetSnapshot(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request, queueID string) {
	if !h.requireQueueOrganizer(w, r, queueID) {
		return
	}
	customers, err := h.store.ListCustomers(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *Handler) handleQueueAction(w http.ResponseWriter, r *http.Request, queueID, action string) {
	switch action {
	case "open", "close":
		if !h.requireQueueOrganizer(w, r, queueID) {
			return
		}
		status := models.QueueOpen
		if action == "close" {
			status = models.QueueClosed
		}
		queue, err := h.store.SetQueueStatus(r.Context(), queueID, status)
		if err != nil {
			st, code, msg := mapError(err)
			writeError(w, "", st, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	case "call-next":
		h.handleCallNext(w, r, queueID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request, queueID string) {
	if !h.requireQueueOrganizer(w, r, queueID) {
		return
	}
	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	customer, _, err := h.store.CallNext(r.Context(), store.CallNextInput{
		RequestID: req.RequestID,
		QueueID:   queueID,
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleCustomerSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/customers/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	customerID := parts[0]
	if !isValidUUID(customerID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "customer_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetCustomer(w, r, customerID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleRemoveCustomer(w, r, customerID)
	case len(parts) == 2 && parts[1] == "respond" && r.Method == http.MethodPost:
		h.handleRespond(w, r, customerID)
	case len(parts) == 2 && parts[1] == "position" && r.Method == http.MethodGet:
		h.handlePosition(w, r, customerID)
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "resend" && r.Method == http.MethodPost:
		h.handleResend(w, r, customerID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request, customerID string) {
	customer, err := h.store.GetCustomer(r.Context(), customerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handleRemoveCustomer(w http.ResponseWriter, r *http.Request, customerID string) {
	if err := h.store.RemoveCustomer(r.Context(), customerID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request, customerID string) {
	var req respondRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Response = strings.TrimSpace(req.Response)
	if req.Response != models.ResponseComing && req.Response != models.ResponseDeclined {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "response must be coming or declined")
		return
	}

	customer, err := h.store.RespondToCall(r.Context(), store.RespondInput{
		CustomerID:  customerID,
		Response:    req.Response,
		RespondedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request, customerID string) {
	customer, err := h.store.GetCustomer(r.Context(), customerID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	queue, err := h.store.GetQueue(r.Context(), customer.QueueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, store.PositionOf(customer, queue, h.waitBufferSeconds))
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request, customerID string) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	request, err := h.store.EnqueueNotification(r.Context(), store.EnqueueInput{
		CustomerID:  customerID,
		Trigger:     models.TriggerResend,
		TriggeredBy: session.UserID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) requireOrganizer(w http.ResponseWriter, r *http.Request, eventID string) bool {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return false
	}
	if event.OrganizerID != session.UserID {
		writeError(w, "", http.StatusForbidden, "access_denied", "event belongs to another organizer")
		return false
	}
	return true
}

func (h *Handler) requireQueueOrganizer(w http.ResponseWriter, r *http.Request, queueID string) bool {
	queue, err := h.store.GetQueue(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return false
	}
	return h.requireOrganizer(w, r, queue.EventID)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found", "event not found"
	case errors.Is(err, store.ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found", "queue not found"
	case errors.Is(err, store.ErrQueueNotVisible):
		// Hidden queues look like missing queues to public traffic.
		return http.StatusNotFound, "queue_not_found", "queue not found"
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrQueueClosed):
		return http.StatusConflict, "queue_closed", "queue is closed"
	case errors.Is(err, store.ErrQueueEmpty):
		return http.StatusConflict, "queue_empty", "no customers waiting"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "customer state does not allow this action"
	case errors.Is(err, store.ErrNoContactInfo):
		return http.StatusConflict, "no_contact_info", "customer has no usable contact info"
	case errors.Is(err, store.ErrEventCompleted):
		return http.StatusConflict, "event_completed", "event already completed"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
