package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/angiediaz0209/artistline/internal/models"
	"github.com/angiediaz0209/artistline/internal/store"
)

func newQueue(t *testing.T, s *Store) models.Queue {
	t.Helper()
	ctx := context.Background()
	event, err := s.CreateEvent(ctx, store.CreateEventInput{
		OrganizerID: "org-1",
		Name:        "Comic Fest",
		Date:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	queue, err := s.CreateQueue(ctx, store.CreateQueueInput{
		EventID:   event.EventID,
		Name:      "Artist Alley A",
		IsVisible: true,
	})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return queue
}

func join(t *testing.T, s *Store, queueID, requestID string) models.Customer {
	t.Helper()
	customer, applied, err := s.JoinQueue(context.Background(), store.JoinInput{
		RequestID: requestID,
		QueueID:   queueID,
		Name:      "fan " + requestID,
		Phone:     "+15550100",
	})
	if err != nil {
		t.Fatalf("JoinQueue(%s): %v", requestID, err)
	}
	if !applied {
		t.Fatalf("JoinQueue(%s): expected applied", requestID)
	}
	return customer
}

func TestJoinQueueConcurrentNumbersAreDense(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)

	const n = 64
	numbers := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			customer, _, err := s.JoinQueue(context.Background(), store.JoinInput{
				RequestID: fmt.Sprintf("join-%d", i),
				QueueID:   queue.QueueID,
				Name:      "fan",
			})
			if err != nil {
				t.Errorf("JoinQueue: %v", err)
				return
			}
			numbers[i] = customer.Number
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, number := range numbers {
		if number < 1 || number > n {
			t.Fatalf("number %d out of range 1..%d", number, n)
		}
		if seen[number] {
			t.Fatalf("duplicate number %d", number)
		}
		seen[number] = true
	}
	got, err := s.GetQueue(context.Background(), queue.QueueID)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if got.LastNumber != n || got.WaitingCount != n {
		t.Fatalf("lastNumber=%d waitingCount=%d, want %d/%d", got.LastNumber, got.WaitingCount, n, n)
	}
}

func TestJoinQueueIdempotentByRequestID(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	first := join(t, s, queue.QueueID, "req-1")
	replay, applied, err := s.JoinQueue(ctx, store.JoinInput{
		RequestID: "req-1",
		QueueID:   queue.QueueID,
		Name:      "fan req-1",
	})
	if err != nil {
		t.Fatalf("replay JoinQueue: %v", err)
	}
	if applied {
		t.Fatal("replay should not be applied")
	}
	if replay.CustomerID != first.CustomerID || replay.Number != first.Number {
		t.Fatalf("replay returned %+v, want %+v", replay, first)
	}
	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.LastNumber != 1 || got.WaitingCount != 1 {
		t.Fatalf("counters moved on replay: %+v", got)
	}
}

func TestJoinQueueClosedAndHidden(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	if _, err := s.SetQueueStatus(ctx, queue.QueueID, models.QueueClosed); err != nil {
		t.Fatalf("SetQueueStatus: %v", err)
	}
	if _, _, err := s.JoinQueue(ctx, store.JoinInput{RequestID: "a", QueueID: queue.QueueID}); !errors.Is(err, store.ErrQueueClosed) {
		t.Fatalf("closed queue join err = %v, want ErrQueueClosed", err)
	}

	event, _ := s.CreateEvent(ctx, store.CreateEventInput{OrganizerID: "org-1", Name: "e", Date: time.Now()})
	hidden, err := s.CreateQueue(ctx, store.CreateQueueInput{EventID: event.EventID, Name: "staff only", IsVisible: false})
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if _, _, err := s.JoinQueue(ctx, store.JoinInput{RequestID: "b", QueueID: hidden.QueueID}); !errors.Is(err, store.ErrQueueNotVisible) {
		t.Fatalf("hidden queue join err = %v, want ErrQueueNotVisible", err)
	}
	if _, _, err := s.JoinQueue(ctx, store.JoinInput{RequestID: "c", QueueID: hidden.QueueID, Channel: "staff"}); err != nil {
		t.Fatalf("staff join of hidden queue: %v", err)
	}
}

func TestCallNextServesLowestWaiting(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	join(t, s, queue.QueueID, "j1")
	join(t, s, queue.QueueID, "j2")
	join(t, s, queue.QueueID, "j3")

	first, applied, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID})
	if err != nil || !applied {
		t.Fatalf("CallNext 1: applied=%v err=%v", applied, err)
	}
	if first.Number != 1 || first.Status != models.StatusCalled {
		t.Fatalf("first call = %+v", first)
	}
	second, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c2", QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("CallNext 2: %v", err)
	}
	if second.Number != 2 {
		t.Fatalf("second call number = %d, want 2", second.Number)
	}

	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.CurrentNumber != 2 || got.WaitingCount != 1 || got.TotalServed != 2 {
		t.Fatalf("counters = current %d waiting %d served %d, want 2/1/2", got.CurrentNumber, got.WaitingCount, got.TotalServed)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	if _, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID}); !errors.Is(err, store.ErrQueueEmpty) {
		t.Fatalf("err = %v, want ErrQueueEmpty", err)
	}
	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.CurrentNumber != 0 || got.WaitingCount != 0 || got.TotalServed != 0 {
		t.Fatalf("empty call moved counters: %+v", got)
	}

	// Replay of the empty call stays empty even after someone joins.
	join(t, s, queue.QueueID, "j1")
	if _, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID}); !errors.Is(err, store.ErrQueueEmpty) {
		t.Fatalf("replayed err = %v, want ErrQueueEmpty", err)
	}
}

func TestCallNextIdempotentByRequestID(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	join(t, s, queue.QueueID, "j1")
	join(t, s, queue.QueueID, "j2")

	first, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	replay, applied, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("replay CallNext: %v", err)
	}
	if applied {
		t.Fatal("replay should not be applied")
	}
	if replay.CustomerID != first.CustomerID {
		t.Fatalf("replay served %s, want %s", replay.CustomerID, first.CustomerID)
	}
	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.TotalServed != 1 || got.WaitingCount != 1 {
		t.Fatalf("replay moved counters: %+v", got)
	}
}

func TestRespondToCallTransitions(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	waiting := join(t, s, queue.QueueID, "j1")
	if _, err := s.RespondToCall(ctx, store.RespondInput{CustomerID: waiting.CustomerID, Response: models.ResponseComing}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("respond while waiting err = %v, want ErrInvalidTransition", err)
	}

	called, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	coming, err := s.RespondToCall(ctx, store.RespondInput{CustomerID: called.CustomerID, Response: models.ResponseComing})
	if err != nil {
		t.Fatalf("RespondToCall: %v", err)
	}
	if coming.Status != models.StatusComing || coming.Response != models.ResponseComing {
		t.Fatalf("coming = %+v", coming)
	}

	second := join(t, s, queue.QueueID, "j2")
	if _, _, err = s.CallNext(ctx, store.CallNextInput{RequestID: "c2", QueueID: queue.QueueID}); err != nil {
		t.Fatalf("CallNext 2: %v", err)
	}
	declined, err := s.RespondToCall(ctx, store.RespondInput{CustomerID: second.CustomerID, Response: models.ResponseDeclined})
	if err != nil {
		t.Fatalf("RespondToCall decline: %v", err)
	}
	if declined.Status != models.StatusRemoved || declined.Response != models.ResponseDeclined {
		t.Fatalf("declined = %+v", declined)
	}
	// Removed customers stay queryable but drop out of the roster.
	customers, _ := s.ListCustomers(ctx, queue.QueueID)
	for _, c := range customers {
		if c.CustomerID == declined.CustomerID {
			t.Fatal("removed customer still listed")
		}
	}
	if _, err := s.GetCustomer(ctx, declined.CustomerID); err != nil {
		t.Fatalf("GetCustomer after decline: %v", err)
	}
}

func TestRemoveCustomerIdempotent(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	customer := join(t, s, queue.QueueID, "j1")
	if err := s.RemoveCustomer(ctx, customer.CustomerID); err != nil {
		t.Fatalf("RemoveCustomer: %v", err)
	}
	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.WaitingCount != 0 {
		t.Fatalf("waitingCount = %d, want 0", got.WaitingCount)
	}
	if err := s.RemoveCustomer(ctx, customer.CustomerID); err != nil {
		t.Fatalf("second RemoveCustomer: %v", err)
	}
	got, _ = s.GetQueue(ctx, queue.QueueID)
	if got.WaitingCount != 0 {
		t.Fatalf("waitingCount moved on repeat removal: %d", got.WaitingCount)
	}
	if err := s.RemoveCustomer(ctx, "nope"); !errors.Is(err, store.ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestCompleteEventClosesQueues(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	event, err := s.CompleteEvent(ctx, queue.EventID)
	if err != nil {
		t.Fatalf("CompleteEvent: %v", err)
	}
	if event.Status != models.EventCompleted {
		t.Fatalf("event status = %s", event.Status)
	}
	got, _ := s.GetQueue(ctx, queue.QueueID)
	if got.Status != models.QueueClosed {
		t.Fatalf("queue status = %s, want closed", got.Status)
	}
	if _, err := s.CreateQueue(ctx, store.CreateQueueInput{EventID: queue.EventID, Name: "late"}); !errors.Is(err, store.ErrEventCompleted) {
		t.Fatalf("err = %v, want ErrEventCompleted", err)
	}
}

func TestEnqueueNotificationContactFallback(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	withPhone := join(t, s, queue.QueueID, "j1")
	request, err := s.EnqueueNotification(ctx, store.EnqueueInput{CustomerID: withPhone.CustomerID, Trigger: models.TriggerAutoCall})
	if err != nil {
		t.Fatalf("EnqueueNotification: %v", err)
	}
	if request.Method != models.MethodSMS || request.Target != withPhone.Phone {
		t.Fatalf("request = %+v", request)
	}

	bare, _, err := s.JoinQueue(ctx, store.JoinInput{RequestID: "j2", QueueID: queue.QueueID, Name: "no contact"})
	if err != nil {
		t.Fatalf("JoinQueue: %v", err)
	}
	if _, err := s.EnqueueNotification(ctx, store.EnqueueInput{CustomerID: bare.CustomerID, Trigger: models.TriggerAutoCall}); !errors.Is(err, store.ErrNoContactInfo) {
		t.Fatalf("err = %v, want ErrNoContactInfo", err)
	}
}

func TestOutboxRecordsLifecycle(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()

	customer := join(t, s, queue.QueueID, "j1")
	if _, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: "c1", QueueID: queue.QueueID}); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if _, err := s.RespondToCall(ctx, store.RespondInput{CustomerID: customer.CustomerID, Response: models.ResponseComing}); err != nil {
		t.Fatalf("RespondToCall: %v", err)
	}

	events, err := s.ListOutboxEvents(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListOutboxEvents: %v", err)
	}
	var types []string
	var lastSeq int64
	for _, e := range events {
		if e.Seq <= lastSeq {
			t.Fatalf("outbox seq not increasing: %+v", events)
		}
		lastSeq = e.Seq
		types = append(types, e.Type)
	}
	want := []string{store.EventCustomerCreated, store.EventCustomerCalled, store.EventCustomerComing}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types = %v, want %v", types, want)
		}
	}
}

// Random interleavings of joins, calls, responses and removals must keep the
// denormalized counters consistent with the per-customer statuses.
func TestRandomizedCounterInvariants(t *testing.T) {
	s := NewStore()
	queue := newQueue(t, s)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for i := 0; i < 400; i++ {
		switch rng.Intn(4) {
		case 0:
			customer, _, err := s.JoinQueue(ctx, store.JoinInput{
				RequestID: fmt.Sprintf("join-%d", i),
				QueueID:   queue.QueueID,
				Name:      "fan",
			})
			if err != nil {
				t.Fatalf("JoinQueue: %v", err)
			}
			ids = append(ids, customer.CustomerID)
		case 1:
			_, _, err := s.CallNext(ctx, store.CallNextInput{RequestID: fmt.Sprintf("call-%d", i), QueueID: queue.QueueID})
			if err != nil && !errors.Is(err, store.ErrQueueEmpty) {
				t.Fatalf("CallNext: %v", err)
			}
		case 2:
			if len(ids) == 0 {
				continue
			}
			response := models.ResponseComing
			if rng.Intn(2) == 0 {
				response = models.ResponseDeclined
			}
			_, err := s.RespondToCall(ctx, store.RespondInput{CustomerID: ids[rng.Intn(len(ids))], Response: response})
			if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
				t.Fatalf("RespondToCall: %v", err)
			}
		case 3:
			if len(ids) == 0 {
				continue
			}
			if err := s.RemoveCustomer(ctx, ids[rng.Intn(len(ids))]); err != nil {
				t.Fatalf("RemoveCustomer: %v", err)
			}
		}

		got, err := s.GetQueue(ctx, queue.QueueID)
		if err != nil {
			t.Fatalf("GetQueue: %v", err)
		}
		waiting := 0
		for _, id := range ids {
			customer, err := s.GetCustomer(ctx, id)
			if err != nil {
				t.Fatalf("GetCustomer: %v", err)
			}
			if customer.Status == models.StatusWaiting {
				waiting++
			}
		}
		if got.WaitingCount != waiting {
			t.Fatalf("step %d: waitingCount=%d but %d customers waiting", i, got.WaitingCount, waiting)
		}
		if got.CurrentNumber > got.LastNumber {
			t.Fatalf("step %d: currentNumber %d beyond lastNumber %d", i, got.CurrentNumber, got.LastNumber)
		}
	}
}
