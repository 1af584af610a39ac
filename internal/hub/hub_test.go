package hub

import "testing"

func TestBroadcastFiltersBySubscription(t *testing.T) {
	h := New(nil)
	queueWatcher := &Client{ID: "q", Send: make(chan []byte, 1), Subscription: Subscription{QueueID: "queue-1"}}
	customerWatcher := &Client{ID: "c", Send: make(chan []byte, 1), Subscription: Subscription{CustomerID: "cust-9"}}
	everything := &Client{ID: "all", Send: make(chan []byte, 1)}
	h.Register(queueWatcher)
	h.Register(customerWatcher)
	h.Register(everything)

	h.Broadcast([]byte("x"), Subscription{EventID: "event-1", QueueID: "queue-1", CustomerID: "cust-2"})

	if len(queueWatcher.Send) != 1 {
		t.Fatal("queue watcher should receive")
	}
	if len(customerWatcher.Send) != 0 {
		t.Fatal("customer watcher should not receive another customer's update")
	}
	if len(everything.Send) != 1 {
		t.Fatal("unfiltered client should receive")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New(nil)
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	h.Register(slow)

	h.Broadcast([]byte("one"), Subscription{})
	h.Broadcast([]byte("two"), Subscription{})

	if got := len(slow.Send); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	if string(<-slow.Send) != "one" {
		t.Fatal("first message should survive, later ones drop")
	}
}

func TestSubscribeNarrowsFilter(t *testing.T) {
	h := New(nil)
	client := &Client{ID: "c", Send: make(chan []byte, 2), Subscription: Subscription{QueueID: "queue-1"}}
	h.Register(client)

	h.Broadcast([]byte("a"), Subscription{QueueID: "queue-2"})
	h.Subscribe(client, Subscription{QueueID: "queue-2"})
	h.Broadcast([]byte("b"), Subscription{QueueID: "queue-2"})

	if got := len(client.Send); got != 1 {
		t.Fatalf("received = %d, want 1", got)
	}
}

func TestSubscribeSendsSnapshot(t *testing.T) {
	h := New(func(sub Subscription) ([]byte, bool) {
		if sub.QueueID == "" {
			return nil, false
		}
		return []byte("snapshot:" + sub.QueueID), true
	})
	client := &Client{ID: "c", Send: make(chan []byte, 2)}
	h.Register(client)

	h.Subscribe(client, Subscription{QueueID: "queue-1"})
	if got := string(<-client.Send); got != "snapshot:queue-1" {
		t.Fatalf("snapshot = %q", got)
	}

	// Unsubscribing renders nothing.
	h.Subscribe(client, Subscription{})
	if got := len(client.Send); got != 0 {
		t.Fatalf("unexpected message after unsubscribe: %d", got)
	}
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","queue_id":"queue-1","customer_id":"cust-1"}`))
	if !ok {
		t.Fatal("valid subscribe rejected")
	}
	if msg.QueueID != "queue-1" || msg.CustomerID != "cust-1" {
		t.Fatalf("msg = %+v", msg)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"shout"}`)); ok {
		t.Fatal("unknown action accepted")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatal("garbage accepted")
	}
}
