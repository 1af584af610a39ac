package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/v3/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angiediaz0209/artistline/internal/config"
	"github.com/angiediaz0209/artistline/internal/httpapi"
	"github.com/angiediaz0209/artistline/internal/hub"
	"github.com/angiediaz0209/artistline/internal/notify"
	"github.com/angiediaz0209/artistline/internal/store"
	"github.com/angiediaz0209/artistline/internal/store/postgres"
	"github.com/angiediaz0209/artistline/internal/telemetry"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("artistline")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	h := hub.New(snapshotSource(st))
	handler := httpapi.NewHandler(st, httpapi.Options{WaitBufferSeconds: cfg.WaitBufferSeconds})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMin,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtimeHandler(h))
	mux.Handle("/", handler.Routes())

	chain := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(st, mux))),
		"artistline",
	)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("artistline listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	worker := notify.New(st, notify.Config{
		BatchSize:     cfg.NotifyBatchSize,
		MaxAttempts:   cfg.NotifyMaxAttempts,
		SMSProvider:   cfg.SMSProvider,
		EmailProvider: cfg.EmailProvider,
		PushProvider:  cfg.PushProvider,
	})
	go notify.Start(rootCtx, cfg.NotifyScanInterval, worker)

	go pollOutbox(rootCtx, st, h, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// pollOutbox tails the outbox and fans events out to the hub. The cursor
// starts at the latest committed sequence: subscribers receive a fresh
// snapshot when they subscribe, so history before the restart is not
// replayed.
func pollOutbox(ctx context.Context, st store.Store, h *hub.Hub, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = time.Second
	}
	bootCtx, cancelBoot := context.WithTimeout(ctx, 5*time.Second)
	after, err := st.LatestOutboxSeq(bootCtx)
	cancelBoot()
	if err != nil {
		log.Printf("outbox cursor init error: %v", err)
	}
	var running int32

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		events, err := st.ListOutboxEvents(pollCtx, after, batchSize)
		cancel()
		if err != nil {
			log.Printf("outbox poll error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}
		for _, event := range events {
			after = event.Seq
			env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
			payload, _ := json.Marshal(env)
			h.Broadcast(payload, extractMeta(event.Payload))
		}
		atomic.StoreInt32(&running, 0)
	}
}

func realtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.Subscribe(client, hub.Subscription{})
				continue
			}
			h.Subscribe(client, hub.Subscription{
				EventID:    parsed.EventID,
				QueueID:    parsed.QueueID,
				CustomerID: parsed.CustomerID,
			})
		}
	})
}

// snapshotSource renders the queue snapshot the hub pushes on subscribe. A
// customer-only subscription resolves to its queue first; an event-wide one
// has no single queue to render.
func snapshotSource(st store.Store) hub.SnapshotFunc {
	return func(sub hub.Subscription) ([]byte, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		queueID := sub.QueueID
		if queueID == "" && sub.CustomerID != "" {
			customer, err := st.GetCustomer(ctx, sub.CustomerID)
			if err != nil {
				return nil, false
			}
			queueID = customer.QueueID
		}
		if queueID == "" {
			return nil, false
		}
		snapshot, err := st.GetSnapshot(ctx, queueID)
		if err != nil {
			return nil, false
		}
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, false
		}
		env := eventEnvelope{Type: "queue.snapshot", Payload: raw, CreatedAt: time.Now().UTC()}
		payload, _ := json.Marshal(env)
		return payload, true
	}
}

func extractMeta(payload []byte) hub.Subscription {
	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return hub.Subscription{}
	}
	return hub.Subscription{
		EventID:    str(data["event_id"]),
		QueueID:    str(data["queue_id"]),
		CustomerID: str(data["customer_id"]),
	}
}

func str(value interface{}) string {
	if value == nil {
		return ""
	}
	if v, ok := value.(string); ok {
		return v
	}
	return fmt.Sprint(value)
}
