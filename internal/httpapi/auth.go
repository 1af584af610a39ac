package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angiediaz0209/artistline/internal/store"
)

type authContextKey struct{}

// AuthMiddleware resolves the bearer session for staff traffic. Public
// endpoints pass through untouched; endpoints that need a session enforce it
// themselves, so a valid session on a public route still lands in the context
// (staff joining a walk-up into a hidden queue relies on that).
func AuthMiddleware(st store.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			if isPublicEndpoint(r) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, "", http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, "", http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	session, ok := value.(store.Session)
	if !ok {
		return store.Session{}, false
	}
	return session, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/queues":
		return r.Method == http.MethodGet
	case "/api/events":
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/realtime") {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/api/customers/") {
		// Resend is the only staff action under /api/customers/.
		return !strings.HasSuffix(r.URL.Path, "/actions/resend")
	}
	if strings.HasPrefix(r.URL.Path, "/api/queues/") {
		switch {
		case strings.HasSuffix(r.URL.Path, "/join"):
			return r.Method == http.MethodPost
		case strings.HasSuffix(r.URL.Path, "/snapshot"):
			return r.Method == http.MethodGet
		}
		return false
	}
	return r.Method == http.MethodOptions
}
