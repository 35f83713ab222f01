package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketledger-backend/pkg/redis"
)

// DefaultIdempotencyTTL applies when the configured TTL is not positive.
const DefaultIdempotencyTTL = 10 * time.Minute

const idempotencyHeader = "Idempotency-Key"

// guardedRoutes lists the workflow writes that must not run twice per key.
// A {placeholder} segment matches any single path segment.
var guardedRoutes = []string{
	"POST /api/v1/entries",
	"POST /api/v1/change-requests",
	"POST /api/v1/change-requests/{requestId}/approve",
	"POST /api/v1/change-requests/{requestId}/reject",
	"POST /api/v1/payment-confirmations",
	"POST /api/v1/payment-confirmations/{confirmationId}/approve",
	"POST /api/v1/payment-confirmations/{confirmationId}/reject",
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotency replays the first response when a guarded write is retried with
// the same Idempotency-Key and body, and rejects the key with any other body.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	g := &idempotencyGuard{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.store == nil || !guarded(r.Method, routePattern(r)) {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	key := g.store.IdempotencyKey(requestScope(r), clientKey)
	bodyHash := hashBody(body)

	replayed, err := g.replay(ctx, w, key, bodyHash)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if replayed {
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	g.remember(ctx, key, bodyHash, capture)
}

// replay writes the stored response for key, if any.
func (g *idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, key, bodyHash string) (bool, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.BodyHash != bodyHash {
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return true, nil
}

// remember stores the captured response. 5xx responses are skipped so the
// client can retry the same key.
func (g *idempotencyGuard) remember(ctx context.Context, key, bodyHash string, capture *responseCapture) {
	status := capture.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		return
	}

	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		BodyHash:    bodyHash,
	})
	if err != nil {
		g.logError(ctx, "marshal idempotency record", err)
		return
	}
	if _, err := g.store.SetNX(ctx, key, string(payload), g.ttl); err != nil {
		g.logError(ctx, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) logError(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Error(ctx, msg, err)
	}
}

// requestScope keeps keys from colliding across actors and endpoints.
func requestScope(r *http.Request) string {
	ctx := r.Context()
	return strings.Join([]string{UserIDFromContext(ctx), MarketIDFromContext(ctx), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// Mounted middleware sees a partial pattern such as "/api/*".
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func guarded(method, path string) bool {
	if path == "" {
		return false
	}
	for _, route := range guardedRoutes {
		routeMethod, routePath, _ := strings.Cut(route, " ")
		if routeMethod == method && segmentsMatch(routePath, path) {
			return true
		}
	}
	return false
}

func segmentsMatch(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
