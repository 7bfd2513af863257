package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/partsplit-prereg/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/partsplit-prereg/internal/http/middleware"
	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/internal/storage/objects"
	"github.com/wolfman30/partsplit-prereg/internal/storage/records"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

const testAdminSecret = "admin-secret"

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()

	logger := logging.New("error")
	objectStore := objects.NewMemoryStore("http://localhost/uploads")
	recordStore := records.NewMemoryStore()
	previews := registration.NewMemoryPreviews()
	sessions := registration.NewSessions(func(v registration.Variant) (*registration.Flow, error) {
		return registration.NewFlow(v, registration.Collaborators{
			Objects:  objectStore,
			Records:  recordStore,
			Previews: previews,
		}, registration.WithLogger(logger))
	}, time.Hour, logger)

	cfg := &Config{
		Logger:             logger,
		Registration:       handlers.NewRegistrationHandler(sessions, previews, 0, logger),
		Uploads:            handlers.NewUploadsHandler(objectStore, logger),
		AdminRegistrations: handlers.NewAdminRegistrationsHandler(recordStore, logger),
		AdminAuthSecret:    testAdminSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		CORSAllowedOrigins: []string{"https://partsplit.ai"},
		RateLimiter:        limiter,
	}

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterSessionLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"variant":"early_access"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	start := strings.Index(body, `"session_id":"`) + len(`"session_id":"`)
	id := body[start : start+strings.Index(body[start:], `"`)]

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/submit", strings.NewReader(`{"contact":"a@b.co","consent":true}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"phase":"success"`) {
		t.Fatalf("unexpected session state %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/registrations", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/registrations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://partsplit.ai")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://partsplit.ai" {
		t.Fatalf("missing allow origin header")
	}
}

func TestRouterRateLimitsAPI(t *testing.T) {
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(0, 1))

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/phone/format?value=010", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/phone/format?value=010", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", health.Code)
	}
}
