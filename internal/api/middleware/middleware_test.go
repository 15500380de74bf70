package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/workflow-builder/engine/internal/auth"
	"github.com/workflow-builder/engine/internal/models"
	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type stubAuthenticator struct {
	user *models.User
	err  error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (*models.User, error) {
	return s.user, s.err
}

func TestAuthStoresPrincipal(t *testing.T) {
	u := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	var got auth.Principal
	h := Auth(stubAuthenticator{user: u})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, auth.Principal{UserID: u.ID, Role: models.RoleAdmin}, got)
}

func TestAuthRejects(t *testing.T) {
	cases := map[string]struct {
		header string
		authn  stubAuthenticator
		want   int
	}{
		"missing header":   {"", stubAuthenticator{}, http.StatusUnauthorized},
		"wrong scheme":     {"Basic abc", stubAuthenticator{}, http.StatusUnauthorized},
		"invalid token":    {"Bearer x", stubAuthenticator{err: appErr.New(appErr.CodeUnauthorized, "bad")}, http.StatusUnauthorized},
		"inactive account": {"Bearer x", stubAuthenticator{err: appErr.New(appErr.CodeForbidden, "inactive")}, http.StatusForbidden},
		"store failure":    {"Bearer x", stubAuthenticator{err: appErr.New(appErr.CodeInternal, "db")}, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			Auth(tc.authn)(okHandler).ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	serve := func(ctx context.Context) int {
		rr := httptest.NewRecorder()
		RequireAdmin(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		return rr.Code
	}
	require.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	require.Equal(t, http.StatusForbidden, serve(auth.WithPrincipal(context.Background(), auth.Principal{UserID: uuid.New(), Role: models.RoleUser})))
	require.Equal(t, http.StatusOK, serve(auth.WithPrincipal(context.Background(), auth.Principal{UserID: uuid.New(), Role: models.RoleAdmin})))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := RateLimit(ctx, 1, 2)(okHandler)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-Forwarded-For", "192.0.2.7, 10.0.0.9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rr.Header().Get("X-Request-ID"))
	require.NoError(t, err)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil)) })
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRateLimitSweeper(t *testing.T) {
	v := &visitors{entries: map[string]*limiterEntry{}, rps: 1, burst: 1}
	start := time.Now()
	v.allow("10.0.0.1", start)
	v.allow("10.0.0.2", start.Add(9*time.Minute))

	v.sweep(start.Add(11*time.Minute), 10*time.Minute)
	require.Len(t, v.entries, 1)
	require.Contains(t, v.entries, "10.0.0.2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.sweepEvery(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
