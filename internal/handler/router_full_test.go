package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sellerlens/internal/auth"
	"github.com/hitoshi/sellerlens/internal/linking"
	"github.com/hitoshi/sellerlens/internal/metrics"
	"github.com/hitoshi/sellerlens/internal/middleware"
	"github.com/hitoshi/sellerlens/internal/model"
)

var _ LinkingServiceInterface = (*linking.Service)(nil)

// stubDirectory はセッションとプロフィールの両方を引けるテスト用の索引。
// キーはセッションID、値はユーザーIDとロール。
type stubDirectory map[string]struct {
	userID string
	role   model.Role
}

func (d stubDirectory) FindByID(ctx context.Context, id string) (*model.Session, error) {
	entry, ok := d[id]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: id, UserID: entry.userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// stubRoles はstubDirectoryのユーザーIDからロールを引く。
type stubRoles struct{ dir stubDirectory }

func (s stubRoles) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	for _, entry := range s.dir {
		if entry.userID == userID {
			return &model.Profile{UserID: userID, Role: entry.role}, nil
		}
	}
	return nil, nil
}

const (
	memberSession = "member-session"
	adminSession  = "admin-session"
	csrfTestToken = "router-csrf"
)

func newTestRouter() http.Handler {
	dir := stubDirectory{
		memberSession: {userID: "member-1", role: model.RoleUser},
		adminSession:  {userID: "admin-1", role: model.RoleAdmin},
	}
	reg := prometheus.NewRegistry()

	return NewRouter(&RouterDeps{
		SessionFinder:   dir,
		RoleFinder:      stubRoles{dir: dir},
		CSRFConfig:      middleware.CSRFConfig{},
		RateLimiter:     middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		Metrics:         metrics.NewCollector(reg),
		MetricsGatherer: reg,
		AuthService: &mockAuthService{
			getLoginURLFn: func(state string) string {
				return "https://accounts.google.com/o/oauth2/auth?state=" + state
			},
			getCurrentUserFn: func(ctx context.Context, sessionID string) (*auth.Account, error) {
				return &auth.Account{User: &model.User{ID: "member-1", Email: "member@example.com", Name: "Member"}}, nil
			},
		},
		AuthConfig: AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 3600},
		LinkingService: &mockLinkingService{
			initiateFn: func(ctx context.Context, sessionKey string) (string, error) {
				return "https://auth.mercadolivre.com.br/authorization?state=" + sessionKey, nil
			},
		},
		Diagnostics:        &mockDiagnostics{},
		CompetitionService: &mockCompetitionService{},
		UserService:        &mockUserService{},
	})
}

// routeRequest はsessionが空でなければCookieを付け、withCSRFならトークンも揃えて付ける。
func routeRequest(method, path, session, body string, withCSRF bool) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: session})
	}
	if withCSRF {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfTestToken})
		req.Header.Set("X-CSRF-Token", csrfTestToken)
	}
	return req
}

func TestNewRouter_AccessControl(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name     string
		method   string
		path     string
		session  string
		body     string
		withCSRF bool
		want     int
	}{
		{"csrf token is public", http.MethodGet, "/api/csrf-token", "", "", false, http.StatusOK},
		{"health is public", http.MethodGet, "/health", "", "", false, http.StatusOK},
		{"login is public", http.MethodGet, "/auth/google/login", "", "", false, http.StatusTemporaryRedirect},
		{"me with session", http.MethodGet, "/auth/me", memberSession, "", false, http.StatusOK},

		{"competition without session", http.MethodGet, "/api/competition", "", "", false, http.StatusUnauthorized},
		{"status without session", http.MethodGet, "/api/integrations/ml", "", "", false, http.StatusUnauthorized},
		{"connect without session", http.MethodGet, "/api/integrations/ml/connect", "", "", false, http.StatusUnauthorized},
		{"unknown session", http.MethodGet, "/api/competition", "ghost", "", false, http.StatusUnauthorized},

		{"competition list", http.MethodGet, "/api/competition?limit=5", memberSession, "", false, http.StatusOK},
		{"integration status", http.MethodGet, "/api/integrations/ml", memberSession, "", false, http.StatusOK},
		{"integration config", http.MethodGet, "/api/integrations/ml/config", memberSession, "", false, http.StatusOK},

		{"check is admin only", http.MethodGet, "/api/integrations/ml/check", memberSession, "", false, http.StatusForbidden},
		{"check as admin", http.MethodGet, "/api/integrations/ml/check", adminSession, "", false, http.StatusOK},

		{"analyze without csrf", http.MethodPost, "/api/competition/analyze", memberSession, `{"listing_id":"MLB123"}`, false, http.StatusForbidden},
		{"analyze with csrf", http.MethodPost, "/api/competition/analyze", memberSession, `{"listing_id":"MLB123"}`, true, http.StatusOK},
		// セッション検証はCSRF検証より先に走る
		{"analyze without session or csrf", http.MethodPost, "/api/competition/analyze", "", `{"listing_id":"MLB123"}`, false, http.StatusUnauthorized},
		{"structured with csrf", http.MethodPost, "/api/competition/structured", adminSession, `{"title":"Fone Bluetooth Pro"}`, true, http.StatusOK},

		{"disconnect", http.MethodDelete, "/api/integrations/ml", memberSession, "", true, http.StatusNoContent},
		{"withdraw", http.MethodDelete, "/api/users/me", memberSession, "", true, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, routeRequest(tt.method, tt.path, tt.session, tt.body, tt.withCSRF))

			if w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestNewRouter_CSRFTokenBody(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["token"] == "" {
		t.Error("expected a token in the body")
	}
}

func TestNewRouter_MetricsCountsEarlierResponses(t *testing.T) {
	router := newTestRouter()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/competition", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sellerlens_http_status_total") {
		t.Errorf("status counter missing from exposition:\n%s", w.Body.String())
	}
}

func TestNewRouter_ConnectPassesSessionAsNonceKey(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, routeRequest(http.MethodGet, "/api/integrations/ml/connect", memberSession, "", false))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "state="+memberSession) {
		t.Errorf("Location = %q", loc)
	}
}

// コールバックは未ログインでも401にせず、連携画面へ戻す。
func TestNewRouter_CallbackWithoutSessionRedirects(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/integrations/ml/callback?code=TG-1&state=n1", nil))

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "http://localhost:3000/integracao") {
		t.Errorf("Location = %q", loc)
	}
}

func TestNewRouter_SecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		checker HealthChecker
		want    int
	}{
		{"no checker", nil, http.StatusOK},
		{"db ok", pingerFunc(func(context.Context) error { return nil }), http.StatusOK},
		{"db down", pingerFunc(func(context.Context) error { return context.DeadlineExceeded }), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			healthHandler(tt.checker)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
