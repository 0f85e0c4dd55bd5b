package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/sellerlens/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func validSessionRepo() *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session-id" {
				return &model.Session{
					ID:        "valid-session-id",
					UserID:    "user-123",
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsUserAndSessionID(t *testing.T) {
	mw := NewSessionMiddleware(validSessionRepo())

	var capturedUserID, capturedSessionID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		capturedSessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedSessionID != "valid-session-id" {
		t.Errorf("sessionID = %q, want %q", capturedSessionID, "valid-session-id")
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		repo   *mockSessionRepository
	}{
		{"no cookie", "", validSessionRepo()},
		{"unknown session", "expired-session-id", validSessionRepo()},
		{"store error", "valid-session-id", &mockSessionRepository{
			findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, errors.New("db down")
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != string(model.KindUnauthenticated) {
				t.Errorf("code = %q, want %q", body.Code, model.KindUnauthenticated)
			}
		})
	}
}

func TestOptionalSessionMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		wantUserID  string
		wantSession string
	}{
		{"valid session", "valid-session-id", "user-123", "valid-session-id"},
		{"no cookie", "", "", ""},
		{"unknown session", "other", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewOptionalSessionMiddleware(validSessionRepo())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				userID, _ := UserIDFromContext(r.Context())
				if userID != tt.wantUserID {
					t.Errorf("userID = %q, want %q", userID, tt.wantUserID)
				}
				if got := SessionIDFromContext(r.Context()); got != tt.wantSession {
					t.Errorf("sessionID = %q, want %q", got, tt.wantSession)
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/callback", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("handler should always be called")
			}
		})
	}
}

func TestUserIDFromContext_NoUserID_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID")
	}
}

func TestContextWithSession(t *testing.T) {
	ctx := ContextWithSession(context.Background(), "user-1", "sess-1")

	userID, err := UserIDFromContext(ctx)
	if err != nil || userID != "user-1" {
		t.Errorf("UserIDFromContext = (%q, %v)", userID, err)
	}
	if got := SessionIDFromContext(ctx); got != "sess-1" {
		t.Errorf("SessionIDFromContext = %q, want %q", got, "sess-1")
	}
}
