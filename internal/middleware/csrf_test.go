package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func csrfCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethodsPassWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/api/competition", nil))

			if !called {
				t.Fatalf("%s should reach the handler", method)
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

func TestCSRFMiddleware_StateChangingRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
		wantReason string
	}{
		{"valid POST", http.MethodPost, "tok-1", "tok-1", http.StatusOK, ""},
		{"valid DELETE", http.MethodDelete, "tok-1", "tok-1", http.StatusOK, ""},
		{"no cookie", http.MethodPost, "", "tok-1", http.StatusForbidden, "missing cookie token"},
		{"no header", http.MethodDelete, "tok-1", "", http.StatusForbidden, "missing header token"},
		{"mismatch", http.MethodPost, "tok-1", "tok-2", http.StatusForbidden, "token mismatch"},
		{"PUT without token", http.MethodPut, "", "", http.StatusForbidden, "missing cookie token"},
		{"PATCH without token", http.MethodPatch, "", "", http.StatusForbidden, "missing cookie token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(tt.method, "/api/users/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.wantReason == "" {
				return
			}

			var body ErrorResponseBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != "csrf_failed" || body.Action == "" {
				t.Errorf("body = %+v", body)
			}
			if !strings.Contains(logs.String(), tt.wantReason) {
				t.Errorf("log should contain reason %q, got %s", tt.wantReason, logs.String())
			}
		})
	}
}

func TestCSRFMiddleware_IssuesCookieOnlyWhenMissing(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{CookieDomain: "example.com", CookieSecure: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/integrations/ml", nil))

	c := csrfCookieFrom(w.Result())
	if c == nil {
		t.Fatal("CSRF cookie should be issued on first safe request")
	}
	if len(c.Value) != csrfTokenBytes*2 {
		t.Errorf("token length = %d, want %d hex chars", len(c.Value), csrfTokenBytes*2)
	}
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable by the frontend")
	}
	if !c.Secure || c.Domain != "example.com" || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes = %+v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/integrations/ml", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if csrfCookieFrom(w.Result()) != nil {
		t.Error("existing CSRF cookie should not be replaced")
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	decode := func(t *testing.T, w *httptest.ResponseRecorder) string {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return body.Token
	}

	t.Run("issues new token", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		token := decode(t, w)
		c := csrfCookieFrom(w.Result())
		if token == "" || c == nil || c.Value != token {
			t.Errorf("token = %q, cookie = %+v; cookie should carry the returned token", token, c)
		}
	})

	t.Run("returns existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if token := decode(t, w); token != "existing-csrf-token" {
			t.Errorf("token = %q, want %q", token, "existing-csrf-token")
		}
		if csrfCookieFrom(w.Result()) != nil {
			t.Error("existing cookie should not be re-issued")
		}
	})
}
