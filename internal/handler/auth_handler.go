// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sellerlens/internal/access"
	"github.com/hitoshi/sellerlens/internal/auth"
	"github.com/hitoshi/sellerlens/internal/middleware"
	"github.com/hitoshi/sellerlens/internal/model"
)

const (
	sessionCookieName = middleware.SessionCookieName
	oauthStateCookie  = "oauth_state"
	loginStateMaxAge  = 600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*auth.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	policy  *access.Policy
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。policyがnilの場合はDefaultPolicyを使う。
func NewAuthHandler(service AuthServiceInterface, policy *access.Policy, config AuthHandlerConfig) *AuthHandler {
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	return &AuthHandler{
		service: service,
		policy:  policy,
		config:  config,
	}
}

// meResponse は /auth/me のレスポンス。
type meResponse struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	Role         model.Role      `json:"role"`
	Capabilities []string        `json:"capabilities"`
	Integration  integrationInfo `json:"integration"`
}

// integrationInfo はマーケットプレイス連携の状態。アクセストークンは含めない。
type integrationInfo struct {
	Connected  bool   `json:"connected"`
	MLUserID   string `json:"ml_user_id,omitempty"`
	MLNickname string `json:"ml_nickname,omitempty"`
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setStateCookie(w, state, loginStateMaxAge)
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はGoogleからのコールバックを処理し、セッションCookieを発行する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// stateはどの結果でも使い捨て
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)
	h.setStateCookie(w, "", -1)

	if denied := q.Get("error"); denied != "" {
		slog.Info("google login denied", slog.String("reason", denied))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAPIErrorFromKind(model.KindProviderDenied))
		return
	}

	state := q.Get("state")
	if cookieErr != nil || state == "" || stateCookie.Value != state {
		slog.Warn("google login state mismatch", slog.Bool("cookie_present", cookieErr == nil))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAPIErrorFromKind(model.KindStateMismatch))
		return
	}

	code := q.Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAPIErrorFromKind(model.KindMissingAuthorizationCode))
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code)
	switch {
	case errors.Is(err, auth.ErrUnverifiedEmail):
		slog.Warn("google login rejected", slog.String("reason", "unverified email"))
		writeAPIErrorResponse(w, http.StatusForbidden, &model.APIError{
			Code:     "unverified_email",
			Message:  "O e-mail da conta Google não foi verificado.",
			Category: "auth",
			Action:   "Verifique seu e-mail no Google e tente novamente.",
		})
		return
	case err != nil:
		slog.Error("google login failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。サーバー側の削除に失敗してもCookieは消す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	clearSessionCookie(w, h.config)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// ロールから導いた権限一覧と連携状態を含む。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAPIErrorFromKind(model.KindUnauthenticated))
		return
	}

	account, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	switch {
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrAccountNotFound):
		clearSessionCookie(w, h.config)
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAPIErrorFromKind(model.KindUnauthenticated))
		return
	case err != nil:
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	role := model.RoleUser
	var info integrationInfo
	if p := account.Profile; p != nil {
		if p.Role != "" {
			role = p.Role
		}
		if p.IsLinked() {
			info = integrationInfo{
				Connected:  true,
				MLUserID:   p.Linked.ExternalUserID,
				MLNickname: p.Linked.ExternalNickname,
			}
		}
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:           account.User.ID,
		Email:        account.User.Email,
		Name:         account.User.Name,
		Role:         role,
		Capabilities: h.policy.Capabilities(role),
		Integration:  info,
	})
}

// setStateCookie はログイン開始時のstateを保存する。maxAgeが負なら削除する。
func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
