package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw は連携情報、セッション、ユーザーを順に削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はアカウント操作のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。cookiesは退会後のCookie失効に使う。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

// Withdraw は退会処理を行い、ブラウザに残るセッションCookieも失効させる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("account withdrawn", slog.String("user_id", userID))
	clearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}
