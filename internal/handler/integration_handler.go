package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/sellerlens/internal/linking"
	"github.com/hitoshi/sellerlens/internal/middleware"
	"github.com/hitoshi/sellerlens/internal/model"
)

// LinkingServiceInterface は連携ハンドラーが必要とするサービスインターフェース。
type LinkingServiceInterface interface {
	Initiate(ctx context.Context, sessionKey string) (string, error)
	CompleteCallback(ctx context.Context, req linking.CallbackRequest) (*linking.CallbackResult, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*linking.Status, error)
}

// DiagnosticsInterface は連携設定の公開と診断のインターフェース。
type DiagnosticsInterface interface {
	Config() linking.PublicConfig
	Check(ctx context.Context) linking.CredentialCheck
}

// IntegrationHandler はマーケットプレイス連携のHTTPハンドラー。
type IntegrationHandler struct {
	service     LinkingServiceInterface
	diagnostics DiagnosticsInterface
	screenURL   string // 連携画面のURL。コールバック後のリダイレクト先
}

// NewIntegrationHandler はIntegrationHandlerを生成する。
func NewIntegrationHandler(service LinkingServiceInterface, diagnostics DiagnosticsInterface, baseURL string) *IntegrationHandler {
	return &IntegrationHandler{
		service:     service,
		diagnostics: diagnostics,
		screenURL:   strings.TrimRight(baseURL, "/") + "/integracao",
	}
}

// Connect は連携を開始し、認可画面にリダイレクトする。
// GET /api/integrations/ml/connect
func (h *IntegrationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	sessionKey := middleware.SessionIDFromContext(r.Context())

	authURL, err := h.service.Initiate(r.Context(), sessionKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback は認可サーバーからのコールバックを処理し、連携画面にリダイレクトする。
// 失敗時はエラー種別を error クエリパラメータで渡す。
// GET /api/integrations/ml/callback?code=xxx&state=yyy
func (h *IntegrationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// 未ログインでもUserIDは空のままサービスに渡し、保存段階でUnauthenticatedとする
	userID, _ := middleware.UserIDFromContext(r.Context())

	_, err := h.service.CompleteCallback(r.Context(), linking.CallbackRequest{
		SessionKey: middleware.SessionIDFromContext(r.Context()),
		UserID:     userID,
		Code:       q.Get("code"),
		State:      q.Get("state"),
		Error:      q.Get("error"),
	})
	if err != nil {
		kind := model.KindOf(err)
		if kind == "" {
			kind = model.KindPersistenceFailed
		}
		http.Redirect(w, r, h.screenURL+"?error="+url.QueryEscape(string(kind)), http.StatusFound)
		return
	}

	http.Redirect(w, r, h.screenURL+"?connected=1", http.StatusFound)
}

// Status は現在の連携状態を返す。
// GET /api/integrations/ml
func (h *IntegrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Disconnect は連携を解除する。
// DELETE /api/integrations/ml
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Config はフロントエンド向けの連携設定を返す。
// GET /api/integrations/ml/config
func (h *IntegrationHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.diagnostics.Config())
}

// Check は連携設定とAPI疎通の診断結果を返す。
// GET /api/integrations/ml/check
func (h *IntegrationHandler) Check(w http.ResponseWriter, r *http.Request) {
	check := h.diagnostics.Check(r.Context())
	slog.Info("marketplace credential check",
		slog.Bool("api_reachable", check.APIReachable),
		slog.Int("api_status", check.APIStatus),
	)
	writeJSON(w, http.StatusOK, check)
}
