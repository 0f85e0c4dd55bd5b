package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sellerlens/internal/access"
	"github.com/hitoshi/sellerlens/internal/metrics"
	"github.com/hitoshi/sellerlens/internal/middleware"
)

// mountAuthRoutes はログインとセッション管理のルートを登録する。
// いずれもセッション必須のチェーンの外に置く。
func mountAuthRoutes(r chi.Router, h *AuthHandler) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
}

// HealthChecker はDBの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker // nilの場合は常にok

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger             // nilの場合はslog.Default()
	Metrics           metrics.MetricsCollector // nilの場合は集計しない
	MetricsGatherer   prometheus.Gatherer      // nilの場合は/metricsを公開しない

	// 権限
	Policy     *access.Policy
	RoleFinder middleware.RoleFinder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// マーケットプレイス連携
	LinkingService LinkingServiceInterface
	Diagnostics    DiagnosticsInterface

	// 競合分析
	CompetitionService CompetitionServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → RequestID → Logging → Session → RateLimit(General) → CSRF → Capability
//
// 認証ルート（/auth/*）と連携コールバックはセッション必須のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := deps.Policy
	if policy == nil {
		policy = access.DefaultPolicy()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS: deps.CSRFConfig.CookieSecure,
	}))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, policy, deps.AuthConfig)
	integrationHandler := NewIntegrationHandler(deps.LinkingService, deps.Diagnostics, deps.AuthConfig.BaseURL)
	competitionHandler := NewCompetitionHandler(deps.CompetitionService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	requireCapability := func(c access.Capability) func(http.Handler) http.Handler {
		return middleware.NewCapabilityMiddleware(policy, deps.RoleFinder, c)
	}

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	mountAuthRoutes(r, authHandler)

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 連携コールバックは外部からのリダイレクトで届くため、セッションが無くても受け付ける。
	// 未ログインの判定はサービス層でnonce消費の後に行う。
	r.With(middleware.NewOptionalSessionMiddleware(deps.SessionFinder)).
		Get("/api/integrations/ml/callback", integrationHandler.Callback)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// マーケットプレイス連携
		r.Route("/api/integrations/ml", func(r chi.Router) {
			r.With(requireCapability(access.CapIntegrationCheck)).Get("/check", integrationHandler.Check)

			r.Group(func(r chi.Router) {
				r.Use(requireCapability(access.CapIntegrationManage))
				r.Get("/", integrationHandler.Status)
				r.Delete("/", integrationHandler.Disconnect)
				r.Get("/connect", integrationHandler.Connect)
				r.Get("/config", integrationHandler.Config)
			})
		})

		// 競合分析（分析の実行には専用レート制限を追加）
		r.Route("/api/competition", func(r chi.Router) {
			r.Use(requireCapability(access.CapCompetitionAnalyze))
			r.Get("/", competitionHandler.List)
			r.With(deps.RateLimiter.AnalyzeMiddleware()).Post("/analyze", competitionHandler.Analyze)
			r.With(deps.RateLimiter.AnalyzeMiddleware()).Post("/structured", competitionHandler.Structured)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// healthHandler はDB疎通を含むヘルスチェック結果を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
