package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/sellerlens/internal/access"
	"github.com/hitoshi/sellerlens/internal/auth"
	"github.com/hitoshi/sellerlens/internal/competition"
	"github.com/hitoshi/sellerlens/internal/config"
	"github.com/hitoshi/sellerlens/internal/database"
	"github.com/hitoshi/sellerlens/internal/handler"
	"github.com/hitoshi/sellerlens/internal/linking"
	"github.com/hitoshi/sellerlens/internal/llm"
	"github.com/hitoshi/sellerlens/internal/logger"
	"github.com/hitoshi/sellerlens/internal/marketplace"
	"github.com/hitoshi/sellerlens/internal/metrics"
	"github.com/hitoshi/sellerlens/internal/middleware"
	"github.com/hitoshi/sellerlens/internal/repository"
	"github.com/hitoshi/sellerlens/internal/user"
	"github.com/hitoshi/sellerlens/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		PrintUsage(w)
		return err
	}

	// help と healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部クライアントの初期化
	mlClient := marketplace.NewClient(marketplace.Config{
		ClientID:     cfg.MLClientID,
		ClientSecret: cfg.MLClientSecret,
		RedirectURL:  cfg.MLRedirectURL,
		AuthURL:      cfg.MLAuthURL,
		APIURL:       cfg.MLAPIURL,
		SiteID:       cfg.MLSiteID,
		Timeout:      cfg.MLTimeout,
	})

	nonces, closeNonces, err := newNonceStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNonces()

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	// 5. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, profileRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	linkingService := linking.NewService(mlClient, profileRepo, nonces, collector, linking.ServiceConfig{
		NonceTTL:    cfg.NonceTTL,
		StrictState: cfg.MLStrictState,
	})
	diagnostics := linking.NewDiagnostics(mlClient)

	competitionService := competition.NewService(
		mlClient, profileRepo, snapshotRepo, llmClient,
		competition.NewHashDeliveryEstimator(cfg.DeliveryEstimateMin, cfg.DeliveryEstimateMax),
		collector,
		competition.Config{
			Locale:     cfg.LLMLocale,
			PageSize:   cfg.SnapshotPageSize,
			LLMTimeout: cfg.LLMTimeout,
		},
	)

	userService := user.NewService(userRepo, sessionRepo, profileRepo)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAnalyze),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     rateLimiter,
		Logger:          slog.Default(),
		Metrics:         collector,
		MetricsGatherer: registry,

		Policy:     access.DefaultPolicy(),
		RoleFinder: profileRepo,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		LinkingService: linkingService,
		Diagnostics:    diagnostics,

		CompetitionService: competitionService,
		UserService:        userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// LLM呼び出しを含むためWriteTimeoutはLLMタイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newNonceStore はREDIS_URLが設定されていればRedis、なければメモリのnonceストアを返す。
// 返り値の関数で接続を閉じる。
func newNonceStore(ctx context.Context, cfg *config.Config) (linking.NonceStore, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, using in-memory nonce store (single instance only)")
		return linking.NewMemoryNonceStore(), func() {}, nil
	}

	client, err := linking.NewRedisClient(ctx, cfg.RedisURL, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis nonce store connected")
	return linking.NewRedisNonceStore(client), func() { client.Close() }, nil
}

// newLLMClient はLLMクライアントを生成する。
// APIキーが無い場合はnilを返し、分析はフォールバック文言で完了する。
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		slog.Warn("LLM_API_KEY not set, suggestions will use the fallback text",
			slog.String("provider", cfg.LLMProvider),
		)
		return nil, nil
	}

	client, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	if cfg.SessionRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.SessionRetentionDays
	}

	slog.Info("worker starting",
		slog.Int("session_retention_days", cleanupJob.RetentionDays),
	)

	// ctxがキャンセルされるまでブロックする
	cleanupJob.Schedule(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	st, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.Uint64("version", uint64(st.Version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	healthURL := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.Redacted()
}
