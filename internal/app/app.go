package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/microcourse/internal/auth"
	"github.com/hitoshi/microcourse/internal/catalog"
	"github.com/hitoshi/microcourse/internal/certificate"
	"github.com/hitoshi/microcourse/internal/config"
	"github.com/hitoshi/microcourse/internal/database"
	"github.com/hitoshi/microcourse/internal/enrollment"
	"github.com/hitoshi/microcourse/internal/handler"
	"github.com/hitoshi/microcourse/internal/logger"
	"github.com/hitoshi/microcourse/internal/media"
	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/middleware"
	"github.com/hitoshi/microcourse/internal/notify"
	"github.com/hitoshi/microcourse/internal/progress"
	"github.com/hitoshi/microcourse/internal/repository"
	"github.com/hitoshi/microcourse/internal/security"
	"github.com/hitoshi/microcourse/internal/transcript"
	"github.com/hitoshi/microcourse/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
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
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	courseRepo := repository.NewPostgresCourseRepo(db)
	lessonRepo := repository.NewPostgresLessonRepo(db)
	enrollmentRepo := repository.NewPostgresEnrollmentRepo(db)
	progressRepo := repository.NewPostgresProgressRepo(db)
	certificateRepo := repository.NewPostgresCertificateRepo(db)

	// 3. メトリクスとセキュリティの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	guard := security.NewGuard(security.GuardOptions{AllowPrivate: cfg.TranscriptAllowPrivate})
	sanitizer := security.NewSanitizer()

	// 4. 外部連携の初期化
	store, err := media.NewLocalStore(cfg.UploadDir, cfg.UploadMaxVideoSize, cfg.UploadMaxImageSize)
	if err != nil {
		return fmt.Errorf("failed to prepare upload directory: %w", err)
	}
	describer := transcript.NewDescriber(newTranscriptGenerator(cfg, guard), collector)
	notifier := notify.NewNotifier(newMailer(cfg), cfg.BaseURL, cfg.PlatformName)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL))
	catalogService := catalog.NewService(
		courseRepo, lessonRepo, enrollmentRepo,
		store, describer, guard, sanitizer,
	)
	enrollmentService := enrollment.NewService(courseRepo, enrollmentRepo, collector)
	progressService := progress.NewService(courseRepo, lessonRepo, enrollmentRepo, progressRepo, collector)
	certificateService := certificate.NewService(
		userRepo, courseRepo, enrollmentRepo, certificateRepo,
		certificate.NewRenderer(cfg.PlatformName), notifier, collector,
	)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Resolver:          authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsGatherer:   registry,
		HealthChecker:     db,

		UploadDir:     cfg.UploadDir,
		MaxVideoBytes: cfg.UploadMaxVideoSize,
		MaxImageBytes: cfg.UploadMaxImageSize,
		BaseURL:       cfg.BaseURL,
		HSTS:          cfg.HTTPS(),

		AuthService:        authService,
		CatalogService:     catalogService,
		EnrollmentService:  enrollmentService,
		ProgressService:    progressService,
		CertificateService: certificateService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// 動画アップロードを受け付けるため、書き込みよりも読み込みのタイムアウトを長く取る。
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newTranscriptGenerator は文字起こしAPIが設定されていればHTTPGeneratorを、
// 未設定であれば再生時間に応じたテンプレート文を返すGeneratorを返す。
func newTranscriptGenerator(cfg *config.Config, guard security.URLGuard) transcript.Generator {
	if cfg.TranscriptAPIURL == "" {
		slog.Info("transcript API is not configured, using template generator")
		return transcript.NewTemplateGenerator()
	}
	return transcript.NewHTTPGenerator(
		cfg.TranscriptAPIURL, cfg.TranscriptAPIKey, cfg.BaseURL,
		guard.NewSafeClient(cfg.TranscriptTimeout),
	)
}

// newMailer はSendGridのAPIキーが設定されていればSendGridMailerを、
// 未設定であればログ出力のみのMailerを返す。
func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.SendGridAPIKey == "" {
		slog.Info("SendGrid API key is not configured, mails are logged only")
		return notify.LogMailer{}
	}
	return notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.PlatformName, cfg.MailFrom)
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、受講者数の再集計スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if err := reconcile.ValidateSchedule(cfg.ReconcileSchedule); err != nil {
		return err
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 再集計ジョブの初期化
	job := reconcile.NewJob(db, slog.Default())
	scheduler := reconcile.NewScheduler(job, cfg.ReconcileSchedule, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("reconcile_schedule", cfg.ReconcileSchedule),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("reconcile scheduler failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
