package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/middleware"
	"github.com/hitoshi/microcourse/internal/model"
)

// HealthChecker はヘルスチェックで疎通確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Resolver          middleware.ActorResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer
	HealthChecker     HealthChecker

	// アップロード
	UploadDir     string
	MaxVideoBytes int64
	MaxImageBytes int64

	// 修了証の検証URLに使う公開URL
	BaseURL string
	// HSTS はStrict-Transport-Securityヘッダーを付与するかどうか。
	HSTS bool

	// サービス
	AuthService        AuthServiceInterface
	CatalogService     CatalogServiceInterface
	EnrollmentService  EnrollmentServiceInterface
	ProgressService    ProgressServiceInterface
	CertificateService CertificateServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Auth → RequireRole → RateLimit(General)
//
// /health、/metrics、/uploads/* と登録・ログインは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	courseHandler := NewCourseHandler(deps.CatalogService, deps.MaxImageBytes)
	lessonHandler := NewLessonHandler(deps.CatalogService, deps.MaxVideoBytes)
	enrollHandler := NewEnrollmentHandler(deps.EnrollmentService, deps.ProgressService)
	certHandler := NewCertificateHandler(deps.CertificateService, deps.BaseURL)

	requireAuth := middleware.NewAuthMiddleware(deps.Resolver)
	optionalAuth := middleware.NewOptionalAuthMiddleware(deps.Resolver)
	limit := deps.RateLimiter.GeneralMiddleware()

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	if deps.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadDir))))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(requireAuth, limit).Get("/me", authHandler.Me)
	})

	// 修了証の検証は第三者向けの公開エンドポイント。IP単位でレート制限する。
	r.With(deps.RateLimiter.PublicMiddleware()).
		Get("/api/certificates/verify/{serial}", certHandler.Verify)

	// --- 匿名でも閲覧できるルート ---
	// 公開コースは誰でも閲覧でき、トークンがあれば自分の非公開コースも見える。
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)

		r.Get("/api/courses", courseHandler.ListCourses)
		r.Get("/api/courses/{id}", courseHandler.GetCourse)
		r.Get("/api/courses/{id}/lessons", lessonHandler.ListLessons)
		r.Get("/api/lessons/{id}", lessonHandler.GetLesson)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RequireRole → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		// コース・レッスンの編集（クリエイター）
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleCreator, model.RoleAdmin))
			r.Use(limit)

			// GETと同じパスを共有するためRouteでマウントせず個別に登録する
			r.Post("/api/courses", courseHandler.CreateCourse)
			r.Put("/api/courses/{id}", courseHandler.UpdateCourse)
			r.Delete("/api/courses/{id}", courseHandler.DeleteCourse)
			r.Patch("/api/courses/{id}/submit", courseHandler.SubmitCourse)
			r.Put("/api/courses/{id}/thumbnail", courseHandler.SetThumbnail)

			r.Post("/api/lessons", lessonHandler.CreateLesson)
			r.Put("/api/lessons/{id}", lessonHandler.UpdateLesson)
			r.Delete("/api/lessons/{id}", lessonHandler.DeleteLesson)
			r.Post("/api/lessons/{id}/regenerate-transcript", lessonHandler.RegenerateTranscript)
		})

		// 管理者による審査
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Use(limit)

			r.Get("/courses", courseHandler.ListForReview)
			r.Patch("/courses/{id}/publish", courseHandler.ReviewCourse)
			r.Get("/creators", authHandler.ListCreatorApplications)
			r.Patch("/creators/{id}/approve", authHandler.ReviewCreator)
		})

		// 受講者向け
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleLearner))
			r.Use(limit)

			r.Route("/api/creator", func(r chi.Router) {
				r.Post("/apply", authHandler.ApplyForCreator)
				r.Get("/status", authHandler.CreatorStatus)
			})

			r.Route("/api/enroll", func(r chi.Router) {
				r.Get("/my-courses", enrollHandler.MyCourses)
				r.Post("/{courseId}", enrollHandler.Enroll)
				r.Get("/{courseId}/status", enrollHandler.Status)
			})

			r.Get("/api/progress", enrollHandler.Overview)
			r.Patch("/api/progress/{lessonId}/complete", enrollHandler.CompleteLesson)
			r.Get("/api/progress/{courseId}", enrollHandler.CourseProgress)

			r.Get("/api/certificates", certHandler.List)
			r.Post("/api/certificates/{courseId}", certHandler.Issue)
			r.Get("/api/certificates/{courseId}", certHandler.Get)
			r.Get("/api/certificates/{courseId}/download", certHandler.Download)
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
