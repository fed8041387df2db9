package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/handler"
	"github.com/smquiz/quiz-backend/internal/middleware"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Subject  *handler.SubjectHandler
	Question *handler.QuestionHandler
	Attempt  *handler.AttemptHandler
	Result   *handler.ResultHandler
	WS       *handler.WSHandler
	Monitor  *handler.MonitorHandler
	System   *handler.SystemHandler
}

// questionCacheSeconds is how long a browser may reuse a fetched paper.
const questionCacheSeconds = 60

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		signedIn := auth.Group("")
		signedIn.Use(
			middleware.RequireAnyJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
		)
		signedIn.POST("/logout", handlers.Auth.Logout)
		signedIn.GET("/me", handlers.Auth.Me)
	}

	// ─── 2. Shared Lookups (Any Signed-In User) ────────────────────────
	router.GET("/api/v1/subjects",
		middleware.RequireAnyJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		handlers.Subject.Catalog,
	)

	// ─── 3. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/questions", middleware.PrivateCache(questionCacheSeconds), handlers.Question.FetchQuestions)

		live := studentAPI.Group("")
		live.Use(middleware.NoStore())
		live.POST("/attempts", handlers.Attempt.CreateAttempt)
		live.GET("/attempts/:id", handlers.Attempt.GetAttempt)
		live.GET("/attempts/:id/review", handlers.Attempt.GetReview)
		live.POST("/results", handlers.Result.SubmitResult)
		live.GET("/results", handlers.Result.History)
	}

	// ─── 4. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 5. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		// Question management
		adminAPI.GET("/questions",
			middleware.RequireAnyPermission(model.PermissionQuestionsRead, model.PermissionQuestionsWrite),
			handlers.Question.ListQuestions,
		)
		adminAPI.POST("/questions",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.CreateQuestion,
		)
		adminAPI.PUT("/questions/:id",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.UpdateQuestion,
		)
		adminAPI.DELETE("/questions/:id",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.DeleteQuestion,
		)
		adminAPI.POST("/questions/refresh-cache",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.RefreshCache,
		)

		// Results
		adminAPI.GET("/results",
			middleware.RequirePermission(model.PermissionResultsRead),
			handlers.Result.ListResults,
		)

		// Live monitoring
		adminAPI.GET("/subjects/:id/monitor",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.Monitor.MonitorSubjectSSE,
		)
		adminAPI.GET("/system/metrics",
			handlers.System.SystemMetricsSSE, // Open to all staff
		)

		// Sessions
		adminAPI.DELETE("/users/:id/session",
			middleware.RequirePermission(model.PermissionSessionsReset),
			handlers.Auth.ResetSession,
		)
	}

	return router
}
