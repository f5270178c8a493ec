package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/handler"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Portal     *handler.PortalHandler
	Assessment *handler.AssessmentHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.GET("/me", middleware.RequireStudentOrTeacherJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireStudentOrTeacherJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/attempts/join", handlers.Portal.Join)
		studentAPI.GET("/attempts/:attempt_id/paper", handlers.Portal.GetPaper)
		studentAPI.GET("/attempts/:attempt_id/state", handlers.Portal.GetState)
		studentAPI.PUT("/attempts/:attempt_id/answers", handlers.Portal.SaveAnswer)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Portal.Submit)
		studentAPI.POST("/assessments/:assessment_id/submit", handlers.Portal.SubmitByAssessment)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.Portal.GetResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		teacherAPI.POST("/assessments", handlers.Assessment.Create)
		teacherAPI.GET("/assessments", handlers.Assessment.List)
		teacherAPI.GET("/assessments/:assessment_id", handlers.Assessment.Get)
		teacherAPI.PUT("/assessments/:assessment_id/items", handlers.Assessment.ReplaceItems)
		teacherAPI.POST("/assessments/:assessment_id/publish", handlers.Assessment.Publish)
		teacherAPI.POST("/assessments/:assessment_id/cancel", handlers.Assessment.Cancel)
		teacherAPI.POST("/assessments/:assessment_id/complete", handlers.Assessment.Complete)
		teacherAPI.GET("/assessments/:assessment_id/results", handlers.Assessment.Results)
		teacherAPI.GET("/assessments/:assessment_id/attempts/:attempt_id/events", handlers.Assessment.AttemptEvents)

		teacherAPI.POST("/students/:student_id/session/reset", handlers.Auth.ResetStudentSession)
	}

	return router
}
