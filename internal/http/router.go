package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/examcourse-backend/internal/http/handlers"
	httpMW "github.com/yungbote/examcourse-backend/internal/http/middleware"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins string

	AuthMiddleware *httpMW.AuthMiddleware
	CourseHandler  *httpH.CourseHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Exam course
		if cfg.CourseHandler != nil {
			protected.POST("/exams/:id/course", cfg.CourseHandler.GenerateCourse)
			protected.GET("/exams/:id/course", cfg.CourseHandler.GetCourse)
		}
	}

	return r
}
