package app

import (
	"github.com/yungbote/examcourse-backend/internal/http"
	httpH "github.com/yungbote/examcourse-backend/internal/http/handlers"
	httpMW "github.com/yungbote/examcourse-backend/internal/http/middleware"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, gen *CourseGen, health httpH.Pinger) *http.Server {
	log.Info("Wiring handlers...")
	return http.NewServer(http.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		CourseHandler:  httpH.NewCourseHandler(log, gen.Service),
		HealthHandler:  httpH.NewHealthHandler(health),
	})
}
