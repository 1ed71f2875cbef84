package app

import (
	"github.com/yungbote/examcourse-backend/internal/platform/envutil"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type Config struct {
	Port           string
	JWTSecretKey   string
	AllowedOrigins string
	ServiceName    string
	Version        string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:           envutil.String("PORT", "8080"),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AllowedOrigins: envutil.String("CORS_ALLOWED_ORIGINS", ""),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "examcourse-api"),
		Version:        envutil.String("APP_VERSION", "dev"),
	}
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY not set; using an insecure development secret")
		cfg.JWTSecretKey = "defaultsecret"
	}
	return cfg
}
