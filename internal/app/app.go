package app

import (
	"context"
	"fmt"

	"github.com/yungbote/examcourse-backend/internal/data/db"
	"github.com/yungbote/examcourse-backend/internal/http"
	"github.com/yungbote/examcourse-backend/internal/observability"
	"github.com/yungbote/examcourse-backend/internal/platform/envutil"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type App struct {
	Log    *logger.Logger
	DB     *db.Service
	Cfg    Config
	Gen    *CourseGen
	Server *http.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: envutil.String("LOG_MODE", "development"),
		Version:     cfg.Version,
	})

	dbs, err := db.Open(db.ConfigFromEnv(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	gen, err := WireCourseGen(dbs.DB(), log)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	sqlDB, err := dbs.DB().DB()
	if err != nil {
		_ = gen.Close()
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("database handle: %w", err)
	}

	return &App{
		Log:          log,
		DB:           dbs,
		Cfg:          cfg,
		Gen:          gen,
		Server:       wireServer(log, cfg, gen, sqlDB),
		otelShutdown: shutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Gen.Close(); err != nil {
		a.Log.Warn("redis close failed", "error", err)
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("database close failed", "error", err)
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Log.Sync()
}
