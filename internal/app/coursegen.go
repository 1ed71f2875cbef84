package app

import (
	"fmt"

	"gorm.io/gorm"

	redisclient "github.com/yungbote/examcourse-backend/internal/clients/redis"
	"github.com/yungbote/examcourse-backend/internal/data/db"
	examrepo "github.com/yungbote/examcourse-backend/internal/data/repos/exam"
	"github.com/yungbote/examcourse-backend/internal/inference/config"
	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/inference/router"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/lessons"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/topics"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

// CourseGen is everything a course-generation run needs, shared by the API and the CLI.
type CourseGen struct {
	Config      *config.Config
	Repos       examrepo.Repos
	Service     *coursegen.Service
	Coordinator *redisclient.Coordinator
}

// WireCourseGen builds the provider router, gateway, detector, lesson generator and
// service on top of an open database. Redis coordination is attached when REDIS_ADDR is set.
func WireCourseGen(gdb *gorm.DB, log *logger.Logger) (*CourseGen, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load generation config: %w", err)
	}
	rt, err := router.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init provider router: %w", err)
	}
	g := cfg.Generation
	gw := gateway.New(rt, log, gateway.WithBackoffUnit(g.BackoffUnit.Duration))

	reposet := examrepo.NewRepos(gdb, log)
	deps := coursegen.Deps{
		Log:                log,
		Tx:                 db.NewTxRunner(gdb),
		Repos:              reposet,
		Detector:           topics.NewDetector(gw, coursegen.DetectorConfig(g), log),
		Lessons:            lessons.NewGenerator(gw, coursegen.LessonConfig(g), coursegen.LeakageDetector(g), log),
		RegenerationWindow: g.RegenerationWindow.Duration,
		LockTTL:            g.RunLockTTL.Duration,
	}

	coord, err := redisclient.NewCoordinatorFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("init redis coordinator: %w", err)
	}
	if coord != nil {
		deps.Locker = coord
		deps.Events = coord
	} else {
		log.Info("REDIS_ADDR not set; run locking is process-local")
	}

	log.Info("course generation wired",
		"providers", rt.Providers(),
		"detection_provider", g.DetectionProvider,
		"lesson_provider", g.LessonProvider,
	)
	return &CourseGen{
		Config:      cfg,
		Repos:       reposet,
		Service:     coursegen.NewService(deps),
		Coordinator: coord,
	}, nil
}

func (c *CourseGen) Close() error {
	if c == nil || c.Coordinator == nil {
		return nil
	}
	return c.Coordinator.Close()
}
