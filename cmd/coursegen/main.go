package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/examcourse-backend/internal/app"
	"github.com/yungbote/examcourse-backend/internal/data/db"
	"github.com/yungbote/examcourse-backend/internal/data/seed"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/envutil"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
	"github.com/yungbote/examcourse-backend/internal/platform/shutdown"
)

func main() {
	var (
		examFlag string
		userFlag string
		seedPath string
		force    bool
		status   bool
	)
	flag.StringVar(&examFlag, "exam", "", "exam id to generate a course for")
	flag.StringVar(&userFlag, "user", "", "user id of the exam owner")
	flag.StringVar(&seedPath, "seed", "", "YAML or JSON exam fixture to load before generating")
	flag.BoolVar(&force, "force", false, "regenerate even inside the regeneration window")
	flag.BoolVar(&status, "status", false, "print the stored course instead of generating")
	flag.Parse()

	if err := run(examFlag, userFlag, seedPath, force, status); err != nil {
		fmt.Fprintf(os.Stderr, "coursegen: %v\n", err)
		os.Exit(1)
	}
}

func run(examFlag, userFlag, seedPath string, force, status bool) error {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	userID, err := parseOptionalUUID(userFlag)
	if err != nil {
		return fmt.Errorf("-user: %w", err)
	}
	examID, err := parseOptionalUUID(examFlag)
	if err != nil {
		return fmt.Errorf("-exam: %w", err)
	}

	dbs, err := db.Open(db.ConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer dbs.Close()
	if err := dbs.AutoMigrateAll(); err != nil {
		return err
	}

	gen, err := app.WireCourseGen(dbs.DB(), log)
	if err != nil {
		return err
	}
	defer gen.Close()

	if seedPath != "" {
		f, err := seed.ReadFile(seedPath)
		if err != nil {
			return err
		}
		err = db.NewTxRunner(dbs.DB()).InTx(ctx, func(dbc dbctx.Context) error {
			e, err := seed.Apply(dbc, gen.Repos, f, userID)
			if err != nil {
				return err
			}
			examID, userID = e.ID, e.OwnerUserID
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("seeded exam", "exam_id", examID.String(), "questions", len(f.Questions))
	}
	if examID == uuid.Nil || userID == uuid.Nil {
		return fmt.Errorf("need -exam and -user, or -seed")
	}

	var out any
	if status {
		out, err = gen.Service.Status(ctx, examID, userID)
	} else {
		out, err = gen.Service.Generate(ctx, coursegen.Request{ExamID: examID, UserID: userID, Force: force})
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseOptionalUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
