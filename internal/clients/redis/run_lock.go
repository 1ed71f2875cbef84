package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/examcourse-backend/internal/platform/envutil"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunEvent is published whenever a generation run changes status.
type RunEvent struct {
	RunID  string `json:"run_id"`
	ExamID string `json:"exam_id"`
	Status string `json:"status"`
	Phase  string `json:"phase,omitempty"`
	At     string `json:"at"`
}

type Coordinator struct {
	log     *logger.Logger
	rdb     *goredis.Client
	prefix  string
	channel string
}

// NewCoordinatorFromEnv returns nil, nil when REDIS_ADDR is unset: cross-instance locking
// and run events are optional.
func NewCoordinatorFromEnv(log *logger.Logger) (*Coordinator, error) {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewCoordinator(rdb, log), nil
}

func NewCoordinator(rdb *goredis.Client, log *logger.Logger) *Coordinator {
	return &Coordinator{
		log:     log.With("service", "RedisCoordinator"),
		rdb:     rdb,
		prefix:  envutil.String("REDIS_LOCK_PREFIX", "examcourse:lock:"),
		channel: envutil.String("REDIS_CHANNEL", "examcourse:runs"),
	}
}

// Acquire takes key for ttl with SET NX. ok is false when another holder has it.
// The returned release func is safe to call more than once.
func (c *Coordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token, err := randomToken()
	if err != nil {
		return nil, false, err
	}
	full := c.prefix + strings.TrimSpace(key)
	ok, err = c.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, c.rdb, []string{full}, token).Err(); err != nil {
			c.log.Warn("redis lock release failed", "key", full, "error", err)
		}
	}, true, nil
}

func (c *Coordinator) PublishRunEvent(ctx context.Context, ev RunEvent) error {
	if ev.At == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.channel, raw).Err()
}

func (c *Coordinator) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
