package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCoordinator(rdb, logger.NewNop())
}

func TestAcquireIsExclusive(t *testing.T) {
	c := testCoordinator(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	release, ok, err := c.Acquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := c.Acquire(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("second Acquire should fail: ok=%v err=%v", ok, err)
	}
	release()
	release()

	release2, ok, err := c.Acquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire after release: ok=%v err=%v", ok, err)
	}
	release2()
}

func TestPublishRunEvent(t *testing.T) {
	c := testCoordinator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := c.rdb.Subscribe(ctx, c.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.PublishRunEvent(ctx, RunEvent{RunID: "r", ExamID: "e", Status: "succeeded"}); err != nil {
		t.Fatalf("PublishRunEvent: %v", err)
	}
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Payload == "" {
		t.Fatal("empty payload")
	}
}
