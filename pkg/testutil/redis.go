package testutil

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const defaultRedisImage = "redis:7-alpine"

// NewRedisClient starts a throwaway Redis container and returns a client
// connected to it. Both are closed when the test ends. FARMACIA_TEST_REDIS_IMAGE
// overrides the image.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	SkipIfShort(t)

	ctx := context.Background()
	container, err := tcredis.RunContainer(ctx,
		testcontainers.WithImage(config.GetEnv("FARMACIA_TEST_REDIS_IMAGE", defaultRedisImage)),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("failed to parse redis url %s: %v", url, err)
	}

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
