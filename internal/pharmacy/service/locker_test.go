package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLocker_AlwaysGrants(t *testing.T) {
	var l service.NoopLocker
	release, err := l.Obtain(context.Background(), service.ImportLockKey, time.Second)
	require.NoError(t, err)
	release()

	_, err = l.Obtain(context.Background(), service.ImportLockKey, time.Second)
	assert.NoError(t, err)
}

func TestRedisLocker_LeaseOutlivesTTLWhileHeld(t *testing.T) {
	rdb := testutil.NewRedisClient(t)
	locker := service.NewRedisLocker(rdb, "farmacia-test", logger.New("test", "test"))
	ctx := context.Background()
	ttl := 500 * time.Millisecond

	release, err := locker.Obtain(ctx, service.ImportLockKey, ttl)
	require.NoError(t, err)

	time.Sleep(3 * ttl)

	_, err = locker.Obtain(ctx, service.ImportLockKey, ttl)
	assert.True(t, errors.Is(err, errors.ErrContendedResource))

	release()
	release()

	again, err := locker.Obtain(ctx, service.ImportLockKey, ttl)
	require.NoError(t, err)
	again()
}
