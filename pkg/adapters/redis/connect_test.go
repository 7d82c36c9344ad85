package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quern-dev/quern/internal/logging"
	"github.com/quern-dev/quern/internal/testutils"
	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
)

func TestConnect(t *testing.T) {
	mr, _ := testutils.SetupRedis(t)

	settings := redisadapter.DefaultSettings()
	settings.Addr = mr.Addr()

	client, err := redisadapter.Connect(context.Background(), settings, logging.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnect_FailsAfterRetries(t *testing.T) {
	settings := redisadapter.DefaultSettings()
	settings.Addr = "127.0.0.1:1" // nothing listens here
	settings.ConnTimeout = 50 * time.Millisecond
	settings.ConnRetries = 1
	settings.ConnRetryDelay = 10 * time.Millisecond

	_, err := redisadapter.Connect(context.Background(), settings, logging.NewNop())
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	_, client := testutils.SetupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "some-key", "v", 0).Err())

	info, err := redisadapter.Info(ctx, client)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.DBKeys)
	assert.NotEmpty(t, info.String())
}
