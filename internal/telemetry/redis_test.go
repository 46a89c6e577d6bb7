package telemetry_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/keiko/internal/telemetry"
)

func TestMonitorRedis(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	telemetry.SetupLogger(&buf, telemetry.LogConfig{Level: "debug", Format: "text"})

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	defer rc.Close()

	require.NoError(t, telemetry.MonitorRedis(rc))

	ctx := context.Background()
	require.NoError(t, rc.Set(ctx, "keiko:k", "v", 0).Err())

	// A miss is not a failure.
	require.ErrorIs(t, rc.Get(ctx, "keiko:missing").Err(), redis.Nil)

	// Unknown commands are.
	require.Error(t, rc.Do(ctx, "nosuchcommand").Err())

	out := buf.String()
	assert.Contains(t, out, "redis: dialed")
	assert.Contains(t, out, "cmd=set")
	assert.Contains(t, out, "cmd=get")
	assert.Contains(t, out, "redis: command failed")
	assert.Contains(t, out, "cmd=nosuchcommand")

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "cmd=get ") {
			assert.NotContains(t, line, "command failed")
		}
	}
}
