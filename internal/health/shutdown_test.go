package health_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aziz-dev/backend-kassa/internal/health"
)

type healthyChecker struct{}

func (healthyChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (healthyChecker) PingRedis(context.Context, time.Duration) error { return nil }

func TestReadinessGateFlipsDuringDrain(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })

	handler := health.Handler{Checker: healthyChecker{}}

	health.SetReady(true)
	require.Equal(t, http.StatusOK, probeReady(handler).Code)

	// Shutdown flips the gate first so the balancer drains us before the
	// listener closes.
	health.SetReady(false)
	require.Equal(t, http.StatusServiceUnavailable, probeReady(handler).Code)
}
