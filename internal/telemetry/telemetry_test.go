package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/dropshop/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "test"}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	// Without a Sentry client this must not panic.
	CaptureError(errors.New("boom"), map[string]string{"path": "/x"})
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		ServiceName:  "test",
		OTLPEndpoint: "http://127.0.0.1:4318",
	}, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
