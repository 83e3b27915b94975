package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/pkg/configuration"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), configuration.OpenTelemetryOptions{
		Enabled:  false,
		TempoURL: "localhost:4318",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetup_CreatesProvider(t *testing.T) {
	for _, endpoint := range []string{"http://192.0.2.1:4318", "192.0.2.1:4318"} {
		t.Run(endpoint, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), configuration.OpenTelemetryOptions{
				Enabled:     true,
				TempoURL:    endpoint,
				ServiceName: "electoral-test",
			})
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestExporterOptions(t *testing.T) {
	require.Len(t, exporterOptions("https://tempo.example:4318/v1/traces"), 1)
	require.Len(t, exporterOptions("localhost:4318"), 2)
}
