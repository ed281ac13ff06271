package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/tracker"
)

type listerFunc func(ctx context.Context, filter string) ([]string, error)

func (f listerFunc) ListNetworks(ctx context.Context, filter string) ([]string, error) {
	return f(ctx, filter)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_FirstMatch(t *testing.T) {
	var gotFilter string
	l := listerFunc(func(_ context.Context, filter string) ([]string, error) {
		gotFilter = filter
		return []string{"app_ml_pipeline_network", "other_ml_pipeline_network"}, nil
	})
	tr := tracker.New(discard())

	name := New(l, tr, "ml_pipeline_network", "ml_pipeline_network", discard()).Resolve(context.Background())

	assert.Equal(t, "app_ml_pipeline_network", name)
	assert.Equal(t, "ml_pipeline_network", gotFilter)
	assert.Empty(t, tr.Snapshot().Logs)
}

func TestResolve_FallbackLogsWarning(t *testing.T) {
	tests := []struct {
		name string
		nets []string
		err  error
	}{
		{"no match", nil, nil},
		{"list error", nil, errors.New("cannot connect to the docker daemon")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := listerFunc(func(context.Context, string) ([]string, error) { return tt.nets, tt.err })
			tr := tracker.New(discard())

			name := New(l, tr, "ml_pipeline_network", "default_net", discard()).Resolve(context.Background())
			assert.Equal(t, "default_net", name)

			logs := tr.Snapshot().Logs
			require.Len(t, logs, 1)
			assert.Equal(t, domain.LogLevelWarning, logs[0].Level)
			assert.Contains(t, logs[0].Message, "default_net")
		})
	}
}

func TestResolve_NilJournal(t *testing.T) {
	l := listerFunc(func(context.Context, string) ([]string, error) { return nil, nil })
	assert.Equal(t, "net", New(l, nil, "x", "net", nil).Resolve(context.Background()))
}
