package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantLevel zapcore.Level
	}{
		{name: "development", cfg: Config{Development: true}, wantLevel: zapcore.DebugLevel},
		{name: "production", cfg: Config{Service: "trends-gateway"}, wantLevel: zapcore.InfoLevel},
		{name: "level override", cfg: Config{Level: "WARN"}, wantLevel: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			defer logger.Sync() //nolint:errcheck // best-effort flush
			require.True(t, logger.Core().Enabled(tt.wantLevel))
			require.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}
