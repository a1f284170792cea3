package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	t.Run("returns logger stored in ctx", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		log := zap.New(core).Sugar()
		ctx := NewContext(context.Background(), log)

		FromContext(ctx).Infow("evaluated strategy", "symbol", "SPY")

		require.Equal(t, 1, logs.Len())
		require.Equal(t, "evaluated strategy", logs.All()[0].Message)
	})

	t.Run("falls back to global logger", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		restore := zap.ReplaceGlobals(zap.New(core))
		defer restore()

		FromContext(context.Background()).Info("no ctx logger")

		require.Equal(t, 2, logs.Len())
		require.Equal(t, zap.DebugLevel, logs.All()[0].Level)
		require.Equal(t, "no logger found in ctx - using global logger", logs.All()[0].Message)
		require.Equal(t, "no ctx logger", logs.All()[1].Message)
	})
}
