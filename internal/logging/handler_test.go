package logging

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofongang/World-Monitor/internal/store"
)

func setupHandler(t *testing.T) (*slog.Logger, *store.Store, *bytes.Buffer) {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))

	s := store.New(db)
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewIngestLogHandler(inner, s)), s, &buf
}

func TestHandlerMirrorsWarnAndAbove(t *testing.T) {
	logger, s, buf := setupHandler(t)
	ctx := context.Background()

	logger.Info("routine pass", "connector", "RSS")
	logger.Warn("slow feed", "connector", "RSS")
	logger.Error("fetch failed", "connector", "GDELT")

	logs, err := s.ListIngestionLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "ERROR", logs[0].Level)
	assert.Equal(t, "GDELT", logs[0].Connector)
	assert.Equal(t, "fetch failed", logs[0].Message)
	assert.Equal(t, "WARNING", logs[1].Level)
	assert.Equal(t, "RSS", logs[1].Connector)

	// Every record still reaches the wrapped handler.
	assert.Contains(t, buf.String(), "routine pass")
	assert.Contains(t, buf.String(), "fetch failed")
}

func TestHandlerDefaultsConnector(t *testing.T) {
	logger, s, _ := setupHandler(t)

	logger.Warn("scheduler drift")

	logs, err := s.ListIngestionLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].Connector)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything"))
}
