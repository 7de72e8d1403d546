package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestGetLogs(t *testing.T) {
	path := writeLines(t,
		`{"level":"INFO","timestamp":"2024-01-01T00:00:00Z","message":"first","module":"Coordinator"}`,
		`not json`,
		`{"level":"ERROR","timestamp":"2024-01-01T00:00:01Z","message":"second","module":"FaceStore"}`,
		`{"level":"INFO","timestamp":"2024-01-01T00:00:02Z","message":"third","module":"Coordinator"}`,
	)
	l := &ZapLogger{logger: NewNopLogger().logger, filePath: path}

	t.Run("newest first", func(t *testing.T) {
		logs, err := l.GetLogs("", 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "third", logs[0].Message)
		assert.Equal(t, "first", logs[2].Message)
	})

	t.Run("level filter is case insensitive", func(t *testing.T) {
		logs, err := l.GetLogs("error", 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "FaceStore", logs[0].Module)
	})

	t.Run("pagination", func(t *testing.T) {
		logs, err := l.GetLogs("", 1, 1)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "second", logs[0].Message)

		logs, err = l.GetLogs("", 5, 10)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("lookup by id", func(t *testing.T) {
		logs, err := l.GetLogs("", 10, 0)
		require.NoError(t, err)

		found, err := l.GetLogById(logs[1].Id)
		require.NoError(t, err)
		assert.Equal(t, "second", found.Message)

		_, err = l.GetLogById("missing")
		assert.ErrorIs(t, err, ErrLogNotFound)
	})
}

func TestGetLogsMissingFile(t *testing.T) {
	l := &ZapLogger{logger: NewNopLogger().logger, filePath: filepath.Join(t.TempDir(), "none.log")}
	logs, err := l.GetLogs("", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	logs, err = NewNopLogger().GetLogs("", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
