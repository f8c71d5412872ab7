package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "RENAME", FileOpRename.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

func TestNewScenarioWatcher_NoPaths(t *testing.T) {
	_, err := NewScenarioWatcher(nil)
	require.Error(t, err)
}

func TestNewScenarioWatcher_Options(t *testing.T) {
	f := filepath.Join(t.TempDir(), "expenses.yaml")
	require.NoError(t, os.WriteFile(f, []byte("name: x"), 0o644))

	w, err := NewScenarioWatcher([]string{f, f},
		WithDebounceDelay(time.Second),
		WithWatcherLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, []string{f}, w.Paths())
	assert.Equal(t, time.Second, w.debounceDelay)
	assert.False(t, w.IsRunning())
}

func TestScenarioWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "expenses.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("name: a"), 0o644))

	w, err := NewScenarioWatcher([]string{watched}, WithDebounceDelay(50*time.Millisecond))
	require.NoError(t, err)

	batches := make(chan []FileEvent, 10)
	w.OnChange(func(events []FileEvent) { batches <- events })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	require.Error(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(watched, []byte("name: b"), 0o644))
	}

	select {
	case events := <-batches:
		require.Len(t, events, 1)
		assert.Equal(t, watched, events[0].Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestScenarioWatcher_StopWithoutStart(t *testing.T) {
	f := filepath.Join(t.TempDir(), "voice.yaml")
	require.NoError(t, os.WriteFile(f, []byte("name: v"), 0o644))

	w, err := NewScenarioWatcher([]string{f})
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}
