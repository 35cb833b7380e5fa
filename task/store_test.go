package task_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/task"
)

func TestStoreLoadRequiresCrashDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	store := task.NewStore(root)

	_, err := store.Load(42, task.TypeRetrace)
	require.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "42", "crash"), 0o755))

	tsk, err := store.Load(42, task.TypeRetrace)
	require.NoError(t, err)
	require.Equal(t, 42, tsk.ID)
	require.Equal(t, filepath.Join(root, "42"), tsk.SaveDir)
	require.Equal(t, filepath.Join(root, "42", "crash"), tsk.CrashDir)
	require.Equal(t, task.StatusInit, tsk.Status)
}

func TestStoreWriteResult(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1", "crash"), 0o755))

	store := task.NewStore(root)
	tsk, err := store.Load(1, task.TypeRetrace)
	require.NoError(t, err)

	require.NoError(t, store.WriteResult(tsk, task.ResultKeyExploitable, []byte("yes")))

	content, err := os.ReadFile(filepath.Join(tsk.ResultsDir, task.ResultKeyExploitable))
	require.NoError(t, err)
	require.Equal(t, "yes", string(content))
}

func TestStoreClean(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1", "crash"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1", "work"), 0o755))

	store := task.NewStore(root)
	tsk, err := store.Load(1, task.TypeRetrace)
	require.NoError(t, err)

	require.NoError(t, store.Clean(tsk))
	require.NoDirExists(t, filepath.Join(root, "1", "work"))
}
