package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-vfs"
)

func newRepository(t *testing.T) (*FileRepository, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run"), 0o755))

	return NewFileRepository(vfs.NewPathFS(vfs.HostOSFS, root), "/run/iris.pid"), root
}

// TestSaveLoadRemove exercises the pid file lifecycle.
func TestSaveLoadRemove(t *testing.T) {
	t.Parallel()

	repo, root := newRepository(t)

	_, err := repo.Load()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Save(4242))

	contents, err := os.ReadFile(filepath.Join(root, "run", "iris.pid"))
	require.NoError(t, err)
	require.Equal(t, "4242\n", string(contents))

	pid, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, 4242, pid)

	// Only the pid file is left, no temporaries.
	entries, err := os.ReadDir(filepath.Join(root, "run"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, repo.Remove())
	require.NoError(t, repo.Remove())

	_, err = repo.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

// TestLoadMalformed rejects garbage and non-positive pids.
func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	repo, root := newRepository(t)

	for _, contents := range []string{"", "abc", "0", "-5"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "run", "iris.pid"), []byte(contents), 0o644))

		_, err := repo.Load()
		require.ErrorIs(t, err, ErrMalformed, contents)
	}
}
