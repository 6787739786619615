//go:build windows

package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadDirCloseWithReadsInFlight(t *testing.T) {
	src, err := newNativeSource()
	require.NoError(t, err)

	require.NoError(t, src.Watch(1, t.TempDir()))
	dir := t.TempDir()
	require.NoError(t, src.Watch(2, dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
