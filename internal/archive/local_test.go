package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocal_PutObject(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "media/creator/clip.mp4", "video/mp4", strings.NewReader("payload"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "media", "creator", "clip.mp4"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "media", "creator", "clip.mp4"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestLocal_CreatesMissingBaseDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := NewLocal(dir)
	require.NoError(t, err)
	require.DirExists(t, dir)
}

func TestLocal_RejectsEscapingPath(t *testing.T) {
	t.Parallel()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.bin", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestLocal_RejectsEmptyPath(t *testing.T) {
	t.Parallel()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("x"))
	require.Error(t, err)
}
