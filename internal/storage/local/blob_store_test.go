// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "blobs")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	uri, err := store.PutObject(ctx, "thumbnails/l1/abc/og.png", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, filepath.Join("thumbnails", "l1", "abc", "og.png")))

	rc, err := store.GetObject(ctx, uri)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	// Overwrite in place.
	_, err = store.PutObject(ctx, "thumbnails/l1/abc/og.png", "image/png", bytes.NewReader([]byte("new")))
	require.NoError(t, err)
	rc2, err := store.GetObject(ctx, uri)
	require.NoError(t, err)
	defer rc2.Close()
	data, err = io.ReadAll(rc2)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.png", "", bytes.NewReader(nil))
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.PutObject(context.Background(), "  ", "", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestGetObjectErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.GetObject(ctx, "gs://bucket/obj")
	assert.Error(t, err)

	_, err = store.GetObject(ctx, "file:///etc/passwd")
	assert.ErrorContains(t, err, "path traversal")

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	_, err = store.GetObject(ctx, "file://"+filepath.Join(abs, "missing.png"))
	assert.True(t, errors.Is(err, linkpreview.ErrNotFound))
}
