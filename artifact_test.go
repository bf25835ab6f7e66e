package rknnconvert

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDir(t *testing.T) {

	ctx := context.Background()
	fs := afs.New()
	dir := filepath.Join(t.TempDir(), "rknn_models")

	require.NoError(t, EnsureDir(ctx, fs, dir))
	assert.DirExists(t, dir)

	existing := filepath.Join(dir, "existing.rknn")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0o644))

	// a second call leaves the directory and its contents alone
	require.NoError(t, EnsureDir(ctx, fs, dir))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestEnsureDirNested(t *testing.T) {

	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, EnsureDir(context.Background(), afs.New(), dir))
	assert.DirExists(t, dir)
}
