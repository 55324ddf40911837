package imgwalk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestWalkFindsSupportedImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.txt"))
	touch(t, filepath.Join(dir, "sub", "c.png"))

	w, err := New(dir)
	require.NoError(t, err)

	var found []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		found = append(found, fi.RelativePath)
		return nil
	}))

	assert.ElementsMatch(t, []string{"a.jpg", filepath.Join("sub", "c.png")}, found)
}

func TestWalkSkipsDefaultIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "node_modules", "d.jpg"))
	touch(t, filepath.Join(dir, "keep.jpg"))

	w, err := New(dir)
	require.NoError(t, err)

	var found []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		found = append(found, fi.RelativePath)
		return nil
	}))

	assert.Equal(t, []string{"keep.jpg"}, found)
}

func TestWalkHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "private.jpg"))
	touch(t, filepath.Join(dir, "public.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("private.jpg\n"), 0o644))

	w, err := New(dir)
	require.NoError(t, err)

	var found []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		found = append(found, fi.RelativePath)
		return nil
	}))

	assert.Equal(t, []string{"public.jpg"}, found)
}
