package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o640))
	}
}

func TestPackAndList(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"index.html":     "<html>root</html>",
		"api/index.html": "<html>api</html>",
		"css/site.css":   "body{}",
	})
	dest := filepath.Join(t.TempDir(), "site.tar.gz")

	info, err := Pack(src, dest, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Files)
	assert.Len(t, info.Digest, 64)
	assert.Greater(t, info.Size, int64(0))

	names, err := List(dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"api/index.html", "css/site.css", "index.html"}, names)
}

func TestPackDeterministicDigest(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.html": "same content"})

	a, err := Pack(src, filepath.Join(t.TempDir(), "a.tar.gz"), 0)
	require.NoError(t, err)
	b, err := Pack(src, filepath.Join(t.TempDir(), "b.tar.gz"), 0)
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest, "identical trees must digest identically")
}

func TestPackDigestChangesWithContent(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	writeTree(t, srcA, map[string]string{"index.html": "one"})
	writeTree(t, srcB, map[string]string{"index.html": "two"})

	a, err := Pack(srcA, filepath.Join(t.TempDir(), "a.tar.gz"), 0)
	require.NoError(t, err)
	b, err := Pack(srcB, filepath.Join(t.TempDir(), "b.tar.gz"), 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestPackEmptyTreeFails(t *testing.T) {
	_, err := Pack(t.TempDir(), filepath.Join(t.TempDir(), "site.tar.gz"), 0)
	require.Error(t, err)
}

func TestPackSizeLimit(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.html": "0123456789012345678901234567890123456789"})
	_, err := Pack(src, filepath.Join(t.TempDir(), "site.tar.gz"), 10)
	assert.True(t, errors.Is(err, ErrTooLarge), "got %v", err)
}
