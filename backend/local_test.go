package backend

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.Nil(t, err)

	assert.Nil(t, l.WriteFile("/f.txt", []byte("hello"), false, 0644))
	data, err := l.ReadFile("/f.txt")
	assert.Nil(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Nil(t, l.WriteFile("/f.txt", []byte(" world"), true, 0644))
	data, err = l.ReadFile("/f.txt")
	assert.Nil(t, err)
	assert.Equal(t, "hello world", string(data))

	fi, err := l.Stat("/f.txt")
	assert.Nil(t, err)
	assert.Equal(t, int64(len("hello world")), fi.Size)
	assert.False(t, fi.IsDir())

	assert.Nil(t, l.Rename("/f.txt", "/g.txt"))
	_, err = l.Stat("/f.txt")
	assert.ErrorIs(t, err, ErrNotExist)

	assert.Nil(t, l.Remove("/g.txt"))
}

func TestLocalDirectories(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.Nil(t, err)

	assert.Nil(t, l.Mkdir("/d", 0755))
	fi, err := l.Stat("/d")
	assert.Nil(t, err)
	assert.True(t, fi.IsDir())

	assert.Nil(t, l.WriteFile("/d/x", []byte("x"), false, 0644))
	names, err := l.ReadDir("/d")
	assert.Nil(t, err)
	assert.Equal(t, []string{"x"}, names)

	// Rmdir refuses files.
	assert.ErrorIs(t, l.Rmdir("/d/x"), ErrNotDir)

	assert.Nil(t, l.Remove("/d/x"))
	assert.Nil(t, l.Rmdir("/d"))
}

func TestLocalStreams(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.Nil(t, err)

	w, err := l.OpenWrite("/s.txt", false, 0644)
	require.Nil(t, err)
	_, err = w.Write([]byte("streamed"))
	assert.Nil(t, err)
	assert.Nil(t, w.Close())

	r, err := l.OpenRead("/s.txt")
	require.Nil(t, err)
	data, err := io.ReadAll(r)
	assert.Nil(t, err)
	assert.Nil(t, r.Close())
	assert.Equal(t, "streamed", string(data))

	_, err = l.OpenRead("/missing")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestNewLocalRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.Nil(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := NewLocal(file)
	assert.ErrorIs(t, err, ErrNotDir)
	_, err = NewLocal(filepath.Join(dir, "missing"))
	assert.NotNil(t, err)
}
