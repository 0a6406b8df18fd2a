package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Melodeck/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	good := map[string]string{
		"songs/a.mp3":       "songs/a.mp3",
		"/songs/a.mp3":      "songs/a.mp3",
		`cover_arts\b.png`:  "cover_arts/b.png",
		"songs/../songs/a":  "songs/a",
		"songs//nested/./x": "songs/nested/x",
	}
	for in, want := range good {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "/", ".", "..", "../etc/passwd", "songs/../../x"} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "songs/1_a.mp3", strings.NewReader("ID3 audio"), 9, "audio/mpeg"))
	require.FileExists(t, filepath.Join(root, "songs", "1_a.mp3"))

	rc, info, err := s.Open(ctx, "songs/1_a.mp3")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, "ID3 audio", string(body))
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "songs/1_a.mp3", info.Key)
	assert.Equal(t, "audio/mpeg", info.ContentType)

	// seekable for range requests
	rc, _, err = s.Open(ctx, "songs/1_a.mp3")
	require.NoError(t, err)
	_, err = rc.Seek(4, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "audio", string(rest))

	require.NoError(t, s.Delete(ctx, "songs/1_a.mp3"))
	require.NoError(t, s.Delete(ctx, "songs/1_a.mp3"), "deleting twice is fine")

	_, _, err = s.Open(ctx, "songs/1_a.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsEscapes(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Put(ctx, "../outside", strings.NewReader("x"), 1, ""), ErrInvalidKey)
	_, _, err = s.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, s.Delete(ctx, ".."), ErrInvalidKey)
}

func TestLocalStoreOpenDirectory(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "songs/a.mp3", strings.NewReader("x"), 1, ""))

	_, _, err = s.Open(ctx, "songs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorePutNeverReplaces(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "songs/1_a.mp3", strings.NewReader("first"), 5, ""))
	err = s.Put(ctx, "songs/1_a.mp3", strings.NewReader("second"), 6, "")
	assert.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(filepath.Join(root, "songs", "1_a.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "songs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalStorePutFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	err = s.Put(ctx, "songs/broken.mp3", failingReader{}, -1, "")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "songs"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorePutHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(ctx, "songs/a.mp3", strings.NewReader("data"), 4, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStoreListAndStats(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "songs/b.mp3", strings.NewReader("12345"), 5, ""))
	require.NoError(t, s.Put(ctx, "songs/a.flac", strings.NewReader("123"), 3, ""))
	require.NoError(t, s.Put(ctx, "cover_arts/a.png", strings.NewReader("1"), 1, ""))

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	keys := make([]string, len(all))
	for i, o := range all {
		keys[i] = o.Key
	}
	assert.Equal(t, []string{"cover_arts/a.png", "songs/a.flac", "songs/b.mp3"}, keys)

	songs, err := s.List(ctx, "songs/")
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	stats, err := Stats(ctx, s, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalObjects)
	assert.Equal(t, int64(9), stats.TotalSize)
	assert.Equal(t, int64(2), stats.ByType["audio"])
	assert.Equal(t, int64(1), stats.ByType["image"])
	assert.False(t, stats.LastModified.IsZero())
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{StorageBackend: "local", UploadDir: t.TempDir()}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	cfg.StorageBackend = "ftp"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "10.0 MB", FormatSize(10<<20))
}

func TestMediaKind(t *testing.T) {
	assert.Equal(t, "audio", MediaKind("songs/x.MP3"))
	assert.Equal(t, "image", MediaKind("cover_arts/x.webp"))
	assert.Equal(t, "other", MediaKind("notes.txt"))
}
