package uploader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMediaFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPG", true},
		{"raw.CR3", true},
		{"clip.mp4", true},
		{"clip.MOV", true},
		{"archive.heic", true},
		{"notes.txt", false},
		{"doc.pdf", false},
		{"noextension", false},
		{"weird.jpg.bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, IsMediaFile(tt.path))
		})
	}
}

func TestCollectMediaFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	mk := func(rel string) string {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		return p
	}

	top1 := mk("a.jpg")
	top2 := mk("b.png")
	mk("skip.txt")
	nested := mk(filepath.Join("sub", "c.mp4"))

	t.Run("flat", func(t *testing.T) {
		got := CollectMediaFiles([]string{dir}, false)
		require.Equal(t, []string{top1, top2}, got)
	})

	t.Run("recursive", func(t *testing.T) {
		got := CollectMediaFiles([]string{dir}, true)
		require.Equal(t, []string{top1, top2, nested}, got)
	})

	t.Run("deduplicates", func(t *testing.T) {
		got := CollectMediaFiles([]string{top1, top1, dir}, false)
		require.Equal(t, []string{top1, top2}, got)
	})

	t.Run("missing path filtered by extension", func(t *testing.T) {
		ghost := filepath.Join(dir, "ghost.jpg")
		got := CollectMediaFiles([]string{ghost, filepath.Join(dir, "ghost.txt")}, false)
		require.Equal(t, []string{ghost}, got)
	})
}
