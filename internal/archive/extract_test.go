package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	writer := zip.NewWriter(out)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, out.Close())
	return path
}

func TestExtractFlattensAndFilters(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"a.jpg":              "1",
		"nested/dir/b.png":   "2",
		"notes.txt":          "skip",
		"nested/c.jpeg":      "3",
		"__MACOSX/junk.jpg":  "4",
		"deep/deeper/d.webp": "skip",
	})
	workDir, imgDir, err := Extract(context.Background(), zipPath)
	require.NoError(t, err)
	defer os.RemoveAll(workDir)

	files, err := ListImages(imgDir)
	require.NoError(t, err)
	require.Equal(t, []string{"a.jpg", "b.png", "c.jpeg", "junk.jpg"}, files)
}

func TestExtractNoImagesFails(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"readme.md": "text"})
	_, _, err := Extract(context.Background(), zipPath)
	require.ErrorIs(t, err, appErr.ErrNoImages)
}

func TestExtractCorruptArchiveFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, _, err := Extract(context.Background(), path)
	require.ErrorIs(t, err, appErr.ErrExtraction)
}

func TestExtractCollisionLastWins(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"x/same.jpg": "first",
		"y/same.jpg": "second",
	})
	workDir, imgDir, err := Extract(context.Background(), zipPath)
	require.NoError(t, err)
	defer os.RemoveAll(workDir)

	files, err := ListImages(imgDir)
	require.NoError(t, err)
	require.Equal(t, []string{"same.jpg"}, files)
}

func TestListImagesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zz.png", "aa.jpg", "mid.bmp", "note.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := ListImages(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"aa.jpg", "mid.bmp", "zz.png"}, files)
}
