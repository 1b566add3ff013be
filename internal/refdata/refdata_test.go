package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/config"
)

func writeTable(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesPipeTables(t *testing.T) {
	cfg := config.RefDataConfig{
		StrokeCountFile: writeTable(t, "counts.txt", "1|永|5\n2|水|4\nbadline\n3||9\n"),
		StrokeOrderFile: writeTable(t, "orders.txt", "1|永|点横折钩横撇捺\n"),
		PinyinFile:      writeTable(t, "pinyin.txt", "1|永|yǒng\n"),
	}
	s, err := Load(cfg)
	require.NoError(t, err)

	require.Equal(t, 5, s.StrokeCount("永"))
	require.Equal(t, 4, s.StrokeCount("水"))
	require.Equal(t, 0, s.StrokeCount("火"))
	require.Equal(t, "点横折钩横撇捺", s.StrokeOrder("永"))
	require.Equal(t, "yǒng", s.Pinyin("永"))
}

func TestLoadMissingFilesTolerated(t *testing.T) {
	s, err := Load(config.RefDataConfig{})
	require.NoError(t, err)
	require.Equal(t, 0, s.StrokeCount("永"))
	require.Equal(t, "", s.StrokeOrder("永"))
	require.Equal(t, "", s.Pinyin("永"))
}

func TestLoadNonNumericStrokeCountSkipped(t *testing.T) {
	cfg := config.RefDataConfig{
		StrokeCountFile: writeTable(t, "counts.txt", "1|永|five\n2|水|4\n"),
	}
	s, err := Load(cfg)
	require.NoError(t, err)
	require.Equal(t, 0, s.StrokeCount("永"))
	require.Equal(t, 4, s.StrokeCount("水"))
}
