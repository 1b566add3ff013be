package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/config"
	"github.com/inkstone-dev/inkstone/internal/filestore"
	"github.com/inkstone-dev/inkstone/internal/glyph"
	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/refdata"
	"github.com/inkstone-dev/inkstone/internal/repo"
	"github.com/inkstone-dev/inkstone/internal/service"
	"github.com/inkstone-dev/inkstone/test/testutil"
)

func writeRefFile(t *testing.T, dir, name string, lines string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func setupCatalog(t *testing.T) (*service.HanziService, string, func()) {
	t.Helper()
	db, cleanup := testutil.OpenTestDB(t)

	refDir := t.TempDir()
	ref, err := refdata.Load(config.RefDataConfig{
		StrokeCountFile: writeRefFile(t, refDir, "counts.txt", "1|好|6\n"),
		StrokeOrderFile: writeRefFile(t, refDir, "orders.txt", "1|好|撇点 撇 横 横撇 竖钩 横\n"),
		PinyinFile:      writeRefFile(t, refDir, "pinyin.txt", "1|好|hao3\n"),
	})
	require.NoError(t, err)

	storeDir := t.TempDir()
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": storeDir},
	})
	require.NoError(t, err)

	catalog, err := service.NewHanziService(repo.NewHanziRepo(db), ref, store, glyph.NoopRenderer{})
	require.NoError(t, err)
	return catalog, storeDir, cleanup
}

func writeSampleImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	return path
}

func TestImportUpsertExplicitIDInsertAndUpdate(t *testing.T) {
	catalog, storeDir, cleanup := setupCatalog(t)
	defer cleanup()

	stored, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		ID:        "10001",
		Character: "好",
		Structure: model.StructureLeftRight,
		Variant:   model.VariantSimplified,
		Level:     model.LevelB,
		ImagePath: writeSampleImage(t, "好.png"),
	})
	require.NoError(t, err)
	require.Equal(t, "10001", stored.ID)
	// Stroke count, order and pinyin come from the reference tables.
	require.Equal(t, 6, stored.StrokeCount)
	require.Equal(t, "hao3", stored.Pinyin)
	require.NotEmpty(t, stored.StrokeOrder)
	require.FileExists(t, filepath.Join(storeDir, "uploads", "10001_0.png"))

	// Re-importing the same id updates in place, the row count is unchanged.
	again, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		ID:        "10001",
		Character: "好",
		Variant:   model.VariantSimplified,
		Level:     model.LevelA,
		Comment:   "neat strokes",
	})
	require.NoError(t, err)
	require.Equal(t, "10001", again.ID)
	require.Equal(t, model.LevelA, again.Level)
	require.Equal(t, "neat strokes", again.Comment)

	_, total, err := catalog.List(context.Background(), model.HanziFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestImportUpsertAllocatesWithoutID(t *testing.T) {
	catalog, _, cleanup := setupCatalog(t)
	defer cleanup()

	first, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		Character: "思",
		Structure: model.StructureTopBottom,
		Variant:   model.VariantSimplified,
		Level:     model.DefaultLevel,
	})
	require.NoError(t, err)
	require.Equal(t, "20001", first.ID)

	// Without MatchByCharacter the same character gets a second row.
	second, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		Character: "思",
		Structure: model.StructureTopBottom,
		Variant:   model.VariantSimplified,
		Level:     model.DefaultLevel,
	})
	require.NoError(t, err)
	require.Equal(t, "20002", second.ID)

	matched, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		Character:        "思",
		Variant:          model.VariantSimplified,
		Level:            model.LevelA,
		MatchByCharacter: true,
	})
	require.NoError(t, err)
	require.Equal(t, model.LevelA, matched.Level)

	_, total, err := catalog.List(context.Background(), model.HanziFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestImportUpsertStructureChangeRekeys(t *testing.T) {
	catalog, storeDir, cleanup := setupCatalog(t)
	defer cleanup()

	stored, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		ID:        "10001",
		Character: "思",
		Structure: model.StructureLeftRight,
		Variant:   model.VariantSimplified,
		Level:     model.DefaultLevel,
		ImagePath: writeSampleImage(t, "思.png"),
	})
	require.NoError(t, err)
	require.Equal(t, "10001", stored.ID)

	moved, err := catalog.ImportUpsert(context.Background(), model.ImportRecord{
		ID:        "10001",
		Character: "思",
		Structure: model.StructureTopBottom,
		Variant:   model.VariantSimplified,
		Level:     model.DefaultLevel,
	})
	require.NoError(t, err)
	require.Equal(t, "20001", moved.ID)

	_, err = catalog.Get(context.Background(), "10001")
	require.Error(t, err)
	require.FileExists(t, filepath.Join(storeDir, "uploads", "20001_0.png"))
	require.NoFileExists(t, filepath.Join(storeDir, "uploads", "10001_0.png"))
}

func TestCatalogCreateUpdateDelete(t *testing.T) {
	catalog, _, cleanup := setupCatalog(t)
	defer cleanup()

	created, err := catalog.Create(context.Background(), &model.Hanzi{
		Character: "好",
		Structure: model.StructureLeftRight,
	})
	require.NoError(t, err)
	require.Equal(t, "10001", created.ID)
	require.Equal(t, model.DefaultLevel, created.Level)
	require.Equal(t, 6, created.StrokeCount)

	created.Structure = model.StructureTopBottom
	updated, err := catalog.Update(context.Background(), created)
	require.NoError(t, err)
	require.Equal(t, "20001", updated.ID)

	id, err := catalog.GenerateID(context.Background(), model.StructureTopBottom)
	require.NoError(t, err)
	require.Equal(t, "20002", id)

	require.NoError(t, catalog.Delete(context.Background(), updated.ID))
	_, total, err := catalog.List(context.Background(), model.HanziFilter{})
	require.NoError(t, err)
	require.Equal(t, 0, total)
}
