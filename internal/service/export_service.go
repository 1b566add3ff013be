package service

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/filestore"
	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
	"github.com/inkstone-dev/inkstone/internal/pkg/timeutil"
	"github.com/inkstone-dev/inkstone/internal/repo"
)

// ExportService bundles a filtered slice of the catalog into a JSON dump plus
// a zip archive carrying the sample images.
type ExportService struct {
	repo      *repo.HanziRepo
	files     filestore.Store
	outputDir string
}

func NewExportService(hanziRepo *repo.HanziRepo, files filestore.Store, outputDir string) *ExportService {
	return &ExportService{repo: hanziRepo, files: files, outputDir: outputDir}
}

type ExportResult struct {
	ZipName string `json:"zip_name"`
	ZipPath string `json:"-"`
	ZipURL  string `json:"zip_url"`
	Count   int    `json:"count"`
}

// Export writes hanzi_export_<stamp>.zip under the export directory,
// containing records.json and every exported record's sample image. Images
// that cannot be read are skipped with a log line; the export still succeeds.
func (s *ExportService) Export(ctx context.Context, filter model.HanziFilter) (*ExportResult, error) {
	records, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, appErr.ErrNotFound
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, err
	}

	name := "hanzi_export_" + timeutil.Stamp(time.Now()) + ".zip"
	zipPath := filepath.Join(s.outputDir, name)
	if err := s.writeZip(ctx, zipPath, records); err != nil {
		os.Remove(zipPath)
		return nil, err
	}
	return &ExportResult{
		ZipName: name,
		ZipPath: zipPath,
		ZipURL:  "/api/v1/export/files/" + name,
		Count:   len(records),
	}, nil
}

func (s *ExportService) writeZip(ctx context.Context, zipPath string, records []*model.Hanzi) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()
	writer := zip.NewWriter(out)
	defer writer.Close()

	meta, err := writer.Create("records.json")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(meta)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return err
	}

	log := logutil.GetLogger(ctx)
	for _, record := range records {
		if record.ImagePath == "" {
			continue
		}
		src, err := s.files.Open(ctx, record.ImagePath)
		if err != nil {
			log.Warn("export image unavailable",
				zap.String("id", record.ID), zap.String("key", record.ImagePath), zap.Error(err))
			continue
		}
		entry, err := writer.Create("images/" + path.Base(record.ImagePath))
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(entry, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// OutputDir exposes the export location for the cleanup job and the file
// handler.
func (s *ExportService) OutputDir() string {
	return s.outputDir
}
