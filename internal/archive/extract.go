// Package archive unpacks uploaded image bundles into a flat working
// directory.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

// Extensions accepted out of the archive. Anything else is skipped.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// listExtensions is the broader set recognized when scanning an already
// extracted directory.
var listExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".gif":  true,
}

// Extract unpacks zipPath into a fresh temp workspace, keeping only image
// files and flattening directory structure. Filename collisions overwrite
// silently; that is a documented limitation of the bundle format. On any
// failure the partially created workspace is removed before the error
// propagates.
//
// Returns the workspace root and the image directory beneath it.
func Extract(ctx context.Context, zipPath string) (string, string, error) {
	workDir, err := os.MkdirTemp("", "hanzi_import_")
	if err != nil {
		return "", "", err
	}
	imgDir := filepath.Join(workDir, "img")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return "", "", err
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("%w: %v", appErr.ErrExtraction, err)
	}
	defer reader.Close()

	extracted := 0
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(file.Name)
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if err := copyEntry(file, filepath.Join(imgDir, name)); err != nil {
			os.RemoveAll(workDir)
			return "", "", fmt.Errorf("%w: extract %s: %v", appErr.ErrExtraction, name, err)
		}
		extracted++
	}
	if extracted == 0 {
		os.RemoveAll(workDir)
		return "", "", appErr.ErrNoImages
	}
	logutil.GetLogger(ctx).Info("archive extracted",
		zap.String("workspace", workDir), zap.Int("images", extracted))
	return workDir, imgDir, nil
}

func copyEntry(file *zip.File, dest string) error {
	source, err := file.Open()
	if err != nil {
		return err
	}
	defer source.Close()
	target, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer target.Close()
	_, err = io.Copy(target, source)
	return err
}

// ListImages returns the image filenames in dir in lexicographic order. The
// ordering is load-bearing: progress percentages and id allocation follow it.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if listExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
