package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/inkstone-dev/inkstone/internal/model"
)

const (
	reportPrefix     = "hanzi_import_"
	failureLogPrefix = "hanzi_import_failures_"
)

var reportHeader = []string{"character", "structure", "variant", "level", "comment", "image"}

// writeOutputs produces the xlsx report and, when there were failures, the
// plain-text failure log. Unless KeepOldReports is set, outputs from previous
// runs in the same directory are pruned so only the latest run remains.
func (b *Batch) writeOutputs(ctx context.Context, summary *Summary) error {
	_ = ctx
	if err := os.MkdirAll(b.opts.OutputDir, 0o755); err != nil {
		return err
	}
	if !b.opts.KeepOldReports {
		pruneOldOutputs(b.opts.OutputDir)
	}

	name := reportPrefix + summary.Timestamp + ".xlsx"
	path := filepath.Join(b.opts.OutputDir, name)
	if err := writeReport(path, summary.rows); err != nil {
		return err
	}
	summary.ReportName = name
	summary.ReportPath = path

	if summary.Failed > 0 {
		logPath := filepath.Join(b.opts.OutputDir, failureLogPrefix+summary.Timestamp+".txt")
		if err := b.writeFailureLog(logPath, summary); err != nil {
			return err
		}
	}
	return nil
}

func writeReport(path string, rows []reportRow) error {
	file := excelize.NewFile()
	defer file.Close()
	sheet := file.GetSheetName(0)
	for col, title := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}
	for i, row := range rows {
		values := []string{row.Character, row.Structure, row.Variant, row.Level, row.Comment, row.Image}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return file.SaveAs(path)
}

// writeFailureLog records the batch totals and the inputs they came from,
// then one line per failed image.
func (b *Batch) writeFailureLog(path string, summary *Summary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "failed images (%d/%d)\n", summary.Failed, summary.Total)
	fmt.Fprintf(&sb, "archive: %s\n", b.archivePath)
	fmt.Fprintf(&sb, "answers: %s\n\n", strings.Join(b.answerPaths, ", "))
	for _, item := range summary.Items {
		if item.Status != model.ItemStatusFailed {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", item.Filename, item.ErrorReason)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// pruneOldOutputs removes previous report and failure-log files. Best effort;
// a file that cannot be removed is left behind.
func pruneOldOutputs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, reportPrefix) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}
