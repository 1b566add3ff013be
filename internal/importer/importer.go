// Package importer runs one bulk import batch end to end: unpack the archive,
// load answer metadata, recognize each image, reconcile it with its metadata,
// and hand the result to the catalog for upserting. Item failures are
// isolated; the batch fails only when a whole stage cannot run.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/answers"
	"github.com/inkstone-dev/inkstone/internal/archive"
	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/timeutil"
	"github.com/inkstone-dev/inkstone/internal/recognize"
	"github.com/inkstone-dev/inkstone/internal/reconcile"
)

// Upserter stores one recognized record in the catalog.
type Upserter interface {
	ImportUpsert(ctx context.Context, rec model.ImportRecord) (*model.Hanzi, error)
}

// Recognizer reads one image and returns its normalized recognition result.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (recognize.Result, error)
}

// ProgressSink receives state transitions and log lines as the batch runs.
// Implementations persist them for status polling.
type ProgressSink interface {
	Step(state string, progress int, message string)
	Log(line string)
}

// NopSink discards progress. Used by tests and the direct import path.
type NopSink struct{}

func (NopSink) Step(state string, progress int, message string) {}
func (NopSink) Log(line string)                                 {}

// Options are the per-batch knobs supplied by the caller.
type Options struct {
	// OutputDir receives the xlsx report and the failure log.
	OutputDir string
	// TestMode runs recognition and reporting without touching the catalog.
	TestMode bool
	// MatchByCharacter lets an idless record update an existing row with the
	// same character instead of always inserting.
	MatchByCharacter bool
	// IDKey, LevelKey and CommentKey name nonstandard answer-file fields.
	IDKey      string
	LevelKey   string
	CommentKey string
	// KeepOldReports disables pruning of previous runs' outputs.
	KeepOldReports bool
}

// Summary is the terminal outcome of a batch.
type Summary struct {
	ReportName string
	ReportPath string
	Total      int
	Succeeded  int
	Failed     int
	Timestamp  string
	Items      []model.ImportItem

	rows []reportRow
}

// reportRow is one line of the xlsx report. Failed items appear with the
// failure reason in the comment column so the report stays complete.
type reportRow struct {
	Character string
	Structure string
	Variant   string
	Level     string
	Comment   string
	Image     string
}

type Batch struct {
	store      Upserter
	recognizer Recognizer
	sink       ProgressSink

	archivePath string
	answerPaths []string
	opts        Options

	workDir string
	imgDir  string
}

func NewBatch(store Upserter, recognizer Recognizer, sink ProgressSink, archivePath string, answerPaths []string, opts Options) *Batch {
	if sink == nil {
		sink = NopSink{}
	}
	return &Batch{
		store:       store,
		recognizer:  recognizer,
		sink:        sink,
		archivePath: archivePath,
		answerPaths: answerPaths,
		opts:        opts,
	}
}

// Workspace returns the extraction directory, available after Run whether it
// succeeded or failed. The caller owns cleanup (or preservation, on failure).
func (b *Batch) Workspace() string {
	return b.workDir
}

// Run executes the batch. The returned error is fatal (a stage could not
// run); per-item problems are folded into the Summary instead.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	log := logutil.GetLogger(ctx)

	b.sink.Step(model.JobStateValidating, 5, "validating archive")
	b.sink.Step(model.JobStateExtracting, 10, "extracting archive")
	workDir, imgDir, err := archive.Extract(ctx, b.archivePath)
	if err != nil {
		return nil, err
	}
	b.workDir, b.imgDir = workDir, imgDir

	b.sink.Step(model.JobStateLoading, 20, "loading answer metadata")
	mappings, err := b.loadMappings()
	if err != nil {
		return nil, err
	}

	files, err := archive.ListImages(imgDir)
	if err != nil {
		return nil, err
	}
	keyMaps := make([]map[string]string, len(mappings))
	for i, m := range mappings {
		keyMaps[i] = reconcile.BuildKeyMap(files, m)
	}

	summary := &Summary{
		Total:     len(files),
		Timestamp: timeutil.Stamp(time.Now()),
	}
	total := len(files)
	for idx, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.sink.Step(model.JobStateProcessing, 25+int(70*idx/total), fmt.Sprintf("processing %s", name))
		item, row := b.processOne(ctx, name, mappings, keyMaps)
		summary.Items = append(summary.Items, item)
		summary.rows = append(summary.rows, row)
		if item.Status == model.ItemStatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
			b.sink.Log(fmt.Sprintf("%s: %s", item.Filename, item.ErrorReason))
		}
	}

	b.sink.Step(model.JobStateFinalizing, 95, "writing report")
	if err := b.writeOutputs(ctx, summary); err != nil {
		return nil, err
	}
	if summary.Succeeded == 0 {
		log.Warn("import batch finished with no recognized images",
			zap.Int("total", summary.Total))
		b.sink.Log("no images were recognized")
	}
	log.Info("import batch done",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (b *Batch) loadMappings() ([]*answers.Mapping, error) {
	opts := answers.Options{IDKey: b.opts.IDKey, LevelKey: b.opts.LevelKey, CommentKey: b.opts.CommentKey}
	var mappings []*answers.Mapping
	for i, path := range b.answerPaths {
		m, err := answers.Load(path, opts)
		if err != nil {
			return nil, err
		}
		// Positional convention carried over from the original upload form:
		// first file holds levels, second comments, when the file's own
		// content does not say.
		if m.DetectedField() == "" {
			switch i {
			case 0:
				m.SetDetectedField("level")
			case 1:
				m.SetDetectedField("comment")
			}
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// lookupField returns the first non-empty value for field across all answer
// mappings, resolved via each mapping's own filename key map.
func lookupField(filename, field string, mappings []*answers.Mapping, keyMaps []map[string]string) string {
	for i, m := range mappings {
		key, ok := keyMaps[i][filename]
		if !ok {
			continue
		}
		if v := strings.TrimSpace(m.Field(key, field)); v != "" {
			return v
		}
	}
	return ""
}

func (b *Batch) processOne(ctx context.Context, name string, mappings []*answers.Mapping, keyMaps []map[string]string) (model.ImportItem, reportRow) {
	imagePath := b.imgDir + "/" + name

	result, err := b.recognizer.Recognize(ctx, imagePath)
	if err != nil {
		return failedItem(name, "", err), failedRow(name, err)
	}

	rec := model.ImportRecord{
		ID:               lookupField(name, "id", mappings, keyMaps),
		Character:        result.Character,
		Variant:          result.Variant,
		Structure:        model.ParseStructure(lookupField(name, "structure", mappings, keyMaps)),
		Level:            model.ParseLevel(lookupField(name, "level", mappings, keyMaps)),
		Comment:          lookupField(name, "comment", mappings, keyMaps),
		ImagePath:        imagePath,
		MatchByCharacter: b.opts.MatchByCharacter,
	}
	if v := lookupField(name, "variant", mappings, keyMaps); v != "" {
		rec.Variant = model.ParseVariant(v)
	}

	if !b.opts.TestMode {
		if _, err := b.store.ImportUpsert(ctx, rec); err != nil {
			return failedItem(name, result.Character, err), failedRow(name, err)
		}
	}
	item := model.ImportItem{
		Filename:  name,
		Status:    model.ItemStatusSuccess,
		Character: result.Character,
	}
	row := reportRow{
		Character: rec.Character,
		Structure: string(rec.Structure),
		Variant:   string(rec.Variant),
		Level:     string(rec.Level),
		Comment:   rec.Comment,
		Image:     name,
	}
	return item, row
}

func failedItem(name, character string, err error) model.ImportItem {
	return model.ImportItem{
		Filename:    name,
		Status:      model.ItemStatusFailed,
		Character:   character,
		ErrorReason: err.Error(),
	}
}

func failedRow(name string, err error) reportRow {
	return reportRow{
		Character: "unrecognized",
		Comment:   err.Error(),
		Image:     name,
	}
}
