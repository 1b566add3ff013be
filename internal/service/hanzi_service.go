package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/filestore"
	"github.com/inkstone-dev/inkstone/internal/glyph"
	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
	"github.com/inkstone-dev/inkstone/internal/pkg/timeutil"
	"github.com/inkstone-dev/inkstone/internal/refdata"
	"github.com/inkstone-dev/inkstone/internal/repo"
)

const glyphCacheSize = 4096

// HanziService owns the character catalog: CRUD, listing, id allocation, and
// the upsert engine the import pipeline feeds.
type HanziService struct {
	repo       *repo.HanziRepo
	ref        *refdata.Store
	files      filestore.Store
	renderer   glyph.Renderer
	glyphCache *lru.Cache[string, string]
}

func NewHanziService(hanziRepo *repo.HanziRepo, ref *refdata.Store, files filestore.Store, renderer glyph.Renderer) (*HanziService, error) {
	cache, err := lru.New[string, string](glyphCacheSize)
	if err != nil {
		return nil, err
	}
	return &HanziService{
		repo:       hanziRepo,
		ref:        ref,
		files:      files,
		renderer:   renderer,
		glyphCache: cache,
	}, nil
}

// imageKey is the filestore key for a record's handwriting sample.
func imageKey(id, sourcePath string) string {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("uploads/%s_0%s", id, ext)
}

func glyphKey(character string) string {
	return fmt.Sprintf("standard_images/%s.jpg", character)
}

// ImportUpsert stores one reconciled import record. Identity resolution, in
// order: an explicit id always wins (update if present, insert under that id
// if not); with MatchByCharacter set, an existing row for the same character
// is updated; otherwise a fresh id is allocated under the record's
// structure-class prefix.
func (s *HanziService) ImportUpsert(ctx context.Context, rec model.ImportRecord) (*model.Hanzi, error) {
	if strings.TrimSpace(rec.Character) == "" {
		return nil, fmt.Errorf("%w: character is required", appErr.ErrInvalid)
	}
	s.deriveFields(&rec)

	now := timeutil.NowUnix()
	switch {
	case rec.ID != "":
		existing, err := s.repo.Get(ctx, rec.ID)
		if err == nil {
			return s.updateFromRecord(ctx, existing, rec)
		}
		if !appErr.IsNotFound(err) {
			return nil, err
		}
		h := recordToHanzi(rec, now)
		h.ID = rec.ID
		if err := s.repo.Create(ctx, h); err != nil {
			return nil, err
		}
		return s.attachMedia(ctx, h, rec.ImagePath)
	case rec.MatchByCharacter:
		existing, err := s.repo.GetByCharacter(ctx, rec.Character)
		if err == nil {
			return s.updateFromRecord(ctx, existing, rec)
		}
		if !appErr.IsNotFound(err) {
			return nil, err
		}
		fallthrough
	default:
		h := recordToHanzi(rec, now)
		if _, err := s.repo.InsertAllocate(ctx, h); err != nil {
			return nil, err
		}
		return s.attachMedia(ctx, h, rec.ImagePath)
	}
}

// deriveFields fills stroke count, stroke order, and pinyin from the
// reference tables when the record does not carry them.
func (s *HanziService) deriveFields(rec *model.ImportRecord) {
	if rec.StrokeCount == 0 {
		rec.StrokeCount = s.ref.StrokeCount(rec.Character)
	}
	if rec.StrokeOrder == "" {
		rec.StrokeOrder = s.ref.StrokeOrder(rec.Character)
	}
	if rec.Pinyin == "" {
		rec.Pinyin = s.ref.Pinyin(rec.Character)
	}
}

func recordToHanzi(rec model.ImportRecord, now int64) *model.Hanzi {
	return &model.Hanzi{
		Character:   rec.Character,
		Structure:   rec.Structure,
		Variant:     rec.Variant,
		Level:       rec.Level,
		StrokeCount: rec.StrokeCount,
		StrokeOrder: rec.StrokeOrder,
		Pinyin:      rec.Pinyin,
		Comment:     rec.Comment,
		Ctime:       now,
		Mtime:       now,
	}
}

// updateFromRecord folds an import record into an existing row. A structure
// change forces a rekey so the id prefix keeps matching the structure class.
func (s *HanziService) updateFromRecord(ctx context.Context, existing *model.Hanzi, rec model.ImportRecord) (*model.Hanzi, error) {
	oldID := existing.ID
	existing.Character = rec.Character
	existing.Variant = rec.Variant
	if rec.Level != "" {
		existing.Level = rec.Level
	}
	if rec.Comment != "" {
		existing.Comment = rec.Comment
	}
	if rec.StrokeCount > 0 {
		existing.StrokeCount = rec.StrokeCount
	}
	if rec.StrokeOrder != "" {
		existing.StrokeOrder = rec.StrokeOrder
	}
	if rec.Pinyin != "" {
		existing.Pinyin = rec.Pinyin
	}
	existing.Mtime = timeutil.NowUnix()

	// An unknown structure means "not specified", never a demotion.
	structureChanged := rec.Structure.Valid() &&
		rec.Structure != model.StructureUnknown &&
		rec.Structure != existing.Structure
	if structureChanged {
		existing.Structure = rec.Structure
		if _, err := s.rekey(ctx, oldID, existing); err != nil {
			return nil, err
		}
	} else if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return s.attachMedia(ctx, existing, rec.ImagePath)
}

// rekey moves the row and its stored image to a freshly allocated id.
func (s *HanziService) rekey(ctx context.Context, oldID string, h *model.Hanzi) (string, error) {
	oldImage := h.ImagePath
	newID, err := s.repo.Rekey(ctx, oldID, h)
	if err != nil {
		return "", err
	}
	if oldImage != "" {
		newKey := imageKey(newID, oldImage)
		if err := s.files.Rename(ctx, oldImage, newKey); err != nil {
			logutil.GetLogger(ctx).Warn("image rename after rekey failed",
				zap.String("old", oldImage), zap.String("new", newKey), zap.Error(err))
		} else {
			h.ImagePath = newKey
			if err := s.repo.Update(ctx, h); err != nil {
				return "", err
			}
		}
	}
	return newID, nil
}

// attachMedia copies the workspace image into the filestore and ensures the
// standard glyph exists. Media problems are logged, not fatal: the record is
// already stored.
func (s *HanziService) attachMedia(ctx context.Context, h *model.Hanzi, sourcePath string) (*model.Hanzi, error) {
	log := logutil.GetLogger(ctx)
	if sourcePath != "" {
		key := imageKey(h.ID, sourcePath)
		if err := s.saveFile(ctx, key, sourcePath); err != nil {
			log.Warn("store sample image failed",
				zap.String("id", h.ID), zap.String("source", sourcePath), zap.Error(err))
		} else if h.ImagePath != key {
			h.ImagePath = key
			if err := s.repo.Update(ctx, h); err != nil {
				return nil, err
			}
		}
	}
	if h.StandardImage == "" {
		if key, err := s.ensureStandardGlyph(ctx, h.Character); err == nil {
			h.StandardImage = key
			if err := s.repo.UpdateStandardImage(ctx, h.ID, key, timeutil.NowUnix()); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			log.Warn("standard glyph render failed",
				zap.String("character", h.Character), zap.Error(err))
		}
	}
	return h, nil
}

func (s *HanziService) saveFile(ctx context.Context, key, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()
	return s.files.Save(ctx, key, src)
}

// ensureStandardGlyph renders the printed reference glyph for a character,
// once. The cache dedupes renders across a batch that imports many samples of
// the same character.
func (s *HanziService) ensureStandardGlyph(ctx context.Context, character string) (string, error) {
	if key, ok := s.glyphCache.Get(character); ok {
		return key, nil
	}
	tmp, err := os.CreateTemp("", "glyph_*.jpg")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := s.renderer.Render(ctx, character, tmpPath); err != nil {
		return "", err
	}
	key := glyphKey(character)
	if err := s.saveFile(ctx, key, tmpPath); err != nil {
		return "", err
	}
	s.glyphCache.Add(character, key)
	return key, nil
}

// Create inserts a manually authored record. An empty id triggers allocation
// under the structure prefix; a supplied id is honored as-is.
func (s *HanziService) Create(ctx context.Context, h *model.Hanzi) (*model.Hanzi, error) {
	if strings.TrimSpace(h.Character) == "" {
		return nil, fmt.Errorf("%w: character is required", appErr.ErrInvalid)
	}
	if !h.Structure.Valid() {
		h.Structure = model.StructureUnknown
	}
	if h.Level == "" {
		h.Level = model.DefaultLevel
	}
	if h.Variant == "" {
		h.Variant = model.VariantSimplified
	}
	if h.StrokeCount == 0 {
		h.StrokeCount = s.ref.StrokeCount(h.Character)
	}
	if h.StrokeOrder == "" {
		h.StrokeOrder = s.ref.StrokeOrder(h.Character)
	}
	if h.Pinyin == "" {
		h.Pinyin = s.ref.Pinyin(h.Character)
	}
	now := timeutil.NowUnix()
	h.Ctime, h.Mtime = now, now
	if h.ID == "" {
		if _, err := s.repo.InsertAllocate(ctx, h); err != nil {
			return nil, err
		}
	} else if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	return s.attachMedia(ctx, h, "")
}

func (s *HanziService) Get(ctx context.Context, id string) (*model.Hanzi, error) {
	return s.repo.Get(ctx, id)
}

// Update applies a full edit to a record. Changing the structure class rekeys
// the record; the returned model carries the new id.
func (s *HanziService) Update(ctx context.Context, h *model.Hanzi) (*model.Hanzi, error) {
	existing, err := s.repo.Get(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	h.Ctime = existing.Ctime
	h.Mtime = timeutil.NowUnix()
	if h.ImagePath == "" {
		h.ImagePath = existing.ImagePath
	}
	if h.StandardImage == "" {
		h.StandardImage = existing.StandardImage
	}
	if h.Structure != existing.Structure && h.Structure.Valid() {
		if _, err := s.rekey(ctx, existing.ID, h); err != nil {
			return nil, err
		}
		return h, nil
	}
	h.Structure = existing.Structure
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Delete removes the record and its stored media.
func (s *HanziService) Delete(ctx context.Context, id string) error {
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if h.ImagePath != "" {
		if err := s.files.Remove(ctx, h.ImagePath); err != nil {
			logutil.GetLogger(ctx).Warn("remove sample image failed",
				zap.String("id", id), zap.String("key", h.ImagePath), zap.Error(err))
		}
	}
	// The standard glyph is shared across records for the same character and
	// is left in place.
	return nil
}

func (s *HanziService) List(ctx context.Context, filter model.HanziFilter) ([]*model.Hanzi, int, error) {
	return s.repo.List(ctx, filter)
}

// GenerateID previews the id the allocator would produce for a structure
// class. The preview takes no lock, so a concurrent insert can still claim it.
func (s *HanziService) GenerateID(ctx context.Context, structure model.StructureClass) (string, error) {
	if !structure.Valid() {
		return "", fmt.Errorf("%w: unknown structure class", appErr.ErrInvalid)
	}
	return s.repo.NextID(ctx, structure)
}

// StrokeSearch finds characters whose stroke order contains every
// space-separated token of the query.
func (s *HanziService) StrokeSearch(ctx context.Context, query string, limit, offset int) ([]*model.Hanzi, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty stroke query", appErr.ErrInvalid)
	}
	return s.repo.StrokeSearch(ctx, tokens, limit, offset)
}
