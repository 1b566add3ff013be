package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/errcode"
	"github.com/inkstone-dev/inkstone/internal/pkg/response"
	"github.com/inkstone-dev/inkstone/internal/service"
)

type ImportHandler struct {
	imports       *service.ImportService
	catalog       *service.HanziService
	maxUploadSize int64
}

func NewImportHandler(imports *service.ImportService, catalog *service.HanziService, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{imports: imports, catalog: catalog, maxUploadSize: maxUploadSize}
}

// Submit accepts a multipart upload: one "archive" zip plus up to two
// "answers" metadata files, and starts a background import job.
func (h *ImportHandler) Submit(c *gin.Context) {
	file, err := c.FormFile("archive")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "archive is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile,
			fmt.Sprintf("file too large (max %d MB)", h.maxUploadSize>>20))
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".zip" {
		response.Error(c, errcode.ErrInvalidFile, "zip file required")
		return
	}
	archivePath, err := saveTempUpload(file)
	if err != nil {
		response.Error(c, errcode.ErrImportFailed, "failed to read archive")
		return
	}

	var answerPaths []string
	if form, err := c.MultipartForm(); err == nil {
		for _, answer := range form.File["answers"] {
			path, err := saveTempUpload(answer)
			if err != nil {
				cleanupTempFiles(archivePath, answerPaths)
				response.Error(c, errcode.ErrImportFailed, "failed to read answer file")
				return
			}
			answerPaths = append(answerPaths, path)
		}
	}

	outputDir := strings.TrimSpace(c.PostForm("output_dir"))
	if !validOutputDir(outputDir) {
		cleanupTempFiles(archivePath, answerPaths)
		response.Error(c, errcode.ErrInvalid, "invalid output_dir")
		return
	}

	input := service.SubmitInput{
		ArchivePath:      archivePath,
		AnswerPaths:      answerPaths,
		OutputDir:        outputDir,
		TestMode:         c.PostForm("test_mode") == "true",
		MatchByCharacter: c.PostForm("match_by_character") == "true",
		IDKey:            c.PostForm("id_key"),
		LevelKey:         c.PostForm("level_key"),
		CommentKey:       c.PostForm("comment_key"),
	}
	jobID, err := h.imports.Submit(c.Request.Context(), input)
	if err != nil {
		cleanupTempFiles(archivePath, answerPaths)
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job_id": jobID, "status": "processing"})
}

// Status reports the persisted job row. Failures surface as job state, never
// as a transport error.
func (h *ImportHandler) Status(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.Error(c, errcode.ErrInvalid, "job_id required")
		return
	}
	job, err := h.imports.Status(c.Request.Context(), jobID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

type importRecordRequest struct {
	ID               string `json:"id"`
	Character        string `json:"character"`
	Structure        string `json:"structure"`
	Variant          string `json:"variant"`
	Level            string `json:"level"`
	StrokeCount      int    `json:"stroke_count"`
	StrokeOrder      string `json:"stroke_order"`
	Pinyin           string `json:"pinyin"`
	Comment          string `json:"comment"`
	MatchByCharacter bool   `json:"match_by_character"`
}

type importRecordResult struct {
	Character string `json:"character"`
	ID        string `json:"id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ImportRecords is the direct structured path: pre-recognized records, no
// archive. Each record succeeds or fails on its own.
func (h *ImportHandler) ImportRecords(c *gin.Context) {
	var reqs []importRecordRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(reqs) == 0 {
		response.Error(c, errcode.ErrInvalid, "no records")
		return
	}
	results := make([]importRecordResult, 0, len(reqs))
	succeeded := 0
	for _, req := range reqs {
		rec := model.ImportRecord{
			ID:               strings.TrimSpace(req.ID),
			Character:        strings.TrimSpace(req.Character),
			Structure:        model.ParseStructure(req.Structure),
			Variant:          model.ParseVariant(req.Variant),
			Level:            model.ParseLevel(req.Level),
			StrokeCount:      req.StrokeCount,
			StrokeOrder:      req.StrokeOrder,
			Pinyin:           req.Pinyin,
			Comment:          req.Comment,
			MatchByCharacter: req.MatchByCharacter,
		}
		stored, err := h.catalog.ImportUpsert(c.Request.Context(), rec)
		if err != nil {
			results = append(results, importRecordResult{
				Character: req.Character,
				Status:    model.ItemStatusFailed,
				Error:     err.Error(),
			})
			continue
		}
		succeeded++
		results = append(results, importRecordResult{
			Character: stored.Character,
			ID:        stored.ID,
			Status:    model.ItemStatusSuccess,
		})
	}
	response.Success(c, gin.H{
		"total":     len(reqs),
		"succeeded": succeeded,
		"failed":    len(reqs) - succeeded,
		"results":   results,
	})
}

// validOutputDir accepts an empty override or a relative path that stays
// inside the output root once joined.
func validOutputDir(dir string) bool {
	if dir == "" {
		return true
	}
	if strings.HasPrefix(dir, "/") || strings.Contains(dir, "\\") {
		return false
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

func saveTempUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	ext := filepath.Ext(file.Filename)
	tmp, err := os.CreateTemp("", "upload_*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func cleanupTempFiles(archivePath string, answerPaths []string) {
	if archivePath != "" {
		_ = os.Remove(archivePath)
	}
	for _, path := range answerPaths {
		_ = os.Remove(path)
	}
}
