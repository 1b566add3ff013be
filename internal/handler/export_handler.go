package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/errcode"
	"github.com/inkstone-dev/inkstone/internal/pkg/response"
	"github.com/inkstone-dev/inkstone/internal/service"
)

type ExportHandler struct {
	exports *service.ExportService
}

func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type exportRequest struct {
	Search      string   `json:"search"`
	Structure   string   `json:"structure"`
	Level       string   `json:"level"`
	Variant     string   `json:"variant"`
	StrokeCount int      `json:"stroke_count"`
	IDs         []string `json:"ids"`
}

// Export produces a zip bundle of the filtered catalog slice and returns its
// download URL. Filters mirror the list endpoint; an empty body exports
// everything.
func (h *ExportHandler) Export(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	filter := model.HanziFilter{
		Search:      req.Search,
		StrokeCount: req.StrokeCount,
		IDs:         req.IDs,
	}
	if req.Structure != "" {
		filter.Structure = model.ParseStructure(req.Structure)
	}
	if req.Level != "" {
		filter.Level = model.ParseLevel(req.Level)
	}
	if req.Variant != "" {
		filter.Variant = model.ParseVariant(req.Variant)
	}
	result, err := h.exports.Export(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
