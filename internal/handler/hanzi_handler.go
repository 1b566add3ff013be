package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/errcode"
	"github.com/inkstone-dev/inkstone/internal/pkg/response"
	"github.com/inkstone-dev/inkstone/internal/service"
)

type HanziHandler struct {
	catalog *service.HanziService
}

func NewHanziHandler(catalog *service.HanziService) *HanziHandler {
	return &HanziHandler{catalog: catalog}
}

type hanziRequest struct {
	Character   string `json:"character"`
	Structure   string `json:"structure"`
	Variant     string `json:"variant"`
	Level       string `json:"level"`
	StrokeCount int    `json:"stroke_count"`
	StrokeOrder string `json:"stroke_order"`
	Pinyin      string `json:"pinyin"`
	Comment     string `json:"comment"`
}

func (r hanziRequest) toModel() *model.Hanzi {
	return &model.Hanzi{
		Character:   strings.TrimSpace(r.Character),
		Structure:   model.ParseStructure(r.Structure),
		Variant:     model.ParseVariant(r.Variant),
		Level:       model.ParseLevel(r.Level),
		StrokeCount: r.StrokeCount,
		StrokeOrder: r.StrokeOrder,
		Pinyin:      r.Pinyin,
		Comment:     r.Comment,
	}
}

func (h *HanziHandler) Create(c *gin.Context) {
	var req hanziRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	created, err := h.catalog.Create(c.Request.Context(), req.toModel())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, created)
}

func (h *HanziHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, errcode.ErrInvalid, "id required")
		return
	}
	found, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, found)
}

func (h *HanziHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, errcode.ErrInvalid, "id required")
		return
	}
	var req hanziRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	update := req.toModel()
	update.ID = id
	updated, err := h.catalog.Update(c.Request.Context(), update)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, updated)
}

func (h *HanziHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, errcode.ErrInvalid, "id required")
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *HanziHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	filter := model.HanziFilter{
		Search:      c.Query("search"),
		StrokeCount: queryInt(c, "stroke_count", 0),
		Limit:       limit,
		Offset:      offset,
	}
	if v := c.Query("structure"); v != "" {
		filter.Structure = model.ParseStructure(v)
	}
	if v := c.Query("level"); v != "" {
		filter.Level = model.ParseLevel(v)
	}
	if v := c.Query("variant"); v != "" {
		filter.Variant = model.ParseVariant(v)
	}
	list, total, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": list, "total": total})
}

type generateIDRequest struct {
	Structure string `json:"structure"`
}

// GenerateID previews the next id for a structure class without claiming it.
func (h *HanziHandler) GenerateID(c *gin.Context) {
	var req generateIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	id, err := h.catalog.GenerateID(c.Request.Context(), model.ParseStructure(req.Structure))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// StrokeSearch matches characters by stroke-order tokens, e.g. "横 竖 撇".
func (h *HanziHandler) StrokeSearch(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		response.Error(c, errcode.ErrInvalid, "q required")
		return
	}
	limit, offset := pagination(c)
	list, err := h.catalog.StrokeSearch(c.Request.Context(), query, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": list})
}
