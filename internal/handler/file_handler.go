package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkstone-dev/inkstone/internal/filestore"
)

// FileHandler serves stored media. Sample images and standard glyphs come
// from the filestore; import reports and export bundles are plain files on
// local disk.
type FileHandler struct {
	store      filestore.Store
	reportsDir string
	exportsDir string
}

func NewFileHandler(store filestore.Store, reportsDir, exportsDir string) *FileHandler {
	return &FileHandler{store: store, reportsDir: reportsDir, exportsDir: exportsDir}
}

func (h *FileHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		c.Status(http.StatusBadRequest)
		return
	}
	switch {
	case strings.HasPrefix(key, "reports/"):
		h.serveNested(c, h.reportsDir, strings.TrimPrefix(key, "reports/"))
	case strings.HasPrefix(key, "exports/"):
		h.serveNested(c, h.exportsDir, strings.TrimPrefix(key, "exports/"))
	default:
		h.serveStore(c, key)
	}
}

// ExportFile serves a finished export bundle by name.
func (h *FileHandler) ExportFile(c *gin.Context) {
	h.serveLocal(c, h.exportsDir, c.Param("name"))
}

func (h *FileHandler) serveLocal(c *gin.Context, dir, name string) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		c.Status(http.StatusBadRequest)
		return
	}
	c.FileAttachment(filepath.Join(dir, name), name)
}

// serveNested allows report/export paths in per-batch subdirectories. The
// caller has already rejected ".." and backslashes on the whole key.
func (h *FileHandler) serveNested(c *gin.Context, dir, name string) {
	if name == "" || strings.HasPrefix(name, "/") {
		c.Status(http.StatusBadRequest)
		return
	}
	c.FileAttachment(filepath.Join(dir, filepath.FromSlash(name)), filepath.Base(name))
}

func (h *FileHandler) serveStore(c *gin.Context, key string) {
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	_, _ = io.Copy(c.Writer, file)
}
