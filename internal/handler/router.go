package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/inkstone-dev/inkstone/internal/middleware"
)

type RouterDeps struct {
	Catalog *HanziHandler
	Imports *ImportHandler
	Export  *ExportHandler
	Files   *FileHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/catalog", deps.Catalog.Create)
	api.GET("/catalog", deps.Catalog.List)
	api.POST("/catalog/generate-id", deps.Catalog.GenerateID)
	api.GET("/catalog/stroke-search", deps.Catalog.StrokeSearch)
	api.GET("/catalog/:id", deps.Catalog.Get)
	api.PUT("/catalog/:id", deps.Catalog.Update)
	api.DELETE("/catalog/:id", deps.Catalog.Delete)

	uploadGroup := api.Group("")
	uploadGroup.Use(middleware.RateLimit(middleware.UploadRateLimit))
	uploadGroup.POST("/import/jobs", deps.Imports.Submit)

	api.POST("/import/records", deps.Imports.ImportRecords)
	api.GET("/import/jobs/:job_id", deps.Imports.Status)

	api.POST("/export", deps.Export.Export)
	api.GET("/export/files/:name", deps.Files.ExportFile)
	api.GET("/files/*key", deps.Files.Get)
}
