package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/inkstone-dev/inkstone/internal/config"
	"github.com/inkstone-dev/inkstone/internal/filestore"
	"github.com/inkstone-dev/inkstone/internal/glyph"
	"github.com/inkstone-dev/inkstone/internal/handler"
	"github.com/inkstone-dev/inkstone/internal/middleware"
	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/recognize"
	"github.com/inkstone-dev/inkstone/internal/refdata"
	"github.com/inkstone-dev/inkstone/internal/repo"
	"github.com/inkstone-dev/inkstone/internal/service"
	"github.com/inkstone-dev/inkstone/test/testutil"
)

func setupRouter(t *testing.T) (http.Handler, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := testutil.OpenTestDB(t)

	ref, err := refdata.Load(config.RefDataConfig{})
	require.NoError(t, err)

	storeDir, err := os.MkdirTemp("", "inkstone-store-*")
	require.NoError(t, err)
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": storeDir},
	})
	require.NoError(t, err)

	hanziRepo := repo.NewHanziRepo(db)
	jobRepo := repo.NewImportJobRepo(db)

	catalogService, err := service.NewHanziService(hanziRepo, ref, store, glyph.NoopRenderer{})
	require.NoError(t, err)

	importCfg := config.ImportConfig{
		OutputDir:        filepath.Join(storeDir, "import_results"),
		MaxUploadSize:    10 << 20,
		MaxAttempts:      1,
		RetryDelaySec:    1,
		SoftTimeLimitSec: 60,
		HardTimeLimitSec: 120,
	}
	recognizer := recognize.NewAdapter(recognize.FallbackRecognizer{}, time.Second, 0, model.VariantSimplified)
	importService := service.NewImportService(jobRepo, catalogService, recognizer, importCfg)

	exportsDir := filepath.Join(storeDir, "exports")
	exportService := service.NewExportService(hanziRepo, store, exportsDir)

	deps := handler.RouterDeps{
		Catalog: handler.NewHanziHandler(catalogService),
		Imports: handler.NewImportHandler(importService, catalogService, importCfg.MaxUploadSize),
		Export:  handler.NewExportHandler(exportService),
		Files:   handler.NewFileHandler(store, importCfg.OutputDir, exportsDir),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)

	return engine, func() {
		cleanup()
		_ = os.RemoveAll(storeDir)
	}
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var result apiResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return resp.Code, result
}
