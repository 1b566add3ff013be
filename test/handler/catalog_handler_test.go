package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/errcode"
)

func TestCatalogCRUDOverHTTP(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()

	status, result := doJSON(t, router, http.MethodPost, "/api/v1/catalog", map[string]interface{}{
		"character": "好",
		"structure": "left-right",
	})
	require.Equal(t, http.StatusOK, status)
	var created model.Hanzi
	require.NoError(t, json.Unmarshal(result.Data, &created))
	require.Equal(t, "10001", created.ID)
	require.Equal(t, model.DefaultLevel, created.Level)

	status, result = doJSON(t, router, http.MethodGet, "/api/v1/catalog/10001", nil)
	require.Equal(t, http.StatusOK, status)
	var fetched model.Hanzi
	require.NoError(t, json.Unmarshal(result.Data, &fetched))
	require.Equal(t, "好", fetched.Character)

	status, result = doJSON(t, router, http.MethodPut, "/api/v1/catalog/10001", map[string]interface{}{
		"character": "好",
		"structure": "left-right",
		"level":     "A",
	})
	require.Equal(t, http.StatusOK, status)
	var updated model.Hanzi
	require.NoError(t, json.Unmarshal(result.Data, &updated))
	require.Equal(t, model.LevelA, updated.Level)

	status, result = doJSON(t, router, http.MethodPost, "/api/v1/catalog/generate-id", map[string]interface{}{
		"structure": "left-right",
	})
	require.Equal(t, http.StatusOK, status)
	var preview struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &preview))
	require.Equal(t, "10002", preview.ID)

	status, result = doJSON(t, router, http.MethodGet, "/api/v1/catalog?structure=left-right", nil)
	require.Equal(t, http.StatusOK, status)
	var listing struct {
		Items []model.Hanzi `json:"items"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &listing))
	require.Equal(t, 1, listing.Total)

	status, _ = doJSON(t, router, http.MethodDelete, "/api/v1/catalog/10001", nil)
	require.Equal(t, http.StatusOK, status)

	_, result = doJSON(t, router, http.MethodGet, "/api/v1/catalog/10001", nil)
	require.Equal(t, errcode.ErrNotFound, result.Code)
}

func TestCatalogStrokeSearchOverHTTP(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()

	status, _ := doJSON(t, router, http.MethodPost, "/api/v1/catalog", map[string]interface{}{
		"character":    "十",
		"structure":    "single-component",
		"stroke_order": "横 竖",
	})
	require.Equal(t, http.StatusOK, status)

	status, result := doJSON(t, router, http.MethodGet, "/api/v1/catalog/stroke-search?q=%E6%A8%AA", nil)
	require.Equal(t, http.StatusOK, status)
	var listing struct {
		Items []model.Hanzi `json:"items"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &listing))
	require.Len(t, listing.Items, 1)
	require.Equal(t, "十", listing.Items[0].Character)

	_, result = doJSON(t, router, http.MethodGet, "/api/v1/catalog/stroke-search", nil)
	require.Equal(t, errcode.ErrInvalid, result.Code)
}
