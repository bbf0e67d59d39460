package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appalti/internal/pipeline"
	"appalti/internal/registry"
)

func TestPlanHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg, err := registry.Parse([]byte(`
entities:
  cig:
    key: cig
    columns: [{ name: cig, path: cig }]
  aggiudicazioni:
    key: id
    dependsOn: [cig]
    columns: [{ name: id, path: id }]
`))
	require.NoError(t, err)

	jsonRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jsonRoot, "20240101-cig_json"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(jsonRoot, "20240101-cig_json", "a.json"), []byte(`[]`), 0o644))

	r := gin.New()
	r.GET("/api/plan", PlanHandler(reg, jsonRoot))

	t.Run("whole catalog in dependency order", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/plan", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var plan pipeline.Plan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
		assert.Equal(t, []string{"cig", "aggiudicazioni"}, plan.Order)
		assert.False(t, plan.Cyclic)
		require.Len(t, plan.Entries, 2)
		for _, entry := range plan.Entries {
			if entry.Dataset == "cig" {
				assert.Equal(t, 1, entry.JSONFiles)
			}
		}
	})

	t.Run("dataset filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/plan?dataset=cig", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var plan pipeline.Plan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
		assert.Equal(t, []string{"cig"}, plan.Order)
		assert.Len(t, plan.Entries, 1)
	})
}
