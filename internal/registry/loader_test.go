package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	require.GreaterOrEqual(t, r.Len(), 10)

	cig, ok := r.Get("cig")
	require.True(t, ok)
	assert.Equal(t, "bando_cig", cig.CoreTable)
	assert.Equal(t, "stg_cig_json", cig.RawTable)
	assert.Equal(t, "stg_cig", cig.StagingTable)
	assert.Equal(t, "cig", cig.Key)
	assert.Empty(t, cig.DependsOn)

	agg, ok := r.Get("aggiudicazioni")
	require.True(t, ok)
	assert.Equal(t, []string{"cig"}, agg.DependsOn)
	assert.Equal(t, "id_aggiudicazione", agg.Key)

	assert.Empty(t, r.Validate())
}

func TestParseDerivedNames(t *testing.T) {
	r, err := Parse([]byte(`
entities:
  cup:
    key: cup
    columns:
      - { name: cup, path: cup }
`))
	require.NoError(t, err)
	e, _ := r.Get("cup")
	assert.Equal(t, "stg_cup_json", e.RawTable)
	assert.Equal(t, "stg_cup", e.StagingTable)
	assert.Equal(t, "cup", e.CoreTable)
	assert.Equal(t, "item", e.Pointer)
	assert.Equal(t, "*-cup_json", e.FolderGlob)
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	t.Run("unknown dependency", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  child:
    key: k
    dependsOn: [ghost]
    columns: [{ name: k, path: k }]
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `dependency "ghost"`)
	})

	t.Run("key not a declared column", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  x:
    key: missing
    columns: [{ name: k, path: k }]
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a declared column")
	})

	t.Run("unknown column type", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  x:
    key: k
    columns: [{ name: k, path: k, type: uuid }]
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type")
	})

	t.Run("update field not a column", func(t *testing.T) {
		_, err := Parse([]byte(`
entities:
  x:
    key: k
    columns: [{ name: k, path: k }]
    updateFields: [other]
`))
		require.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := Parse([]byte(`entities: {}`))
		require.Error(t, err)
	})
}
