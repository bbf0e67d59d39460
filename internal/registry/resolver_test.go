package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog(t *testing.T, yaml string) *Registry {
	t.Helper()
	r, err := Parse([]byte(yaml))
	require.NoError(t, err)
	return r
}

const anacYAML = `
entities:
  cig:
    key: cig
    columns:
      - { name: cig, path: cig }
  aggiudicazioni:
    key: id_aggiudicazione
    dependsOn: [cig]
    columns:
      - { name: id_aggiudicazione, path: id_aggiudicazione, type: number }
      - { name: cig, path: cig }
  aggiudicatari:
    key: codice_fiscale
    dependsOn: [aggiudicazioni]
    columns:
      - { name: codice_fiscale, path: codice_fiscale }
  partecipanti:
    key: codice_fiscale
    dependsOn: [cig]
    columns:
      - { name: codice_fiscale, path: codice_fiscale }
`

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestOrderParentsBeforeChildren(t *testing.T) {
	r := catalog(t, anacYAML)

	t.Run("cig before aggiudicazioni", func(t *testing.T) {
		order, ok := r.Order([]string{"aggiudicazioni", "cig"})
		require.True(t, ok)
		assert.Equal(t, []string{"cig", "aggiudicazioni"}, order)
	})

	t.Run("every dependency precedes its dependent", func(t *testing.T) {
		names := r.Names()
		order, ok := r.Order(names)
		require.True(t, ok)
		require.Len(t, order, len(names))
		for _, name := range names {
			e, _ := r.Get(name)
			for _, dep := range e.DependsOn {
				assert.Less(t, indexOf(order, dep), indexOf(order, name),
					"%s must precede %s", dep, name)
			}
		}
	})

	t.Run("edges outside the requested set are ignored", func(t *testing.T) {
		// aggiudicatari зависит от aggiudicazioni, но её нет в запросе
		order, ok := r.Order([]string{"aggiudicatari", "partecipanti"})
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"aggiudicatari", "partecipanti"}, order)
	})

	t.Run("deterministic tie-break within a layer", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			order, ok := r.Order([]string{"partecipanti", "cig", "aggiudicazioni"})
			require.True(t, ok)
			assert.Equal(t, []string{"cig", "aggiudicazioni", "partecipanti"}, order, "attempt %d", i)
		}
	})
}

func TestLayers(t *testing.T) {
	r := catalog(t, anacYAML)

	layers, unresolved := r.Layers(r.Names())
	require.Empty(t, unresolved)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"cig"}, layers[0])
	assert.Equal(t, []string{"aggiudicazioni", "partecipanti"}, layers[1])
	assert.Equal(t, []string{"aggiudicatari"}, layers[2])
}

func TestOrderCycleDegradesWithoutLooping(t *testing.T) {
	r := catalog(t, `
entities:
  a:
    key: k
    dependsOn: [b]
    columns: [{ name: k, path: k }]
  b:
    key: k
    dependsOn: [a]
    columns: [{ name: k, path: k }]
  c:
    key: k
    columns: [{ name: k, path: k }]
`)

	done := make(chan struct{})
	var order []string
	var ok bool
	go func() {
		order, ok = r.Order([]string{"a", "b", "c"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver did not terminate on a cycle")
	}

	assert.False(t, ok, "cycle must be reported")
	// оба участника цикла возвращаются, не теряются
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, "c", order[0], "acyclic part is ordered first")
}

func ExampleRegistry_Order() {
	r, _ := Parse([]byte(anacYAML))
	order, _ := r.Order([]string{"cig", "aggiudicazioni"})
	fmt.Println(order)
	// Output: [cig aggiudicazioni]
}
