package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yml
var defaultsYAML []byte

// Registry — неизменяемый каталог датасетов, загружается один раз на старте.
type Registry struct {
	entities map[string]*Entity
}

type catalogFile struct {
	Entities map[string]*Entity `yaml:"entities"`
}

// Load читает каталог из YAML-файла; пустой путь = встроенный каталог ANAC.
func Load(path string) (*Registry, error) {
	data := defaultsYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("registry: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}
	if len(cf.Entities) == 0 {
		return nil, fmt.Errorf("registry: no entities defined")
	}

	r := &Registry{entities: make(map[string]*Entity, len(cf.Entities))}
	for name, e := range cf.Entities {
		if e == nil {
			e = &Entity{}
		}
		e.Name = name
		// производные имена таблиц, если не заданы явно
		if e.RawTable == "" {
			e.RawTable = "stg_" + name + "_json"
		}
		if e.StagingTable == "" {
			e.StagingTable = "stg_" + name
		}
		if e.CoreTable == "" {
			e.CoreTable = name
		}
		if e.Pointer == "" {
			e.Pointer = "item"
		}
		if e.FolderGlob == "" {
			e.FolderGlob = "*-" + name + "_json"
		}
		r.entities[name] = e
	}

	if issues := r.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("registry: invalid catalog: %s", strings.Join(issues, "; "))
	}
	return r, nil
}

func (r *Registry) Get(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names возвращает имена датасетов в стабильном порядке
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entities))
	for k := range r.entities {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int { return len(r.entities) }

// Validate возвращает список проблем каталога (пустой = каталог валиден)
func (r *Registry) Validate() []string {
	var issues []string
	for _, name := range r.Names() {
		e := r.entities[name]
		if e.Key == "" {
			issues = append(issues, fmt.Sprintf("%s: missing key field", name))
		}
		// датасет без проекций допустим: Projector сделает no-op с warning
		if len(e.Columns) > 0 && e.Key != "" && !e.HasColumn(e.Key) {
			issues = append(issues, fmt.Sprintf("%s: key %q is not a declared column", name, e.Key))
		}
		seen := map[string]struct{}{}
		for _, c := range e.Columns {
			if c.Name == "" {
				issues = append(issues, fmt.Sprintf("%s: column with empty name", name))
				continue
			}
			if _, dup := seen[c.Name]; dup {
				issues = append(issues, fmt.Sprintf("%s: duplicate column %q", name, c.Name))
			}
			seen[c.Name] = struct{}{}
			switch c.Type {
			case "", "string", "number", "date":
			default:
				issues = append(issues, fmt.Sprintf("%s.%s: unknown type %q", name, c.Name, c.Type))
			}
		}
		for _, f := range e.UpdateFields {
			if !e.HasColumn(f) {
				issues = append(issues, fmt.Sprintf("%s: update field %q is not a declared column", name, f))
			}
		}
		for _, dep := range e.DependsOn {
			if _, ok := r.entities[dep]; !ok {
				issues = append(issues, fmt.Sprintf("%s: dependency %q not in catalog", name, dep))
			}
		}
	}
	return issues
}
