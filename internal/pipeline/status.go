package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"appalti/internal/registry"
)

// PendingChild — диагностика: staging-строки ребёнка, чей ключ ещё не
// появился в core родителя. Информационно, не gate.
type PendingChild struct {
	Dataset   string `json:"dataset"`
	DependsOn string `json:"dependsOn"`
	Count     int64  `json:"count"`
}

// PendingChildren обходит все зависимые датасеты каталога.
// Отсутствующие таблицы (датасет ещё не грузился) молча пропускаются.
func PendingChildren(ctx context.Context, db *sql.DB, reg *registry.Registry) ([]PendingChild, error) {
	out := []PendingChild{}
	for _, name := range reg.Names() {
		e, _ := reg.Get(name)
		if len(e.DependsOn) == 0 {
			continue
		}
		for _, dep := range e.DependsOn {
			de, ok := reg.Get(dep)
			if !ok {
				continue
			}
			var exists bool
			err := db.QueryRowContext(ctx,
				`select to_regclass($1) is not null and to_regclass($2) is not null`,
				e.StagingTable, de.CoreTable).Scan(&exists)
			if err != nil || !exists {
				continue
			}

			q := fmt.Sprintf(
				`select count(*) from %s s where not exists (select 1 from %s c where c.%s = s.%s)`,
				quoteIdent(e.StagingTable), quoteIdent(de.CoreTable),
				quoteIdent(de.Key), quoteIdent(e.Key))
			var n int64
			if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
				continue
			}
			if n > 0 {
				out = append(out, PendingChild{Dataset: name, DependsOn: dep, Count: n})
			}
		}
	}
	return out, nil
}

// PlanEntry — один датасет в сухом прогоне
type PlanEntry struct {
	Dataset    string   `json:"dataset"`
	CoreTable  string   `json:"coreTable"`
	Staging    string   `json:"stagingTable"`
	Key        string   `json:"key"`
	DependsOn  []string `json:"dependsOn,omitempty"`
	JSONFiles  int      `json:"jsonFiles"`
	SampleFile string   `json:"sampleFile,omitempty"`
}

// Plan — полный сухой прогон: что и в каком порядке было бы обработано
type Plan struct {
	Entries []PlanEntry `json:"entries"`
	Order   []string    `json:"order"`
	Cyclic  bool        `json:"cyclic,omitempty"`
	Issues  []string    `json:"issues,omitempty"`
}

// DryRun собирает план без каких-либо побочных эффектов:
// ни staging, ни core, ни аудит не трогаются.
func DryRun(jsonRoot string, reg *registry.Registry, datasets []string) (Plan, error) {
	names := datasets
	if len(names) == 0 {
		names = reg.Names()
	}

	var plan Plan
	for _, name := range names {
		e, ok := reg.Get(name)
		if !ok {
			plan.Issues = append(plan.Issues, fmt.Sprintf("%s: not in catalog", name))
			continue
		}
		files, err := JSONFiles(jsonRoot, e, "")
		if err != nil {
			return plan, fmt.Errorf("list files for %s: %w", name, err)
		}
		entry := PlanEntry{
			Dataset:   name,
			CoreTable: e.CoreTable,
			Staging:   e.StagingTable,
			Key:       e.Key,
			DependsOn: e.DependsOn,
			JSONFiles: len(files),
		}
		if len(files) > 0 {
			entry.SampleFile = files[0]
		}
		plan.Entries = append(plan.Entries, entry)
	}

	order, ok := reg.Order(names)
	plan.Order = order
	plan.Cyclic = !ok
	plan.Issues = append(plan.Issues, reg.Validate()...)
	return plan, nil
}
