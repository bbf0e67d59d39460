package pg

import (
	"fmt"
	"strings"

	"appalti/internal/registry"
)

func sqlIdent(s string) string { return `"` + strings.ToLower(s) + `"` }

// AuditDDL — постоянные таблицы аудита: etl_runs и etl_files.
func AuditDDL() map[string]string {
	var sb strings.Builder
	sb.WriteString(`create table if not exists etl_runs (
  run_id text primary key,
  started_at timestamp with time zone not null,
  ended_at timestamp with time zone,
  status text not null check (status in ('RUNNING','OK','ERROR','PARTIAL')),
  total_files bigint not null default 0,
  total_rows bigint not null default 0,
  total_errors bigint not null default 0,
  notes text
);
`)
	sb.WriteString(`create table if not exists etl_files (
  id bigserial primary key,
  run_id text not null references etl_runs(run_id),
  dataset text not null,
  path text not null,
  md5 text not null,
  rows_loaded bigint not null default 0,
  status text not null check (status in ('OK','ERROR')),
  error_msg text,
  started_at timestamp with time zone not null,
  ended_at timestamp with time zone not null
);
create index if not exists etl_files_run_id_idx on etl_files(run_id);
create index if not exists etl_files_dataset_idx on etl_files(dataset);
`)
	return map[string]string{"000_audit": sb.String()}
}

// RawStagingDDL — сырой staging датасета: jsonb payload плюс служебные колонки.
// Idempotent, вызывается лениво перед загрузкой.
func RawStagingDDL(e *registry.Entity) string {
	t := sqlIdent(e.RawTable)
	var sb strings.Builder
	fmt.Fprintf(&sb, `create table if not exists %s (
  id bigserial primary key,
  payload jsonb not null,
  _file_name text not null,
  _ingested_at timestamp with time zone not null default now()
);
`, t)
	fmt.Fprintf(&sb, "create index if not exists %s on %s(_file_name);\n",
		sqlIdent(e.RawTable+"_file_name_idx"), t)
	fmt.Fprintf(&sb, "create index if not exists %s on %s(_ingested_at);\n",
		sqlIdent(e.RawTable+"_ingested_at_idx"), t)
	return sb.String()
}

// TypedStagingDDL — типизированный staging: по text-колонке на каждую проекцию.
func TypedStagingDDL(e *registry.Entity) string {
	cols := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, fmt.Sprintf("%s text", sqlIdent(c.Name)))
	}
	return fmt.Sprintf("create table if not exists %s (\n  %s\n);\n",
		sqlIdent(e.StagingTable), strings.Join(cols, ",\n  "))
}

// CoreDDL — постоянная таблица датасета с unique-ключом для upsert.
// Используется init-db; в остальном ядро считает core-таблицы уже созданными.
func CoreDDL(e *registry.Entity) string {
	cols := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, fmt.Sprintf("%s text", sqlIdent(c.Name)))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "create table if not exists %s (\n  %s\n);\n",
		sqlIdent(e.CoreTable), strings.Join(cols, ",\n  "))
	fmt.Fprintf(&sb, "create unique index if not exists %s on %s(%s);\n",
		sqlIdent(e.CoreTable+"_"+e.Key+"_uq"), sqlIdent(e.CoreTable), sqlIdent(e.Key))
	return sb.String()
}

// BootstrapDDL собирает карту fqn -> sql для init-db (аудит + все датасеты каталога)
func BootstrapDDL(r *registry.Registry) map[string]string {
	out := AuditDDL()
	for _, name := range r.Names() {
		e, _ := r.Get(name)
		out["100_"+e.RawTable] = RawStagingDDL(e)
		out["110_"+e.StagingTable] = TypedStagingDDL(e)
		out["120_"+e.CoreTable] = CoreDDL(e)
	}
	return out
}
