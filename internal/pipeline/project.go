package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"appalti/internal/pg"
	"appalti/internal/registry"
)

// Projector перестраивает типизированный staging из сырого.
// Всегда полный rebuild: TRUNCATE + пересчёт всех колонок из текущих
// payload'ов. Идемпотентно при неизменном входе.
type Projector struct {
	db  *sql.DB
	log *slog.Logger
}

func NewProjector(db *sql.DB, log *slog.Logger) *Projector {
	return &Projector{db: db, log: log}
}

// EnsureStagingTable лениво создаёт типизированный staging датасета
func (p *Projector) EnsureStagingTable(ctx context.Context, e *registry.Entity) error {
	return pg.ApplyDDL(ctx, p.db, map[string]string{"stg_" + e.StagingTable: pg.TypedStagingDDL(e)})
}

// Rebuild — одна транзакция: очистка и полная перепроекция.
// Датасет без проекций — no-op с warning.
func (p *Projector) Rebuild(ctx context.Context, e *registry.Entity) error {
	if len(e.Columns) == 0 {
		p.log.Warn("no projection map defined", "dataset", e.Name)
		return nil
	}
	if err := p.EnsureStagingTable(ctx, e); err != nil {
		return fmt.Errorf("ensure typed staging for %s: %w", e.Name, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`truncate table %s`, quoteIdent(e.StagingTable))); err != nil {
		return fmt.Errorf("truncate %s: %w", e.StagingTable, err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`select payload from %s`, quoteIdent(e.RawTable)))
	if err != nil {
		return fmt.Errorf("read raw staging %s: %w", e.RawTable, err)
	}

	cols := make([]string, 0, len(e.Columns))
	holes := make([]string, 0, len(e.Columns))
	for i, c := range e.Columns {
		cols = append(cols, quoteIdent(c.Name))
		holes = append(holes, fmt.Sprintf("$%d", i+1))
	}
	insert := fmt.Sprintf(`insert into %s (%s) values (%s)`,
		quoteIdent(e.StagingTable), strings.Join(cols, ", "), strings.Join(holes, ", "))

	type projected []any
	var pending []projected
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return fmt.Errorf("scan payload: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			// payload не объект: все колонки NULL
			payload = nil
		}
		vals := make(projected, len(e.Columns))
		for i, c := range e.Columns {
			vals[i] = evalColumn(payload, c)
		}
		pending = append(pending, vals)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate raw staging %s: %w", e.RawTable, err)
	}
	rows.Close()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare projection insert: %w", err)
	}
	defer stmt.Close()
	for _, vals := range pending {
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return fmt.Errorf("project into %s: %w", e.StagingTable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection of %s: %w", e.Name, err)
	}
	p.log.Info("projection rebuilt", "dataset", e.Name, "rows", len(pending))
	return nil
}
