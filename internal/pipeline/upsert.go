package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"appalti/internal/registry"
)

// Upserter сливает типизированный staging в core-таблицу датасета.
// Новые ключи вставляются; по конфликту перезаписываются только
// объявленные update-поля, остальные колонки неизменяемы после первой записи.
type Upserter struct {
	db        *sql.DB
	projector *Projector
	log       *slog.Logger
}

func NewUpserter(db *sql.DB, projector *Projector, log *slog.Logger) *Upserter {
	return &Upserter{db: db, projector: projector, log: log}
}

// UpsertEntity: ensure staging -> Rebuild -> merge.
// Возвращает число обработанных staging-строк (не число изменённых core-строк).
// Вызывается в порядке резолвера, чтобы родители шли раньше детей.
func (u *Upserter) UpsertEntity(ctx context.Context, e *registry.Entity) (int64, error) {
	if err := u.projector.Rebuild(ctx, e); err != nil {
		return 0, err
	}
	if len(e.Columns) == 0 {
		return 0, nil
	}

	var staged int64
	if err := u.db.QueryRowContext(ctx,
		fmt.Sprintf(`select count(*) from %s`, quoteIdent(e.StagingTable))).Scan(&staged); err != nil {
		return 0, fmt.Errorf("count staging %s: %w", e.StagingTable, err)
	}
	if staged == 0 {
		return 0, nil
	}

	cols := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		cols = append(cols, quoteIdent(c.Name))
	}
	colList := strings.Join(cols, ", ")
	key := quoteIdent(e.Key)

	var conflict string
	if len(e.UpdateFields) > 0 {
		sets := make([]string, 0, len(e.UpdateFields))
		for _, f := range e.UpdateFields {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(f), quoteIdent(f)))
		}
		conflict = fmt.Sprintf("do update set %s", strings.Join(sets, ", "))
	} else {
		conflict = "do nothing"
	}

	// distinct on: дубликаты ключа внутри staging схлопываются,
	// иначе ON CONFLICT DO UPDATE падает на повторном ключе
	merge := fmt.Sprintf(
		`insert into %s (%s)
		 select distinct on (%s) %s from %s where %s is not null order by %s
		 on conflict (%s) %s`,
		quoteIdent(e.CoreTable), colList, key, colList, quoteIdent(e.StagingTable), key, key, key, conflict)

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, merge); err != nil {
		return 0, fmt.Errorf("upsert %s into %s: %w", e.Name, e.CoreTable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert of %s: %w", e.Name, err)
	}

	u.log.Info("upserted", "dataset", e.Name, "staged", staged)
	return staged, nil
}
