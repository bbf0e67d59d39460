package pipeline

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"appalti/internal/pg"
	"appalti/internal/registry"
)

const insertBatchSize = 500

// Loader грузит NDJSON-файлы в сырой staging.
// Идемпотентность — по имени файла: однажды загруженное имя не грузится
// повторно, даже если содержимое изменилось (контракт зафиксирован тестами;
// fingerprint в etl_files — только аудит).
type Loader struct {
	db  *sql.DB
	log *slog.Logger
}

func NewLoader(db *sql.DB, log *slog.Logger) *Loader {
	return &Loader{db: db, log: log}
}

// EnsureRawTable лениво создаёт сырой staging датасета
func (l *Loader) EnsureRawTable(ctx context.Context, e *registry.Entity) error {
	return pg.ApplyDDL(ctx, l.db, map[string]string{"raw_" + e.RawTable: pg.RawStagingDDL(e)})
}

func (l *Loader) countForFile(ctx context.Context, e *registry.Entity, fileName string) (int64, error) {
	var n int64
	q := fmt.Sprintf(`select count(*) from %s where _file_name = $1`, quoteIdent(e.RawTable))
	if err := l.db.QueryRowContext(ctx, q, fileName).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LoadFile грузит один файл одной транзакцией.
// Возврат skipped=true означает, что имя уже загружено; rows тогда —
// количество уже лежащих строк (второй вызов отчитывается тем же числом).
func (l *Loader) LoadFile(ctx context.Context, e *registry.Entity, path string) (rows int64, skipped bool, err error) {
	if err := l.EnsureRawTable(ctx, e); err != nil {
		return 0, false, fmt.Errorf("ensure raw staging for %s: %w", e.Name, err)
	}

	fileName := filepath.Base(path)
	existing, err := l.countForFile(ctx, e, fileName)
	if err != nil {
		return 0, false, fmt.Errorf("count rows for %s: %w", fileName, err)
	}
	if existing > 0 {
		l.log.Info("file already loaded, skipping", "dataset", e.Name, "file", fileName, "rows", existing)
		return existing, true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`insert into %s (payload, _file_name) values `, quoteIdent(e.RawTable))

	var (
		batch []string
		args  []any
		total int64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insert+strings.Join(batch, ", "), args...); err != nil {
			return err
		}
		batch = batch[:0]
		args = args[:0]
		return nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// валидируем строку до вставки: битая строка = ошибка файла
		if !json.Valid([]byte(line)) {
			return 0, false, fmt.Errorf("invalid json line %d in %s", total+1, fileName)
		}
		args = append(args, line, fileName)
		batch = append(batch, fmt.Sprintf("($%d::jsonb, $%d)", len(args)-1, len(args)))
		total++
		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return 0, false, fmt.Errorf("bulk insert into %s: %w", e.RawTable, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return 0, false, fmt.Errorf("scan %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return 0, false, fmt.Errorf("bulk insert into %s: %w", e.RawTable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit load of %s: %w", fileName, err)
	}
	return total, false, nil
}

func quoteIdent(s string) string { return `"` + strings.ToLower(s) + `"` }
