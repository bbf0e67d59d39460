package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"appalti/internal/config"
	"appalti/internal/pg"
	"appalti/internal/registry"
)

// Pipeline — оркестратор: convert -> load -> upsert по датасетам
// в порядке резолвера, с границами ошибок на файл и на датасет.
type Pipeline struct {
	cfg       config.Config
	reg       *registry.Registry
	db        *sql.DB
	tracker   *Tracker
	loader    *Loader
	projector *Projector
	upserter  *Upserter
	converter *Converter
	log       *slog.Logger
}

func New(cfg config.Config, reg *registry.Registry, db *sql.DB, log *slog.Logger) *Pipeline {
	projector := NewProjector(db, log)
	return &Pipeline{
		cfg:       cfg,
		reg:       reg,
		db:        db,
		tracker:   NewTracker(db),
		loader:    NewLoader(db, log),
		projector: projector,
		upserter:  NewUpserter(db, projector, log),
		converter: NewConverter(cfg.JSONRoot, cfg.NDJSONRoot, cfg.Workers, log),
		log:       log,
	}
}

func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// datasetsOrDefault: пустой запрос = весь каталог
func (p *Pipeline) datasetsOrDefault(names []string) []string {
	if len(names) == 0 {
		return p.reg.Names()
	}
	return names
}

// resolveOrder упорядочивает датасеты; цикл деградирует в warning,
// остаток дописывается в конец
func (p *Pipeline) resolveOrder(names []string) []string {
	order, ok := p.reg.Order(names)
	if !ok {
		p.log.Warn("dependency cycle detected, processing remainder unordered", "datasets", names)
	}
	return order
}

func (p *Pipeline) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.StepTimeout)
}

// Convert гонит JSON -> NDJSON по всем запрошенным датасетам.
// В аудит не пишет: стадия не трогает БД.
func (p *Pipeline) Convert(ctx context.Context, datasets []string, since string) (ConvertStats, error) {
	var total ConvertStats
	for _, name := range p.datasetsOrDefault(datasets) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		e, ok := p.reg.Get(name)
		if !ok {
			p.log.Warn("dataset not in catalog", "dataset", name)
			continue
		}
		stepCtx, cancel := p.stepCtx(ctx)
		stats, err := p.converter.ConvertEntity(stepCtx, e, since)
		cancel()
		total.Files += stats.Files
		total.Errors += stats.Errors
		if err != nil {
			return total, err
		}
	}
	p.log.Info("conversion completed", "files", total.Files, "errors", total.Errors)
	return total, nil
}

// LoadStaging грузит NDJSON в сырой staging под одним прогоном аудита.
// Ошибки файлов поглощаются в etl_files; наружу уходит только
// оркестрационный сбой (прогон тогда закрывается как ERROR).
func (p *Pipeline) LoadStaging(ctx context.Context, datasets []string, since string) (err error) {
	if err := pg.ApplyDDL(ctx, p.db, pg.AuditDDL()); err != nil {
		return fmt.Errorf("ensure audit tables: %w", err)
	}
	run, err := p.tracker.Begin(ctx, "NDJSON to staging load")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			// границы файла уже пройдены: это оркестрационный сбой
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = p.tracker.Close(closeCtx, run, RunError, 0, 0, 1)
		}
	}()

	var totalFiles, totalRows, totalErrors int64
	for _, name := range p.datasetsOrDefault(datasets) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := p.reg.Get(name)
		if !ok {
			p.log.Warn("dataset not in catalog", "dataset", name)
			continue
		}

		files, ferr := NDJSONFiles(p.cfg.NDJSONRoot, e, since)
		if ferr != nil {
			return fmt.Errorf("list ndjson files for %s: %w", name, ferr)
		}
		if len(files) == 0 {
			p.log.Warn("no ndjson files found", "dataset", name)
			continue
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			md5sum, herr := fileMD5(path)
			if herr != nil {
				md5sum = ""
			}

			stepCtx, cancel := p.stepCtx(ctx)
			rows, _, lerr := p.loader.LoadFile(stepCtx, e, path)
			cancel()

			// ровно одна запись etl_files на файл, и при успехе, и при ошибке
			if lerr != nil {
				totalErrors++
				p.log.Error("load failed", "dataset", name, "file", path, "err", lerr)
				if rerr := p.tracker.RecordFile(ctx, run.ID, name, path, md5sum, 0, FileError, lerr.Error()); rerr != nil {
					return rerr
				}
				continue
			}
			totalFiles++
			totalRows += rows
			if rerr := p.tracker.RecordFile(ctx, run.ID, name, path, md5sum, rows, FileOK, ""); rerr != nil {
				return rerr
			}
		}
	}

	status := RunOK
	if totalErrors > 0 {
		status = RunPartial
	}
	return p.tracker.Close(ctx, run, status, totalFiles, totalRows, totalErrors)
}

// UpsertCore проецирует и сливает staging в core в порядке зависимостей.
// Ошибка датасета поглощается в счётчик, остальные датасеты продолжаются.
func (p *Pipeline) UpsertCore(ctx context.Context, datasets []string) (err error) {
	if err := pg.ApplyDDL(ctx, p.db, pg.AuditDDL()); err != nil {
		return fmt.Errorf("ensure audit tables: %w", err)
	}
	run, err := p.tracker.Begin(ctx, "Staging to core upsert")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = p.tracker.Close(closeCtx, run, RunError, 0, 0, 1)
		}
	}()

	var totalRows, totalErrors int64
	for _, name := range p.resolveOrder(p.datasetsOrDefault(datasets)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := p.reg.Get(name)
		if !ok {
			continue
		}

		stepCtx, cancel := p.stepCtx(ctx)
		rows, uerr := p.upserter.UpsertEntity(stepCtx, e)
		cancel()
		if uerr != nil {
			totalErrors++
			p.log.Error("upsert failed", "dataset", name, "err", uerr)
			continue
		}
		totalRows += rows
	}

	status := RunOK
	if totalErrors > 0 {
		status = RunPartial
	}
	return p.tracker.Close(ctx, run, status, 0, totalRows, totalErrors)
}

// RunAll — полный пайплайн: convert, load, upsert.
// Каждая БД-стадия аудируется отдельным прогоном.
func (p *Pipeline) RunAll(ctx context.Context, datasets []string, since string) error {
	if _, err := p.Convert(ctx, datasets, since); err != nil {
		return fmt.Errorf("convert stage: %w", err)
	}
	if err := p.LoadStaging(ctx, datasets, since); err != nil {
		return fmt.Errorf("load stage: %w", err)
	}
	if err := p.UpsertCore(ctx, datasets); err != nil {
		return fmt.Errorf("upsert stage: %w", err)
	}
	p.log.Info("full pipeline completed")
	return nil
}
