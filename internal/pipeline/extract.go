package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"appalti/internal/registry"
)

// PointerRoot — sentinel: корень документа уже является списком записей
const PointerRoot = "item"

// Converter разворачивает JSON-дампы в NDJSON-дерево, зеркалящее исходное.
type Converter struct {
	jsonRoot   string
	ndjsonRoot string
	workers    int
	log        *slog.Logger
}

func NewConverter(jsonRoot, ndjsonRoot string, workers int, log *slog.Logger) *Converter {
	if workers <= 0 {
		workers = 1
	}
	return &Converter{jsonRoot: jsonRoot, ndjsonRoot: ndjsonRoot, workers: workers, log: log}
}

// resolvePointer достаёт последовательность записей из документа.
// Не-последовательность оборачивается в одноэлементную; отсутствие — пусто.
func resolvePointer(doc any, pointer string) []any {
	if pointer == PointerRoot {
		if arr, ok := doc.([]any); ok {
			return arr
		}
	}
	cur := doc
	for _, part := range strings.Split(pointer, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	if cur == nil {
		return nil
	}
	if arr, ok := cur.([]any); ok {
		return arr
	}
	return []any{cur}
}

// ConvertFile конвертирует один файл. Ошибка разбора — ошибка файла,
// батч не прерывает.
func (c *Converter) ConvertFile(jsonPath string, e *registry.Entity) (int, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", jsonPath, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("parse %s: %w", jsonPath, err)
	}
	items := resolvePointer(doc, e.Pointer)

	rel, err := filepath.Rel(c.jsonRoot, jsonPath)
	if err != nil {
		return 0, err
	}
	outPath := filepath.Join(c.ndjsonRoot, strings.TrimSuffix(rel, filepath.Ext(rel))+".ndjson")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return 0, fmt.Errorf("write %s: %w", outPath, err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return len(items), nil
}

// ConvertStats — итог конвертации батча
type ConvertStats struct {
	Files  int64
	Errors int64
}

// ConvertEntity конвертирует все файлы датасета. Файлы независимы,
// поэтому раскладываются на пул воркеров; ошибки считаются, не прерывают.
func (c *Converter) ConvertEntity(ctx context.Context, e *registry.Entity, since string) (ConvertStats, error) {
	var stats ConvertStats

	files, err := JSONFiles(c.jsonRoot, e, since)
	if err != nil {
		return stats, fmt.Errorf("list json files for %s: %w", e.Name, err)
	}
	if len(files) == 0 {
		c.log.Warn("no json files found", "dataset", e.Name)
		return stats, nil
	}

	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return stats, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, jsonPath := range files {
		if ctx.Err() != nil {
			break
		}
		jsonPath := jsonPath
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			n, err := c.ConvertFile(jsonPath, e)
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				c.log.Error("convert failed", "file", jsonPath, "err", err)
				return
			}
			atomic.AddInt64(&stats.Files, 1)
			c.log.Info("converted", "file", jsonPath, "records", n)
		}); err != nil {
			wg.Done()
			atomic.AddInt64(&stats.Errors, 1)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
