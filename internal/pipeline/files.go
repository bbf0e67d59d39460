package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"appalti/internal/registry"
)

// Папки источников: YYYYMMDD-<dataset>_json
var datedFolderRe = regexp.MustCompile(`^\d{8}-(.+)_json$`)

// sourceFolders возвращает папки датасета под root, отфильтрованные по since
// (сравнение имён папок строкой, как у датированных префиксов)
func sourceFolders(root string, e *registry.Entity, since string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		ok, err := filepath.Match(e.FolderGlob, ent.Name())
		if err != nil || !ok {
			continue
		}
		if since != "" && ent.Name() < since {
			continue
		}
		out = append(out, filepath.Join(root, ent.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func filesWithExt(root string, e *registry.Entity, since, ext string) ([]string, error) {
	folders, err := sourceFolders(root, e, since)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, dir := range folders {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// JSONFiles — исходные JSON-файлы датасета
func JSONFiles(root string, e *registry.Entity, since string) ([]string, error) {
	return filesWithExt(root, e, since, ".json")
}

// NDJSONFiles — сконвертированные файлы датасета
func NDJSONFiles(root string, e *registry.Entity, since string) ([]string, error) {
	return filesWithExt(root, e, since, ".ndjson")
}

// Discovery — результат сканирования json-корня
type Discovery struct {
	Known   []string `json:"known"`
	Unknown []string `json:"unknown"`
}

// Discover сканирует корень на датированные папки и сверяет их с каталогом
func Discover(root string, reg *registry.Registry) (Discovery, error) {
	var d Discovery
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, err
	}
	seen := map[string]struct{}{}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		m := datedFolderRe.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := reg.Get(name); ok {
			d.Known = append(d.Known, name)
		} else {
			d.Unknown = append(d.Unknown, name)
		}
	}
	sort.Strings(d.Known)
	sort.Strings(d.Unknown)
	return d, nil
}

// fileMD5 — fingerprint файла для аудита (не ключ идемпотентности)
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
