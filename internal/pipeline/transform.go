package pipeline

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"appalti/internal/registry"
)

const defaultDateLayout = "2006-01-02"

// lookupPath идёт по dotted-пути внутри payload
func lookupPath(payload map[string]any, path string) any {
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// evalColumn вычисляет значение колонки из payload по её дескриптору.
// Несводимое значение даёт NULL, а не ошибку: проекция не должна падать
// из-за одного кривого поля.
func evalColumn(payload map[string]any, c registry.Column) sql.NullString {
	v := lookupPath(payload, c.Path)
	if v == nil {
		return sql.NullString{}
	}
	switch c.Type {
	case "", "string":
		return asString(v)
	case "number":
		return asNumber(v)
	case "date":
		layout := c.Format
		if layout == "" {
			layout = defaultDateLayout
		}
		return asDate(v, layout)
	default:
		return sql.NullString{}
	}
}

func asString(v any) sql.NullString {
	switch s := v.(type) {
	case string:
		return sql.NullString{String: s, Valid: true}
	case float64:
		return sql.NullString{String: formatFloat(s), Valid: true}
	case bool:
		return sql.NullString{String: strconv.FormatBool(s), Valid: true}
	default:
		return sql.NullString{}
	}
}

func asNumber(v any) sql.NullString {
	switch n := v.(type) {
	case float64:
		return sql.NullString{String: formatFloat(n), Valid: true}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return sql.NullString{}
		}
		return sql.NullString{String: formatFloat(f), Valid: true}
	default:
		return sql.NullString{}
	}
}

func asDate(v any, layout string) sql.NullString {
	s, ok := v.(string)
	if !ok {
		return sql.NullString{}
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(defaultDateLayout), Valid: true}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
