package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port  string `yaml:"port"`
	DBURL string `yaml:"dbUrl"`

	JSONRoot     string `yaml:"jsonRoot"`
	NDJSONRoot   string `yaml:"ndjsonRoot"`
	RegistryPath string `yaml:"registryPath"` // пусто = встроенный каталог

	// Воркеры только для конвертации; load/upsert идут последовательно
	Workers int `yaml:"workers"`

	// В YAML задаётся строкой ("30s", "5m") через stepTimeout
	StepTimeout time.Duration `yaml:"-"`
}

func def() Config {
	return Config{
		Port:        "8080",
		DBURL:       "",
		JSONRoot:    "data/json",
		NDJSONRoot:  "data/ndjson",
		Workers:     4,
		StepTimeout: 5 * time.Minute,
	}
}

func loadYAML(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	var raw struct {
		Config      `yaml:",inline"`
		StepTimeout string `yaml:"stepTimeout"`
	}
	raw.Config = c
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return c, err
	}
	c = raw.Config
	if raw.StepTimeout != "" {
		if d, err := time.ParseDuration(raw.StepTimeout); err == nil && d > 0 {
			c.StepTimeout = d
		}
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// LoadWithPath читает YAML по указанному пути, потом применяет ENV.
// Отсутствующий файл не ошибка: работаем на дефолтах.
func LoadWithPath(yamlPath string) Config {
	cfg := def()

	if st, err := os.Stat(yamlPath); err == nil && !st.IsDir() {
		if c2, err := loadYAML(yamlPath); err == nil {
			cfg = c2
		}
	}

	cfg.Port = getenv("APPALTI_PORT", cfg.Port)
	cfg.DBURL = getenv("APPALTI_DB_URL", cfg.DBURL)
	cfg.JSONRoot = getenv("APPALTI_JSON_ROOT", cfg.JSONRoot)
	cfg.NDJSONRoot = getenv("APPALTI_NDJSON_ROOT", cfg.NDJSONRoot)
	cfg.RegistryPath = getenv("APPALTI_REGISTRY", cfg.RegistryPath)
	cfg.Workers = getenvInt("APPALTI_WORKERS", cfg.Workers)
	cfg.StepTimeout = getenvDuration("APPALTI_STEP_TIMEOUT", cfg.StepTimeout)

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Minute
	}

	return cfg
}
