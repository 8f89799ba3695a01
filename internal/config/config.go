package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Index strategies understood by IndexConfig.Strategy.
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // scheme selects the backend, e.g. postgres://, sqlite://, badger://
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	Dim int `yaml:"dim"` // defaults to 512
}

type IndexConfig struct {
	Strategy       string `yaml:"strategy"`        // linear or hnsw
	HNSWIndexPath  string `yaml:"hnsw_index_path"` // Path to persist the HNSW graph (optional, if empty index is rebuilt on startup)
	HNSWM          int    `yaml:"hnsw_m"`
	HNSWEfSearch   int    `yaml:"hnsw_ef_search"`
	HNSWCandidates int    `yaml:"hnsw_candidates"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envString returns the environment variable or defaultVal when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration embedded in defaults.yaml.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	d := Defaults()

	return &Config{
		Database: DatabaseConfig{
			URL:          envString("DATABASE_URL", d.Database.URL),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Embedding: EmbeddingConfig{
			Dim: envInt("EMBEDDING_DIM", d.Embedding.Dim),
		},
		Index: IndexConfig{
			Strategy:       strings.ToLower(envString("INDEX_STRATEGY", d.Index.Strategy)),
			HNSWIndexPath:  envString("HNSW_INDEX_PATH", d.Index.HNSWIndexPath),
			HNSWM:          envInt("HNSW_M", d.Index.HNSWM),
			HNSWEfSearch:   envInt("HNSW_EF_SEARCH", d.Index.HNSWEfSearch),
			HNSWCandidates: envInt("HNSW_CANDIDATES", d.Index.HNSWCandidates),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", d.Log.Level)),
		},
	}
}
