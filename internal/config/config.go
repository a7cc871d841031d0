package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendNeo4j  = "neo4j"
	BackendSQLite = "sqlite"

	LedgerFile = "file"
	LedgerBolt = "bolt"
)

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI            string `yaml:"uri"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxPoolSize    int    `yaml:"max_pool_size"`
}

// Config represents the application configuration
type Config struct {
	Backend             string      `yaml:"backend"`
	SQLitePath          string      `yaml:"sqlite_path"`
	Neo4j               Neo4jConfig `yaml:"neo4j"`
	FragmentGlob        string      `yaml:"fragment_glob"`
	LedgerPath          string      `yaml:"ledger_path"`
	LedgerBackend       string      `yaml:"ledger_backend"`
	BackupDir           string      `yaml:"backup_dir"`
	ExportDir           string      `yaml:"export_dir"`
	CompressBackups     bool        `yaml:"compress_backups"`
	SimilarityScorer    string      `yaml:"similarity_scorer"`
	SimilarityThreshold float64     `yaml:"similarity_threshold"`
	Workers             int         `yaml:"workers"`
	LogLevel            string      `yaml:"log_level"`
	LogMode             string      `yaml:"log_mode"`
}

// Defaults returns a Config populated with built-in defaults only.
func Defaults() *Config {
	return &Config{
		Backend:      BackendNeo4j,
		FragmentGlob: "**/*.json",
		Neo4j: Neo4jConfig{
			URI:            "bolt://localhost:7687",
			User:           "neo4j",
			TimeoutSeconds: 10,
			MaxPoolSize:    50,
		},
		LedgerBackend:       LedgerFile,
		BackupDir:           filepath.Join("data", "backup"),
		ExportDir:           filepath.Join("data", "processed", "graph_exports"),
		SimilarityScorer:    "ratio",
		SimilarityThreshold: 0.5,
		Workers:             4,
		LogLevel:            "info",
		LogMode:             "development",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it, then ./.env
// 3. ~/.config/graphsync/config.yaml (YAML), or configPath when non-empty
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	// godotenv does not override variables that are already set
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	if configPath != "" {
		if err := loadYAMLFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
	} else {
		// The user-level YAML config is optional
		_ = loadYAMLConfig(cfg)
	}

	applyEnv(cfg)

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join("data", "graph.db")
	}
	if cfg.LedgerPath == "" {
		if cfg.LedgerBackend == LedgerBolt {
			cfg.LedgerPath = filepath.Join("data", "processed", "loaded_files.db")
		} else {
			cfg.LedgerPath = filepath.Join("data", "processed", "loaded_files.txt")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GRAPHSYNC_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := getEnvOrFile("GRAPHSYNC_SQLITE_PATH", "GRAPHSYNC_SQLITE_PATH_FILE"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		cfg.Neo4j.User = v
	}
	if v := getEnvOrFile("NEO4J_PASSWORD", "NEO4J_PASSWORD_FILE"); v != "" {
		cfg.Neo4j.Password = v
	}
	if v := os.Getenv("NEO4J_DATABASE"); v != "" {
		cfg.Neo4j.Database = v
	}
	if n, ok := envInt("NEO4J_TIMEOUT_SECONDS"); ok {
		cfg.Neo4j.TimeoutSeconds = n
	}
	if n, ok := envInt("NEO4J_MAX_POOL_SIZE"); ok {
		cfg.Neo4j.MaxPoolSize = n
	}
	if v := os.Getenv("GRAPHSYNC_FRAGMENT_GLOB"); v != "" {
		cfg.FragmentGlob = v
	}
	if v := os.Getenv("GRAPHSYNC_LEDGER_PATH"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("GRAPHSYNC_LEDGER_BACKEND"); v != "" {
		cfg.LedgerBackend = strings.ToLower(v)
	}
	if v := os.Getenv("GRAPHSYNC_BACKUP_DIR"); v != "" {
		cfg.BackupDir = v
	}
	if v := os.Getenv("GRAPHSYNC_EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
	if v := os.Getenv("GRAPHSYNC_COMPRESS_BACKUPS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CompressBackups = b
		}
	}
	if v := os.Getenv("GRAPHSYNC_SIMILARITY_SCORER"); v != "" {
		cfg.SimilarityScorer = v
	}
	if v := os.Getenv("GRAPHSYNC_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SimilarityThreshold = f
		}
	}
	if n, ok := envInt("GRAPHSYNC_WORKERS"); ok {
		cfg.Workers = n
	}
	if v := os.Getenv("GRAPHSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRAPHSYNC_LOG_MODE"); v != "" {
		cfg.LogMode = v
	}
}

// Validate checks enumerated settings and numeric ranges.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendNeo4j, BackendSQLite:
	default:
		return fmt.Errorf("invalid backend %q: must be one of: neo4j, sqlite", c.Backend)
	}
	switch c.LedgerBackend {
	case LedgerFile, LedgerBolt:
	default:
		return fmt.Errorf("invalid ledger backend %q: must be one of: file, bolt", c.LedgerBackend)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid similarity threshold %v: must be between 0 and 1", c.SimilarityThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid workers %d: must be at least 1", c.Workers)
	}
	return nil
}

// loadYAMLConfig loads configuration from ~/.config/graphsync/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return loadYAMLFile(cfg, filepath.Join(homeDir, ".config", "graphsync", "config.yaml"))
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
