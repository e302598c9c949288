package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath       string        `yaml:"db_path"`
	ImageDir     string        `yaml:"image_dir"`
	ImagesMaxMB  int           `yaml:"images_max_mb"`
	DefaultActor string        `yaml:"default_actor"`
	LogLevel     string        `yaml:"log_level"`
	Output       string        `yaml:"output"`
	ListenAddr   string        `yaml:"listen_addr"`
	Token        string        `yaml:"token"`
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	SyncStrategy string        `yaml:"sync_strategy"`
	SyncRetries  int           `yaml:"sync_retries"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/fluxr/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		ImagesMaxMB:  10,
		LogLevel:     "info",
		Output:       "table",
		ListenAddr:   "127.0.0.1:7420",
		CacheTTL:     30 * time.Second,
		SyncStrategy: "resync",
		SyncRetries:  2,
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional; a malformed file is an error.
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" || cfg.ImageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		base := filepath.Join(homeDir, ".local", "share", "fluxr")
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(base, "fluxr.db")
		}
		if cfg.ImageDir == "" {
			cfg.ImageDir = filepath.Join(base, "images")
		}
	}

	switch cfg.SyncStrategy {
	case "resync", "patch":
	default:
		return nil, fmt.Errorf("invalid sync_strategy %q: must be resync or patch", cfg.SyncStrategy)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := getEnvOrFile("FLUXR_DB_PATH", "FLUXR_DB_PATH_FILE"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLUXR_IMAGE_DIR"); v != "" {
		cfg.ImageDir = v
	}
	if v := os.Getenv("FLUXR_IMAGES_MAX_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLUXR_IMAGES_MAX_MB: %w", err)
		}
		cfg.ImagesMaxMB = n
	}
	if v := os.Getenv("FLUXR_ACTOR"); v != "" {
		cfg.DefaultActor = v
	}
	if v := os.Getenv("FLUXR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLUXR_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("FLUXR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getEnvOrFile("FLUXR_TOKEN", "FLUXR_TOKEN_FILE"); v != "" {
		cfg.Token = v
	}
	if v := getEnvOrFile("FLUXR_REDIS_URL", "FLUXR_REDIS_URL_FILE"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("FLUXR_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLUXR_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("FLUXR_SYNC_STRATEGY"); v != "" {
		cfg.SyncStrategy = v
	}
	if v := os.Getenv("FLUXR_SYNC_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLUXR_SYNC_RETRIES: %w", err)
		}
		cfg.SyncRetries = n
	}
	return nil
}

// loadYAMLConfig loads configuration from ~/.config/fluxr/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(homeDir, ".config", "fluxr", "config.yaml"))
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
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
// Returns the path to .env.local if found, empty string otherwise.
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

// GetActor returns the acting actor: FLUXR_ACTOR, then config.default_actor,
// then the OS user name.
func (c *Config) GetActor() string {
	if actor := os.Getenv("FLUXR_ACTOR"); actor != "" {
		return actor
	}
	if c.DefaultActor != "" {
		return c.DefaultActor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
