package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME and cwd at fresh temp directories and clears FLUXR_* vars.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, v := range []string{
		"FLUXR_DB_PATH", "FLUXR_DB_PATH_FILE", "FLUXR_IMAGE_DIR", "FLUXR_IMAGES_MAX_MB",
		"FLUXR_ACTOR", "FLUXR_LOG_LEVEL", "FLUXR_OUTPUT", "FLUXR_LISTEN_ADDR",
		"FLUXR_TOKEN", "FLUXR_TOKEN_FILE", "FLUXR_REDIS_URL", "FLUXR_REDIS_URL_FILE",
		"FLUXR_CACHE_TTL", "FLUXR_SYNC_STRATEGY", "FLUXR_SYNC_RETRIES",
	} {
		t.Setenv(v, "")
	}

	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(home); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, ".local", "share", "fluxr", "fluxr.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ImageDir != filepath.Join(home, ".local", "share", "fluxr", "images") {
		t.Errorf("ImageDir = %q", cfg.ImageDir)
	}
	if cfg.SyncStrategy != "resync" || cfg.SyncRetries != 2 || cfg.CacheTTL != 30*time.Second {
		t.Errorf("unexpected sync defaults: %+v", cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)

	configDir := filepath.Join(home, ".config", "fluxr")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	yamlConfig := "db_path: /from/yaml.db\nlog_level: debug\ncache_ttl: 5m\nsync_strategy: patch\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yamlConfig), 0644); err != nil {
		t.Fatal(err)
	}
	tokenFile := filepath.Join(home, "token")
	if err := os.WriteFile(tokenFile, []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FLUXR_DB_PATH", "/from/env.db")
	t.Setenv("FLUXR_TOKEN_FILE", tokenFile)
	t.Setenv("FLUXR_SYNC_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Errorf("env should win over yaml, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" || cfg.SyncStrategy != "patch" || cfg.CacheTTL != 5*time.Minute {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.Token != "s3cret" {
		t.Errorf("Token = %q, want value read from file", cfg.Token)
	}
	if cfg.SyncRetries != 5 {
		t.Errorf("SyncRetries = %d, want 5", cfg.SyncRetries)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name, env, value string
	}{
		{"strategy", "FLUXR_SYNC_STRATEGY", "merge"},
		{"retries", "FLUXR_SYNC_RETRIES", "many"},
		{"ttl", "FLUXR_CACHE_TTL", "soon"},
		{"images", "FLUXR_IMAGES_MAX_MB", "big"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.env, tt.value)
			}
		})
	}
}

func TestLoad_EnvLocal(t *testing.T) {
	home := isolate(t)
	child := filepath.Join(home, "project", "sub")
	if err := os.MkdirAll(child, 0755); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(home, "project", ".env.local")
	if err := os.WriteFile(envFile, []byte("FLUXR_OUTPUT=json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(child); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	os.Unsetenv("FLUXR_OUTPUT")
	t.Cleanup(func() { os.Unsetenv("FLUXR_OUTPUT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, want json from .env.local", cfg.Output)
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{tmpDir, childDir} {
		if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("X=1"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	oldCwd, _ := os.Getwd()
	defer os.Chdir(oldCwd)
	if err := os.Chdir(childDir); err != nil {
		t.Fatal(err)
	}

	expected, _ := filepath.EvalSymlinks(filepath.Join(childDir, ".env.local"))
	got, _ := filepath.EvalSymlinks(findEnvLocal())
	if got != expected {
		t.Errorf("expected closest .env.local (%s), got %s", expected, got)
	}
}

func TestFindEnvLocal_NotFound(t *testing.T) {
	isolate(t)
	if result := findEnvLocal(); result != "" {
		t.Errorf("expected empty string when no .env.local found, got %s", result)
	}
}

func TestGetActor(t *testing.T) {
	isolate(t)
	cfg := &Config{DefaultActor: "from-config"}
	if got := cfg.GetActor(); got != "from-config" {
		t.Errorf("GetActor = %q, want from-config", got)
	}
	t.Setenv("FLUXR_ACTOR", "from-env")
	if got := cfg.GetActor(); got != "from-env" {
		t.Errorf("GetActor = %q, want from-env", got)
	}
}
