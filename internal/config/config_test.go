package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate clears every variable Load reads.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_PREFIX", "CLIPPER_PORT", "CLIPPER_PREFIX", "CLIPPER_DB",
		"CLIPPER_WORK_DIR", "CLIPPER_COOKIES", "CLIPPER_FFMPEG", "CLIPPER_CONFIG",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultDBPath(t *testing.T) {
	t.Run("with XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/custom/cache")
		path := DefaultDBPath()

		expected := "/custom/cache/clipper/archive.db"
		if path != expected {
			t.Errorf("DefaultDBPath() = %q, want %q", path, expected)
		}
	})

	t.Run("without XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "")
		path := DefaultDBPath()

		if !strings.HasSuffix(path, filepath.Join(".cache", "clipper", "archive.db")) {
			t.Errorf("DefaultDBPath() = %q, want suffix .cache/clipper/archive.db", path)
		}
	})
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := DefaultConfigPath(); got != "/custom/config/clipper/config.toml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.Prefix != "Clipper" {
		t.Errorf("Prefix = %q, want Clipper", cfg.Prefix)
	}
	if cfg.MaxConcurrent != 3 || cfg.Retries != 3 {
		t.Errorf("MaxConcurrent = %d, Retries = %d", cfg.MaxConcurrent, cfg.Retries)
	}
	if cfg.JobTTL != time.Hour || cfg.DownloadGrace != time.Minute || cfg.SweepInterval != 10*time.Minute {
		t.Errorf("durations = %s %s %s", cfg.JobTTL, cfg.DownloadGrace, cfg.SweepInterval)
	}
	if cfg.WorkDir != filepath.Join(os.TempDir(), "clipper") {
		t.Errorf("WorkDir = %q", cfg.WorkDir)
	}
	if cfg.Addr() != ":5000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
port = 7000
prefix = "Tube"
max_concurrent = 5
job_ttl = "30m"
download_grace = "2m"
`)

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7000 || cfg.Prefix != "Tube" || cfg.MaxConcurrent != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.JobTTL != 30*time.Minute || cfg.DownloadGrace != 2*time.Minute {
		t.Errorf("JobTTL = %s, DownloadGrace = %s", cfg.JobTTL, cfg.DownloadGrace)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want default 3", cfg.Retries)
	}
}

func TestLoad_DefaultConfigFile(t *testing.T) {
	isolate(t)
	dir := os.Getenv("XDG_CONFIG_HOME")
	if err := os.MkdirAll(filepath.Join(dir, "clipper"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "clipper", "config.toml"), []byte("retries = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retries != 7 {
		t.Errorf("Retries = %d, want 7", cfg.Retries)
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "port = 7000\nprefix = \"File\"\nretries = 1\n")

	// Flags beat the file, env beats flags
	t.Setenv("CLIPPER_CONFIG", path)
	t.Setenv("APP_PREFIX", "Legacy")
	t.Setenv("CLIPPER_PORT", "9000")

	cfg, err := Load([]string{"-port", "8000", "-prefix", "Flag", "-retries", "4"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Prefix != "Legacy" {
		t.Errorf("Prefix = %q, want Legacy", cfg.Prefix)
	}
	if cfg.Retries != 4 {
		t.Errorf("Retries = %d, want 4", cfg.Retries)
	}
}

func TestLoad_UnsetFlagsKeepFileValues(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "max_concurrent = 8\n")

	cfg, err := Load([]string{"-config", path, "-port", "6000"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8", cfg.MaxConcurrent)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "4000")
	t.Setenv("CLIPPER_PREFIX", "Env")
	t.Setenv("APP_PREFIX", "Legacy")
	t.Setenv("CLIPPER_DB", "/data/a.db")
	t.Setenv("CLIPPER_WORK_DIR", "/data/work")
	t.Setenv("CLIPPER_COOKIES", "/data/cookies.txt")
	t.Setenv("CLIPPER_FFMPEG", "/opt/ffmpeg")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 4000 || cfg.Prefix != "Env" {
		t.Errorf("Port = %d, Prefix = %q", cfg.Port, cfg.Prefix)
	}
	if cfg.DBPath != "/data/a.db" || cfg.WorkDir != "/data/work" {
		t.Errorf("DBPath = %q, WorkDir = %q", cfg.DBPath, cfg.WorkDir)
	}
	if cfg.CookiesFile != "/data/cookies.txt" || cfg.FFmpegPath != "/opt/ffmpeg" {
		t.Errorf("CookiesFile = %q, FFmpegPath = %q", cfg.CookiesFile, cfg.FFmpegPath)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{"missing explicit file", func(t *testing.T) []string {
			return []string{"-config", filepath.Join(t.TempDir(), "nope.toml")}
		}},
		{"malformed file", func(t *testing.T) []string {
			return []string{"-config", writeConfig(t, "port = [")}
		}},
		{"unknown flag", func(t *testing.T) []string {
			return []string{"-bogus"}
		}},
		{"invalid value", func(t *testing.T) []string {
			return []string{"-max-concurrent", "0"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			if _, err := Load(tt.args(t)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port", func(c *Config) { c.Port = 0 }, "port"},
		{"ttl", func(c *Config) { c.JobTTL = 0 }, "job_ttl"},
		{"grace", func(c *Config) { c.DownloadGrace = -time.Second }, "download_grace"},
		{"sweep", func(c *Config) { c.SweepInterval = 0 }, "sweep_interval"},
		{"retries", func(c *Config) { c.Retries = -1 }, "retries"},
		{"rate", func(c *Config) { c.StartRate = 0 }, "start_rate"},
		{"burst", func(c *Config) { c.StartBurst = 0 }, "start_burst"},
		{"db", func(c *Config) { c.DBPath = "" }, "db path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
