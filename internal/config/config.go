package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds application configuration.
type Config struct {
	Port          int           `toml:"port"`
	DBPath        string        `toml:"db"`
	WorkDir       string        `toml:"work_dir"`
	Prefix        string        `toml:"prefix"`
	CookiesFile   string        `toml:"cookies_file"`
	FFmpegPath    string        `toml:"ffmpeg"`
	MaxConcurrent int           `toml:"max_concurrent"`
	Retries       int           `toml:"retries"`
	JobTTL        time.Duration `toml:"job_ttl"`
	DownloadGrace time.Duration `toml:"download_grace"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	StartRate     float64       `toml:"start_rate"`
	StartBurst    int           `toml:"start_burst"`
}

// DefaultDBPath returns the default archive path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "clipper", "archive.db")
}

// DefaultWorkDir returns the root for per-job temporary directories.
func DefaultWorkDir() string {
	return filepath.Join(os.TempDir(), "clipper")
}

// DefaultConfigPath returns the config file location using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "clipper", "config.toml")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:          5000,
		DBPath:        DefaultDBPath(),
		WorkDir:       DefaultWorkDir(),
		Prefix:        "Clipper",
		MaxConcurrent: 3,
		Retries:       3,
		JobTTL:        time.Hour,
		DownloadGrace: 60 * time.Second,
		SweepInterval: 10 * time.Minute,
		StartRate:     2,
		StartBurst:    5,
	}
}

// Load builds Config from defaults, an optional TOML file, explicitly set
// flags and environment overrides, in that order.
func Load(args []string) (*Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("clipper", flag.ContinueOnError)
	fl := Defaults()
	configPath := fs.String("config", "", "TOML config file")
	fs.IntVar(&fl.Port, "port", fl.Port, "HTTP server port")
	fs.StringVar(&fl.DBPath, "db", fl.DBPath, "SQLite archive path")
	fs.StringVar(&fl.WorkDir, "work-dir", fl.WorkDir, "Root for per-job temporary directories")
	fs.StringVar(&fl.Prefix, "prefix", fl.Prefix, "Output filename prefix")
	fs.StringVar(&fl.CookiesFile, "cookies", fl.CookiesFile, "Cookies file passed to yt-dlp")
	fs.StringVar(&fl.FFmpegPath, "ffmpeg", fl.FFmpegPath, "ffmpeg binary (auto-detected when empty)")
	fs.IntVar(&fl.MaxConcurrent, "max-concurrent", fl.MaxConcurrent, "Maximum concurrent downloads")
	fs.IntVar(&fl.Retries, "retries", fl.Retries, "yt-dlp retry count")
	fs.DurationVar(&fl.JobTTL, "job-ttl", fl.JobTTL, "Lifetime of finished or failed jobs")
	fs.DurationVar(&fl.DownloadGrace, "download-grace", fl.DownloadGrace, "How long a fetched file is kept")
	fs.DurationVar(&fl.SweepInterval, "sweep-interval", fl.SweepInterval, "Cleanup interval")
	fs.Float64Var(&fl.StartRate, "start-rate", fl.StartRate, "Allowed job starts per second")
	fs.IntVar(&fl.StartBurst, "start-burst", fl.StartBurst, "Burst size for job starts")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path, required := *configPath, true
	if path == "" {
		path = os.Getenv("CLIPPER_CONFIG")
	}
	if path == "" {
		path, required = DefaultConfigPath(), false
	}
	if err := loadFile(cfg, path, required); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fl.Port
		case "db":
			cfg.DBPath = fl.DBPath
		case "work-dir":
			cfg.WorkDir = fl.WorkDir
		case "prefix":
			cfg.Prefix = fl.Prefix
		case "cookies":
			cfg.CookiesFile = fl.CookiesFile
		case "ffmpeg":
			cfg.FFmpegPath = fl.FFmpegPath
		case "max-concurrent":
			cfg.MaxConcurrent = fl.MaxConcurrent
		case "retries":
			cfg.Retries = fl.Retries
		case "job-ttl":
			cfg.JobTTL = fl.JobTTL
		case "download-grace":
			cfg.DownloadGrace = fl.DownloadGrace
		case "sweep-interval":
			cfg.SweepInterval = fl.SweepInterval
		case "start-rate":
			cfg.StartRate = fl.StartRate
		case "start-burst":
			cfg.StartBurst = fl.StartBurst
		}
	})

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Env overrides; CLIPPER_* wins over the legacy names.
func applyEnv(cfg *Config) {
	for _, key := range []string{"PORT", "CLIPPER_PORT"} {
		if port := os.Getenv(key); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Port = p
			}
		}
	}
	for _, key := range []string{"APP_PREFIX", "CLIPPER_PREFIX"} {
		if prefix := os.Getenv(key); prefix != "" {
			cfg.Prefix = prefix
		}
	}
	if db := os.Getenv("CLIPPER_DB"); db != "" {
		cfg.DBPath = db
	}
	if workDir := os.Getenv("CLIPPER_WORK_DIR"); workDir != "" {
		cfg.WorkDir = workDir
	}
	if cookies := os.Getenv("CLIPPER_COOKIES"); cookies != "" {
		cfg.CookiesFile = cookies
	}
	if ffmpeg := os.Getenv("CLIPPER_FFMPEG"); ffmpeg != "" {
		cfg.FFmpegPath = ffmpeg
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if c.WorkDir == "" {
		errs = append(errs, errors.New("work dir is empty"))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	for name, d := range map[string]time.Duration{
		"job_ttl":        c.JobTTL,
		"download_grace": c.DownloadGrace,
		"sweep_interval": c.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.StartRate <= 0 {
		errs = append(errs, fmt.Errorf("start_rate must be positive, got %v", c.StartRate))
	}
	if c.StartBurst < 1 {
		errs = append(errs, fmt.Errorf("start_burst must be positive, got %d", c.StartBurst))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
