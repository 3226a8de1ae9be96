package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir       string `toml:"state_dir"`
	TmpDir         string `toml:"tmp_dir"`
	ArchiveDir     string `toml:"archive_dir"`
	AuthProfileDir string `toml:"auth_profile_dir"`
	LogDir         string `toml:"log_dir"`
}

// Scheduler contains capacity and polling configuration.
type Scheduler struct {
	MaxParallelJobs          int `toml:"max_parallel_jobs"`
	MaxParallelJobsPerSource int `toml:"max_parallel_jobs_per_source"`
	MaxQueueLength           int `toml:"max_queue_length"`
	PollInterval             int `toml:"poll_interval"`
	ErrorRetryInterval       int `toml:"error_retry_interval"`
}

// Retry contains retry policy configuration. BackoffTiers are successive
// delays in seconds indexed by retry count; the last tier repeats.
type Retry struct {
	MaxRetries   int   `toml:"max_retries"`
	BackoffTiers []int `toml:"backoff_tiers"`
}

// Recovery contains startup reconciliation configuration. Policy is "fail"
// (finalize stale RUNNING jobs as FAILED) or "requeue" (re-arm with an
// incremented retry count).
type Recovery struct {
	StaleAfter int    `toml:"stale_after"`
	Policy     string `toml:"policy"`
}

// Pipeline contains per-stage execution limits.
type Pipeline struct {
	MetadataTimeout    int `toml:"metadata_timeout"`
	DownloadTimeout    int `toml:"download_timeout"`
	PostprocessTimeout int `toml:"postprocess_timeout"`
	MaxFileSizeMB      int `toml:"max_file_size_mb"`
}

// Auth contains auth profile health configuration.
type Auth struct {
	DegradedThreshold int `toml:"degraded_threshold"`
}

// Notifications contains ntfy push configuration. An empty topic disables
// push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Retry         Retry         `toml:"retry"`
	Recovery      Recovery      `toml:"recovery"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Auth          Auth          `toml:"auth"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return expandHome("~/.config/fetchd/config.toml")
}

// Load reads configuration from path, falling back to the default location
// and then to built-in defaults when no file exists. The returned string is
// the path actually read ("" when defaults were used).
func Load(path string) (*Config, string, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = DefaultConfigPath()
	} else {
		candidate = expandHome(candidate)
	}

	cfg := Default()

	data, err := os.ReadFile(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(path) == "" {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return &cfg, "", nil
		}
		return nil, "", fmt.Errorf("read config %s: %w", candidate, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("parse config %s: %w", candidate, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, candidate, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates every configured directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StateDir,
		c.Paths.TmpDir,
		c.Paths.ArchiveDir,
		c.Paths.AuthProfileDir,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Paths.StateDir = expandHome(c.Paths.StateDir)
	c.Paths.TmpDir = expandHome(c.Paths.TmpDir)
	c.Paths.ArchiveDir = expandHome(c.Paths.ArchiveDir)
	c.Paths.AuthProfileDir = expandHome(c.Paths.AuthProfileDir)
	c.Paths.LogDir = expandHome(c.Paths.LogDir)
	c.Recovery.Policy = strings.ToLower(strings.TrimSpace(c.Recovery.Policy))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

func expandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
