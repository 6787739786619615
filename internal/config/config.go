package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anthropic/dirwatch/internal/watcher"
)

// Watch is one directory the daemon registers at startup.
type Watch struct {
	Path       string `json:"path" yaml:"path"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	MergePaths bool   `json:"merge_paths" yaml:"merge_paths"`
	SkipHidden bool   `json:"skip_hidden" yaml:"skip_hidden"`
}

// Flags converts the watch options to watcher flags.
func (w Watch) Flags() watcher.Flags {
	var f watcher.Flags
	if w.MergePaths {
		f |= watcher.MergePaths
	}
	if w.SkipHidden {
		f |= watcher.SkipHidden
	}
	return f
}

// Name returns the label, or the path when no label is set.
func (w Watch) Name() string {
	if w.Label != "" {
		return w.Label
	}
	return w.Path
}

// Duration is a time.Duration that reads and writes as a string like "10ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// Config holds all daemon configuration.
type Config struct {
	DataDir       string   `json:"data_dir" yaml:"data_dir"`
	SocketPath    string   `json:"socket_path" yaml:"socket_path"`
	DBPath        string   `json:"db_path" yaml:"db_path"`
	Capacity      int      `json:"capacity" yaml:"capacity"`
	QueueCapacity int      `json:"queue_capacity" yaml:"queue_capacity"`
	Backend       string   `json:"backend" yaml:"backend"`
	PollInterval  Duration `json:"poll_interval" yaml:"poll_interval"`
	MetricsAddr   string   `json:"metrics_addr" yaml:"metrics_addr"`
	Watches       []Watch  `json:"watches" yaml:"watches"`
}

// DefaultDataDir returns the default data directory (~/.dirwatch).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".dirwatch")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:       dataDir,
		SocketPath:    filepath.Join(dataDir, "dirwatch.sock"),
		DBPath:        filepath.Join(dataDir, "dirwatch.db"),
		Capacity:      128,
		QueueCapacity: watcher.DefaultQueueCapacity,
		Backend:       watcher.BackendNative,
		PollInterval:  Duration(10 * time.Millisecond),
		Watches:       []Watch{},
	}
}

// Load reads configuration from a JSON or YAML file, falling back to
// defaults for any unset fields. The format is picked by extension.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine, use defaults.
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Re-derive paths if DataDir was overridden but socket/db paths were not.
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "dirwatch.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "dirwatch.db")
	}

	return cfg, nil
}

// Validate reports every problem that would stop the daemon from
// registering its watches.
func (c *Config) Validate() error {
	var errs []error
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %d", c.Capacity))
	}
	if len(c.Watches) > c.Capacity {
		errs = append(errs, fmt.Errorf("%d watches configured but capacity is %d", len(c.Watches), c.Capacity))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	switch c.Backend {
	case "", watcher.BackendNative, watcher.BackendFsnotify:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	seen := make(map[string]bool, len(c.Watches))
	for i, w := range c.Watches {
		if w.Path == "" {
			errs = append(errs, fmt.Errorf("watches[%d]: path is empty", i))
			continue
		}
		clean := filepath.Clean(w.Path)
		if seen[clean] {
			errs = append(errs, fmt.Errorf("watches[%d]: %s listed twice", i, w.Path))
		}
		seen[clean] = true
	}
	return errors.Join(errs...)
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file. A config.yaml
// in the data directory wins over config.json when both exist.
func ConfigPath() string {
	yamlPath := filepath.Join(DefaultDataDir(), "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(DefaultDataDir(), "config.json")
}
