package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is looked up in the project directory when --config is not given.
const DefaultFile = "devctl.toml"

// Config is the typed view of devctl.toml merged with defaults and
// DEVCTL_* environment overrides.
type Config struct {
	Dir          string          `mapstructure:"-"`
	TrackingFile string          `mapstructure:"tracking_file"`
	LogDir       string          `mapstructure:"log_dir"`
	Runner       RunnerConfig    `mapstructure:"runner"`
	Services     []ServiceConfig `mapstructure:"services"`
	Kill         KillConfig      `mapstructure:"kill"`
	Env          EnvConfig       `mapstructure:"env"`
	History      HistoryConfig   `mapstructure:"history"`
	Log          LogConfig       `mapstructure:"log"`
}

// RunnerConfig is the monorepo task runner used to start dev servers.
// FilterArg may contain {service}.
type RunnerConfig struct {
	Command   string `mapstructure:"command"`
	FilterArg string `mapstructure:"filter_arg"`
}

type ServiceConfig struct {
	Name  string `mapstructure:"name"`
	Ports []int  `mapstructure:"ports"`
}

type KillConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type EnvConfig struct {
	Files        []string `mapstructure:"files"`
	Examples     []string `mapstructure:"examples"`
	Lockfile     string   `mapstructure:"lockfile"`
	MinNodeMajor int      `mapstructure:"min_node_major"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracking_file", ".devctl-processes.json")
	v.SetDefault("log_dir", ".devctl/logs")
	v.SetDefault("runner.command", "pnpm turbo run dev")
	v.SetDefault("runner.filter_arg", "--filter={service}")
	v.SetDefault("services", []map[string]any{
		{"name": "web", "ports": []int{3000}},
		{"name": "studio", "ports": []int{3333}},
	})
	v.SetDefault("kill.timeout", 5*time.Second)
	v.SetDefault("env.files", []string{".env", ".env.local"})
	v.SetDefault("env.examples", []string{".env.example"})
	v.SetDefault("env.lockfile", "pnpm-lock.yaml")
	v.SetDefault("env.min_node_major", 20)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", ".devctl/history.db")
	v.SetDefault("log.level", "info")
}

// Load reads path (or devctl.toml under dir when path is empty and the file
// exists). A missing default file is not an error.
func Load(path, dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DEVCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")

	explicit := path != ""
	if !explicit {
		path = filepath.Join(absDir, DefaultFile)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.Dir = absDir
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Runner.Command) == "" {
		return errors.New("runner.command must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if s.Name == "" {
			return errors.New("service requires name")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate service %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		for _, p := range s.Ports {
			if p <= 0 || p > 65535 {
				return fmt.Errorf("service %s: invalid port %d", s.Name, p)
			}
		}
	}
	if c.Kill.Timeout < 0 {
		return errors.New("kill.timeout must not be negative")
	}
	return nil
}

// Ports returns the ports of one service, or of every service when name is
// empty. Unknown names are an error.
func (c *Config) Ports(name string) ([]int, error) {
	if name == "" {
		return c.KnownPorts(), nil
	}
	for _, s := range c.Services {
		if s.Name == name {
			return append([]int(nil), s.Ports...), nil
		}
	}
	return nil, fmt.Errorf("unknown service %q (known: %s)", name, strings.Join(c.ServiceNames(), ", "))
}

// KnownPorts is the sorted, deduplicated union of all service ports.
func (c *Config) KnownPorts() []int {
	set := make(map[int]struct{})
	for _, s := range c.Services {
		for _, p := range s.Ports {
			set[p] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (c *Config) ServiceNames() []string {
	out := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		out = append(out, s.Name)
	}
	return out
}

// Path resolves p against the project directory unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
