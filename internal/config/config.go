package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/vigil-sh/vigil/internal/child"
	"github.com/vigil-sh/vigil/internal/deploy"
	"github.com/vigil-sh/vigil/internal/logger"
	"github.com/vigil-sh/vigil/internal/supervisor"
)

// Environment variables recognized as overrides for the supervisor section.
const (
	EnvCrashLog          = "CRASH_LOG"
	EnvRestartDelay      = "RESTART_DELAY" // seconds, or a Go duration string
	EnvMaxCrashesPerHour = "MAX_CRASHES_PER_HOUR"
)

// Config is the top-level TOML structure.
type Config struct {
	Env        []string         `toml:"env" mapstructure:"env"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Targets    []deploy.Target  `toml:"targets" mapstructure:"targets"`
	Lock       LockConfig       `toml:"lock" mapstructure:"lock"`
	State      StateConfig      `toml:"state" mapstructure:"state"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Poller     PollerConfig     `toml:"poller" mapstructure:"poller"`
}

// LogConfig carries the operational log level and the child capture settings.
type LogConfig struct {
	logger.Config `mapstructure:",squash"`

	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
}

// SupervisorConfig describes the one supervised process and its restart
// policy. RestartDelay is a pointer so `restart_delay = "0s"` (restart
// immediately) is distinguishable from the key being absent.
type SupervisorConfig struct {
	Name              string         `toml:"name" mapstructure:"name"`
	Command           string         `toml:"command" mapstructure:"command"`
	WorkDir           string         `toml:"work_dir" mapstructure:"work_dir"`
	Env               []string       `toml:"env" mapstructure:"env"`
	CrashLog          string         `toml:"crash_log" mapstructure:"crash_log"`
	RestartDelay      *time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`
	MaxCrashesPerHour int            `toml:"max_crashes_per_hour" mapstructure:"max_crashes_per_hour"`
	Cooldown          time.Duration  `toml:"cooldown" mapstructure:"cooldown"`
	GracePeriod       time.Duration  `toml:"grace_period" mapstructure:"grace_period"`
	BuildCommand      string         `toml:"build_command" mapstructure:"build_command"`
}

type LockConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

type StateConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type PollerConfig struct {
	URL      string        `toml:"url" mapstructure:"url"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

// DefaultCrashLog is the well-known temp-location ledger path used when
// neither config nor environment names one.
func DefaultCrashLog() string { return filepath.Join(os.TempDir(), "vigil-crash.log") }

// DefaultLockPath is the well-known deploy run-lock path.
func DefaultLockPath() string { return filepath.Join(os.TempDir(), "vigil-deploy.lock") }

// Load reads a TOML config file and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

// applyEnvOverrides lets the documented environment variables win over the
// file so a unit file or crontab can steer the policy without edits.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv(EnvCrashLog); p != "" {
		c.Supervisor.CrashLog = p
	}
	if raw := os.Getenv(EnvRestartDelay); raw != "" {
		if d, ok := parseSecondsOrDuration(raw); ok {
			c.Supervisor.RestartDelay = &d
		}
	}
	if raw := os.Getenv(EnvMaxCrashesPerHour); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Supervisor.MaxCrashesPerHour = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Supervisor.CrashLog == "" {
		c.Supervisor.CrashLog = DefaultCrashLog()
	}
	if c.Lock.Path == "" {
		c.Lock.Path = DefaultLockPath()
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = time.Minute
	}
}

// parseSecondsOrDuration accepts a bare integer (seconds) or a Go duration
// string such as "500ms".
func parseSecondsOrDuration(raw string) (time.Duration, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d, true
	}
	return 0, false
}

// Spec builds the child spec for the supervised process, inheriting the
// global capture settings when the section does not override them.
func (c *Config) Spec() child.Spec {
	return child.Spec{
		Name:    c.Supervisor.Name,
		Command: c.Supervisor.Command,
		WorkDir: c.Supervisor.WorkDir,
		Env:     c.Supervisor.Env,
		Log:     c.Log.Config,
	}
}

// Options builds the supervisor restart policy from the section.
func (c *Config) Options() supervisor.Options {
	return supervisor.Options{
		RestartDelay: c.Supervisor.RestartDelay,
		MaxCrashes:   c.Supervisor.MaxCrashesPerHour,
		Cooldown:     c.Supervisor.Cooldown,
		GracePeriod:  c.Supervisor.GracePeriod,
		BuildCommand: c.Supervisor.BuildCommand,
	}
}
