package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"fieldsync/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	_ "embed"
)

var (
	configOnce   sync.Once
	globalConfig *Config
	globalErr    error

	customConfigPath string // Custom config path set via --config flag
)

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "fieldsync"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644
)

// Environment variables that override the file
const (
	EnvBaseURL  = "FIELDSYNC_BASE_URL"
	EnvDBPath   = "FIELDSYNC_DB_PATH"
	EnvLogLevel = "FIELDSYNC_LOG_LEVEL"
	EnvAutoSync = "FIELDSYNC_AUTO_SYNC"
)

// Config is the application configuration
type Config struct {
	Remote       RemoteConfig       `yaml:"remote"`
	Database     DatabaseConfig     `yaml:"database"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Log          LogConfig          `yaml:"log"`
	UI           string             `yaml:"ui" validate:"oneof=cli tui"`
}

type RemoteConfig struct {
	BaseURL string   `yaml:"base_url" validate:"required,http_url"`
	Timeout Duration `yaml:"timeout"`
	Token   string   `yaml:"token,omitempty"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	Retries           int      `yaml:"retries" validate:"min=1,max=10"`
	BackoffBase       Duration `yaml:"backoff_base"`
	AutoSync          bool     `yaml:"auto_sync"`
	BackgroundTimeout Duration `yaml:"background_timeout"`
}

type ConnectivityConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"omitempty,oneof=text json"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups,omitempty" validate:"min=0"`
}

// Duration is a time.Duration written as "500ms" or "15s" in YAML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration of the embedded sample
func Default() *Config {
	cfg, err := Parse(sampleConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded sample config is invalid: %v", err))
	}
	return cfg
}

// Sample returns the embedded sample file
func Sample() []byte {
	return bytes.Clone(sampleConfig)
}

// Parse decodes YAML on top of built-in defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Remote: RemoteConfig{Timeout: Duration{15 * time.Second}},
		Sync: SyncConfig{
			Retries:           3,
			BackoffBase:       Duration{500 * time.Millisecond},
			BackgroundTimeout: Duration{2 * time.Minute},
		},
		Connectivity: ConnectivityConfig{
			PollInterval: Duration{15 * time.Second},
			ProbeTimeout: Duration{3 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		UI:  "cli",
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return utils.ErrInvalidConfig(verrs[0].Namespace(), fmt.Sprintf("failed on '%s'", verrs[0].Tag()))
		}
		return err
	}

	for field, d := range map[string]Duration{
		"remote.timeout":             c.Remote.Timeout,
		"sync.backoff_base":          c.Sync.BackoffBase,
		"connectivity.poll_interval": c.Connectivity.PollInterval,
		"connectivity.probe_timeout": c.Connectivity.ProbeTimeout,
	} {
		if d.Duration <= 0 {
			return utils.ErrInvalidConfig(field, "must be a positive duration")
		}
	}
	return nil
}

// applyEnv overrides file values with FIELDSYNC_* variables
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvAutoSync); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return utils.ErrInvalidConfig(EnvAutoSync, "must be true or false")
		}
		c.Sync.AutoSync = b
	}
	return nil
}

// DatabasePath returns the expanded database path, or the XDG default
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path == "" {
		return utils.DefaultDatabasePath()
	}
	return utils.ExpandPath(c.Database.Path)
}

// LogOptions converts the log section for utils.Logger.Configure
func (c *Config) LogOptions() utils.LogOptions {
	return utils.LogOptions{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// SetCustomConfigPath sets a custom config path to use instead of the default user config directory.
// If path is a directory, it looks for "config.yaml" inside it.
// This must be called before GetConfig() is called for the first time.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
		return
	}
	customConfigPath = path
}

// GetConfigPath returns the custom path if one was set, otherwise
// $XDG_CONFIG_HOME/fieldsync/config.yaml.
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// GetConfig loads the configuration once per process
func GetConfig() (*Config, error) {
	configOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalErr = err
			return
		}
		globalConfig, globalErr = Load(path)
	})
	return globalConfig, globalErr
}

// Load reads .env from the working directory, then the YAML file at path,
// then the FIELDSYNC_* overrides. A missing file falls back to the sample.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		utils.Component("config").Debug("no config file, using defaults", "path", path)
		data = sampleConfig
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureConfigFile offers to write the sample config when none exists at path.
// It returns true when a file was written.
func EnsureConfigFile(path string, in io.Reader, out io.Writer) (bool, error) {
	if _, err := os.Stat(path); err == nil || !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	fmt.Fprintln(out, "No config exists at", path)
	ok, err := utils.Confirm(in, out, "Do you want to copy the config sample to "+path+"?")
	if err != nil && !errors.Is(err, utils.ErrNoInput) {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, WriteConfigFile(path, sampleConfig)
}

// WriteConfigFile writes data to path, creating the directory
func WriteConfigFile(configPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(configPath), CONFIG_DIR_PERM); err != nil {
		return err
	}
	return os.WriteFile(configPath, data, CONFIG_FILE_PERM)
}
