package config

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig      `yaml:"server" mapstructure:"server"`
	Logging        LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Paths          PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Authentication AuthConfig        `yaml:"authentication" mapstructure:"authentication"`
	Engines        map[string]string `yaml:"engines" mapstructure:"engines"` // engine name -> executable
	path           string
}

type ServerConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

type LoggingConfig struct {
	Level             string `yaml:"level" mapstructure:"level"`
	LogPath           string `yaml:"log_path" mapstructure:"log_path"`
	EnableFileLogging bool   `yaml:"enable_file_logging" mapstructure:"enable_file_logging"`
}

type PathsConfig struct {
	DownloadPath string `yaml:"download_path" mapstructure:"download_path"`
	// Directory searched for engine executables before PATH.
	PluginPath string `yaml:"plugin_path" mapstructure:"plugin_path"`
}

type AuthConfig struct {
	RequireAuth bool   `yaml:"require_auth" mapstructure:"require_auth"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	TokenSecret string `yaml:"token_secret" mapstructure:"token_secret"`
}

var (
	instance     *Config
	instanceOnce sync.Once
)

func Instance() *Config {
	if instance == nil {
		instanceOnce.Do(func() {
			instance = &Config{
				Engines: make(map[string]string),
			}
			instance.Server.PollInterval = time.Second
			instance.Paths.DownloadPath = "./"
		})
	}
	return instance
}

// Engine returns the configured executable for the engine, or "" when the
// registry default should be used.
func (c *Config) Engine(name string) string {
	if c.Engines == nil {
		return ""
	}
	return c.Engines[name]
}

func (c *Config) SetPath(p string) { c.path = p }

// Path of the directory containing the config file
func (c *Config) Dir() string { return filepath.Dir(c.path) }

// Absolute path of the config file
func (c *Config) Path() string { return c.path }

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	return enc.Encode(c)
}
