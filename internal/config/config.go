package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvHTTPOnly  = "SENTINEL_HTTP_ONLY"
	EnvCertFile  = "SENTINEL_CERT_FILE"
	EnvKeyFile   = "SENTINEL_KEY_FILE"
	EnvPort      = "SENTINEL_PORT"
	EnvDBPath    = "SENTINEL_DB_PATH"
	EnvModelURL  = "SENTINEL_MODEL_URL"
	EnvLogLevel  = "SENTINEL_LOG_LEVEL"
	DefaultModel = "TaiwoOgun/deberta-v3-hate-speech-onnx"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Database DatabaseConfig `yaml:"database"`
	TLS      TLSConfig      `yaml:"tls"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release, test
	CORS            string        `yaml:"cors"` // "full" or "static"
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig points at the classification runtime.
type ModelConfig struct {
	RepoID         string        `yaml:"repo_id"`
	RuntimeURL     string        `yaml:"runtime_url"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TLSConfig controls certificate bootstrap.
type TLSConfig struct {
	HTTPOnly bool   `yaml:"http_only"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CertDir  string `yaml:"cert_dir"` // defaults to ~/.finalextension
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// LoadConfig loads configuration from a YAML file. A missing file is not an
// error; defaults and environment overrides still apply.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			defer file.Close()

			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	config.expandEnv()
	config.applyEnv()
	config.setDefaults()

	return config, nil
}

func (c *Config) expandEnv() {
	c.Model.RuntimeURL = os.ExpandEnv(c.Model.RuntimeURL)
	c.Database.Path = os.ExpandEnv(c.Database.Path)
	c.TLS.CertFile = os.ExpandEnv(c.TLS.CertFile)
	c.TLS.KeyFile = os.ExpandEnv(c.TLS.KeyFile)
	c.TLS.CertDir = os.ExpandEnv(c.TLS.CertDir)
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvHTTPOnly); ok {
		c.TLS.HTTPOnly = v == "1"
	}
	if v := os.Getenv(EnvCertFile); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv(EnvKeyFile); v != "" {
		c.TLS.KeyFile = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvModelURL); v != "" {
		c.Model.RuntimeURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.CORS == "" {
		c.Server.CORS = "full"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Model.RepoID == "" {
		c.Model.RepoID = DefaultModel
	}
	if c.Model.RuntimeURL == "" {
		c.Model.RuntimeURL = "http://localhost:8080"
	}
	if c.Model.LoadTimeout == 0 {
		c.Model.LoadTimeout = 30 * time.Second
	}
	if c.Model.RequestTimeout == 0 {
		c.Model.RequestTimeout = 30 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/reports.db"
	}

	if c.TLS.CertDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.TLS.CertDir = filepath.Join(home, ".finalextension")
		} else {
			c.TLS.CertDir = ".finalextension"
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}
