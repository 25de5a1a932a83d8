// Package config loads server and CLI settings from defaults, an optional
// config file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/stevemurr/treestore/codec"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/store"
)

// Config is the full set of settings.
type Config struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	DataDir        string `mapstructure:"data_dir"`
	StoreBackend   string `mapstructure:"store_backend"`
	BlobBackend    string `mapstructure:"blob_backend"`
	Codec          string `mapstructure:"codec"`
	NullPolicy     string `mapstructure:"null_policy"`
	RedisAddr      string `mapstructure:"redis_addr"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
}

var defaults = map[string]string{
	"host":            "0.0.0.0",
	"port":            "8080",
	"data_dir":        "./data",
	"store_backend":   "json",
	"blob_backend":    "fs",
	"codec":           "json",
	"null_policy":     "absent",
	"redis_addr":      "localhost:6379",
	"allowed_origins": "*",
	"log_level":       "info",
	"log_format":      "text",
}

// envNames maps each key to the environment variable overriding it.
var envNames = map[string]string{
	"host":            "HOST",
	"port":            "PORT",
	"data_dir":        "DATA_DIR",
	"store_backend":   "STORE_BACKEND",
	"blob_backend":    "BLOB_BACKEND",
	"codec":           "STORE_CODEC",
	"null_policy":     "NULL_POLICY",
	"redis_addr":      "REDIS_ADDR",
	"allowed_origins": "ALLOWED_ORIGINS",
	"log_level":       "LOG_LEVEL",
	"log_format":      "LOG_FORMAT",
}

// Load reads the configuration. path names an optional YAML (or any format
// viper recognizes) file; "" skips it.
func Load(path string) (*Config, error) {
	vp := viper.New()
	for key, def := range defaults {
		vp.SetDefault(key, def)
	}
	for key, env := range envNames {
		if err := vp.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backend, codec, policy and logging names.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "json", "sqlite", "redis":
	default:
		return &storage.UnknownOptionError{Option: "store backend", Value: c.StoreBackend}
	}
	switch c.BlobBackend {
	case "memory", "fs", "sqlite", "redis":
	default:
		return &storage.UnknownOptionError{Option: "blob backend", Value: c.BlobBackend}
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	if _, err := storage.ParseNullPolicy(c.NullPolicy); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &storage.UnknownOptionError{Option: "log format", Value: c.LogFormat}
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Origins splits AllowedOrigins on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// StoreOptions converts c for store.NewDocumentStorage and
// store.NewBinaryStorage. c must have passed Validate.
func (c *Config) StoreOptions(log *logrus.Entry) store.Options {
	policy, _ := storage.ParseNullPolicy(c.NullPolicy)
	return store.Options{
		Backend:     c.StoreBackend,
		BlobBackend: c.BlobBackend,
		DataDir:     c.DataDir,
		RedisAddr:   c.RedisAddr,
		Codec:       c.Codec,
		NullPolicy:  policy,
		Logger:      log,
	}
}

// NewLogger builds a logrus logger at the configured level and format.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format: %q", c.LogFormat)
	}
	return log, nil
}
