package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// YTConfig holds the application configuration
type YTConfig struct {
	Database struct {
		Driver   string `mapstructure:"driver"` // postgres or sqlite
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		Path     string `mapstructure:"path"` // sqlite database file
	} `mapstructure:"database"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Storage struct {
		DatasetsDir string `mapstructure:"datasets_dir"`
		ModelsDir   string `mapstructure:"models_dir"`
		RunsDir     string `mapstructure:"runs_dir"`
		WeightsDir  string `mapstructure:"weights_dir"` // cache of base weights, e.g. yolo11n.pt
	} `mapstructure:"storage"`

	Trainer struct {
		Command        string `mapstructure:"command"` // python interpreter invocation
		WorkDir        string `mapstructure:"work_dir"`
		PersistRetries int    `mapstructure:"persist_retries"`
	} `mapstructure:"trainer"`

	Progress struct {
		Backend string `mapstructure:"backend"` // memory or redis
		Redis   struct {
			Host      string `mapstructure:"host"`
			Password  string `mapstructure:"password"`
			DB        int    `mapstructure:"db"`
			KeyPrefix string `mapstructure:"key_prefix"`
		} `mapstructure:"redis"`
	} `mapstructure:"progress"`

	Watchdog struct {
		Enabled  bool   `mapstructure:"enabled"`
		Schedule string `mapstructure:"schedule"`
	} `mapstructure:"watchdog"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// LoadConfig reads the configuration from a file or environment variables
func LoadConfig(configPaths ...string) (*YTConfig, error) {
	// can specify config path from environment
	if path, exists := os.LookupEnv("YT_CONFIG_PATH"); exists {
		configPaths = append(configPaths, path)
	}
	for _, path := range configPaths {
		fi, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		mode := fi.Mode()
		switch {
		case mode.IsRegular():
			v := newViper()
			v.SetConfigFile(path)
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil

		case mode.IsDir():
			v := newViper()
			v.AddConfigPath(path)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil
		}
	}

	v := newViper()
	// finally read from current working directory
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	cwd, _ := os.Getwd()

	config, err := readConfig(v, cwd)
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// no config file anywhere, run on defaults and environment variables
		var defaults YTConfig
		if err := v.Unmarshal(&defaults); err != nil {
			return nil, err
		}
		return &defaults, nil
	}
	return config, nil
}

// newViper creates a viper instance with all defaults and environment bindings set
func newViper() *viper.Viper {
	v := viper.New()

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "yolotrain")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/yolotrain.db")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)

	// Storage defaults
	v.SetDefault("storage.datasets_dir", "data/datasets")
	v.SetDefault("storage.models_dir", "data/models")
	v.SetDefault("storage.runs_dir", "data/runs")
	v.SetDefault("storage.weights_dir", "data/weights")

	// Trainer defaults
	v.SetDefault("trainer.command", "python3")
	v.SetDefault("trainer.work_dir", "")
	v.SetDefault("trainer.persist_retries", 1)

	// Progress store defaults
	v.SetDefault("progress.backend", "memory")
	v.SetDefault("progress.redis.host", "localhost:6379")
	v.SetDefault("progress.redis.password", "")
	v.SetDefault("progress.redis.db", 0)
	v.SetDefault("progress.redis.key_prefix", "yolotrain:progress")

	// Watchdog defaults
	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.schedule", "@every 5m")

	// Log defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetEnvPrefix("YT")                               // Prefix for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env vars
	v.AutomaticEnv()                                   // Read environment variables

	return v
}

func readConfig(v *viper.Viper, path string) (*YTConfig, error) {
	var config YTConfig

	if err := v.ReadInConfig(); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not read config file")
		return nil, err
	}
	if err := v.Unmarshal(&config); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not unmarshall config")
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns the data source name for the configured driver
func (c *YTConfig) GetDatabaseURL() string {
	if c.Database.Driver == "sqlite" {
		return fmt.Sprintf(
			"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
			c.Database.Path,
		)
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ServerAddr returns the host:port the API listens on
func (c *YTConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SetupLogging applies the configured level and output format to the global zerolog logger
func (c *YTConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
