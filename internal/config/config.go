package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DHConfig holds the application configuration
type DHConfig struct {
	Database struct {
		// Driver is either "postgres" or "sqlite". sqlite keeps single-node
		// deployments free of external services.
		Driver   string `mapstructure:"driver"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		Path     string `mapstructure:"path"` // sqlite only
	} `mapstructure:"database"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Tasks struct {
		MaxWorkers        int    `mapstructure:"max_workers"`
		LogDir            string `mapstructure:"log_dir"`
		CommandTimeoutSec int    `mapstructure:"command_timeout_sec"`
		GitTimeoutSec     int    `mapstructure:"git_timeout_sec"`
	} `mapstructure:"tasks"`

	Paths struct {
		StacksDir     string `mapstructure:"stacks_dir"`
		WorkspacesDir string `mapstructure:"workspaces_dir"`
		UploadsDir    string `mapstructure:"uploads_dir"`
		ExportsDir    string `mapstructure:"exports_dir"`
	} `mapstructure:"paths"`

	LogLevel string `mapstructure:"log_level"`
}

// ZerologLevel parses the configured level, falling back to info when the
// value is not a recognized level name
func (c *DHConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// LoadConfig reads the configuration from a file or environment variables
func LoadConfig(configPaths ...string) (*DHConfig, error) {
	// can specify config path from environment
	if path, exists := os.LookupEnv("DH_CONFIG_PATH"); exists {
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
		return nil, err
	}
	return config, nil
}

// newViper builds a viper instance with all defaults set
func newViper() *viper.Viper {
	v := viper.New()

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "dockhand")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "./data/dockhand.db")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Task engine defaults
	v.SetDefault("tasks.max_workers", 4)
	v.SetDefault("tasks.log_dir", "./data/task-logs")
	v.SetDefault("tasks.command_timeout_sec", 1200) // 20 minutes for builds/pulls
	v.SetDefault("tasks.git_timeout_sec", 300)      // 5 minutes for clone/sync

	// Workspace and file exchange paths
	v.SetDefault("paths.stacks_dir", "./data/stacks")
	v.SetDefault("paths.workspaces_dir", "./data/workspaces")
	v.SetDefault("paths.uploads_dir", "./data/uploads")
	v.SetDefault("paths.exports_dir", "./data/exports")

	// Log level default
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("DH")                               // Prefix for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env vars
	v.AutomaticEnv()                                   // Read environment variables

	return v
}

func readConfig(v *viper.Viper, path string) (*DHConfig, error) {
	var config DHConfig

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

// GetDatabaseURL returns a formatted database connection string
func (c *DHConfig) GetDatabaseURL() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
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
