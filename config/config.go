package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultMaxUsers  = 4
	defaultSweepCron = "@every 5m"
)

// Config is the global configuration object which is filled via the
// configuration file and/or QRELAY_* environment variables.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// DefaultMaxUsers is the room capacity applied when a create request does
	// not specify one (or specifies a non-positive one).
	DefaultMaxUsers int `mapstructure:"default_max_users"`

	// RequireAdminForPlugins enables the admin-membership check on plugin_set.
	RequireAdminForPlugins bool `mapstructure:"require_admin_for_plugins"`

	// RequireHTTPAuth enables bearer-secret authentication on the HTTP API.
	RequireHTTPAuth bool `mapstructure:"require_http_auth"`

	// RoomTTLMinutes > 0 enables the sweeper: rooms that stay empty longer
	// than the TTL are removed. 0 keeps every room for the process lifetime.
	RoomTTLMinutes int    `mapstructure:"room_ttl_minutes"`
	SweepCron      string `mapstructure:"sweep_cron"`

	// Plugins extends the built-in plugin catalog.
	Plugins []PluginEntry `mapstructure:"plugin"`
}

// PluginEntry is one additional catalog entry declared as a [[plugin]] block.
type PluginEntry struct {
	Id          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`
	Url         string `mapstructure:"url"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.Int("default-max-users", defaultMaxUsers, "room capacity when a create request does not set one")
	flagSet.Bool("require-admin-for-plugins", false, "restrict plugin_set to room admins")
	flagSet.Bool("require-http-auth", false, "require a bearer secret on the HTTP API")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("default_max_users", defaultMaxUsers)
	viper.SetDefault("sweep_cron", defaultSweepCron)
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("QRELAY")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	if cfg.DefaultMaxUsers <= 0 {
		cfg.DefaultMaxUsers = defaultMaxUsers
	}

	globals.AppLogger.Info("config", "cfg", cfg)
	return &cfg, nil
}
