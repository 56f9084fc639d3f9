package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "assetsync"
	envPrefix      = "ASSETSYNC"
)

var home, _ = os.UserHomeDir()

// flagKeys maps command line flags to config keys. Only flags registered on
// the running command are bound.
var flagKeys = map[string]string{
	"verbose":    "verbose",
	"log-file":   "log_file",
	"root":       "root",
	"folder":     "folders",
	"exclude":    "exclude",
	"lock":       "lock_path",
	"dry-run":    "dry_run",
	"endpoint":   "store.endpoint",
	"bucket":     "store.bucket",
	"region":     "store.region",
	"access-key": "store.access_key",
	"path-style": "store.use_path_style",
	"max-width":  "compress.max_width",
	"quality":    "compress.quality",
}

// loadConfig merges, in decreasing priority, flags, ASSETSYNC_* env vars
// (a .env file in the working directory included), the config file and the
// defaults. Nothing is validated here.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", "assetsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	cfg.ApplyDefaults()
	return cfg, nil
}

// setDefaults registers every key, AutomaticEnv only reaches keys viper knows.
func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("folders", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("lock_path", config.DefaultLockPath)
	v.SetDefault("lock_stale_after", config.DefaultLockStaleAfter)
	v.SetDefault("cache_control", config.DefaultCacheControl)
	v.SetDefault("dry_run", false)
	v.SetDefault("log_file", "")
	v.SetDefault("verbose", false)
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.region", config.DefaultRegion)
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.access_key", "")
	v.SetDefault("store.secret_key", "")
	v.SetDefault("store.use_path_style", false)
	v.SetDefault("sync.max_width", config.DefaultSyncMaxWidth)
	v.SetDefault("sync.quality", config.DefaultSyncQuality)
	v.SetDefault("compress.max_width", config.DefaultCompressMaxWidth)
	v.SetDefault("compress.quality", config.DefaultCompressQuality)
}

func setupLogging(cmd *cobra.Command, cfg *config.Config) (func() error, error) {
	closer, err := logging.Setup(logging.Options{
		Console:  cmd.OutOrStdout(),
		FilePath: cfg.LogFile,
		Verbose:  cfg.Verbose,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		slog.Debug("config loaded", "path", cfg.Path)
	}
	return closer, nil
}
