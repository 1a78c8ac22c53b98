package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultPort         = 10080
	defaultAdminPort    = 10081
	defaultLogDir       = "./logs"
	defaultCacheDir     = "./cache"
	defaultManifest     = "./configs/manifest.yaml"
	defaultStorage      = "sqlite"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultNamespace    = "offlineproxy"
	defaultSaveInterval = time.Minute
)

type config struct {
	port                int
	adminPort           int
	logDir              string
	cacheDir            string
	manifestPath        string
	storage             string
	redisURL            string
	redisNamespace      string
	upstream            *url.URL
	fetchTimeout        time.Duration
	metricsSaveInterval time.Duration
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default offlineproxy.yaml in the config dirs)")
	flags.Int("port", defaultPort, "gateway port")
	flags.Int("admin-port", defaultAdminPort, "admin (metrics/caches) port")
	flags.String("log-dir", defaultLogDir, "log directory")
	flags.String("cache-dir", defaultCacheDir, "directory of the sqlite cache database")
	flags.String("manifest", defaultManifest, "worker manifest file")
	flags.String("storage", defaultStorage, "cache storage backend (sqlite, memory, redis)")
	flags.String("redis-url", defaultRedisURL, "redis URL for the redis backend")
	flags.String("redis-namespace", defaultNamespace, "key namespace for the redis backend")
	flags.String("upstream", "", "fetch same-origin requests from this origin instead of the scope origin")
	flags.Duration("fetch-timeout", 0, "origin fetch timeout (0 disables)")
	flags.Duration("metrics-save-interval", defaultSaveInterval, "metrics save interval")

	for _, name := range []string{
		"port", "admin-port", "log-dir", "cache-dir", "manifest", "storage",
		"redis-url", "redis-namespace", "upstream", "fetch-timeout", "metrics-save-interval",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// loadConfig は設定ファイル, 環境変数, フラグの順で設定を読み込む
func loadConfig() (*config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		scope := gap.NewScope(gap.User, "offlineproxy")
		dirs, err := scope.ConfigDirs()
		if err == nil {
			for _, dir := range dirs {
				viper.AddConfigPath(dir)
			}
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("offlineproxy")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("offlineproxy")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("could not parse configuration file: %w", err)
		}
	}

	cfg := &config{
		port:                viper.GetInt("port"),
		adminPort:           viper.GetInt("admin-port"),
		logDir:              viper.GetString("log-dir"),
		cacheDir:            viper.GetString("cache-dir"),
		manifestPath:        viper.GetString("manifest"),
		storage:             viper.GetString("storage"),
		redisURL:            viper.GetString("redis-url"),
		redisNamespace:      viper.GetString("redis-namespace"),
		fetchTimeout:        viper.GetDuration("fetch-timeout"),
		metricsSaveInterval: viper.GetDuration("metrics-save-interval"),
	}

	if raw := viper.GetString("upstream"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid upstream %q", raw)
		}
		cfg.upstream = u
	}

	switch cfg.storage {
	case "sqlite", "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.storage)
	}

	return cfg, nil
}

// prepareDirectories は必要なディレクトリを作成
func prepareDirectories(cfg *config) error {
	dirs := []string{
		cfg.logDir,
		filepath.Dir(cfg.manifestPath),
	}
	if cfg.storage == "sqlite" {
		dirs = append(dirs, cfg.cacheDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
