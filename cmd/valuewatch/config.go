package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/scrape"
)

const (
	defaultRefreshPeriod    = model.DefaultRefreshPeriod
	defaultFrameInterval    = model.DefaultFrameInterval
	defaultFetcher          = model.DefaultFetcher
	defaultFetchTimeout     = model.DefaultFetchTimeout
	defaultHistoryRetention = model.DefaultHistoryRetention
	defaultBindHost         = "127.0.0.1"
	defaultAPIPort          = 3100
	defaultQueryTimeout     = 30 * time.Second
	defaultBackupInterval   = 24 * time.Hour
	defaultBackupKeep       = 7
)

// appConfig is internal runtime configuration.
type appConfig struct {
	RefreshPeriod    time.Duration `mapstructure:"refresh-period"`
	FrameInterval    time.Duration `mapstructure:"frame-interval"`
	Fetcher          string        `mapstructure:"fetcher"`
	FetchTimeout     time.Duration `mapstructure:"fetch-timeout"`
	BrowserURL       string        `mapstructure:"browser-url"`
	BrowserHeadful   bool          `mapstructure:"browser-headful"`
	DBPath           string        `mapstructure:"db-path"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	HistoryRetention int           `mapstructure:"history-retention"`
	Notifications    bool          `mapstructure:"notifications"`
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	Import           string        `mapstructure:"import"`
	BackupEnabled    bool          `mapstructure:"backup-enabled"`
	BackupInterval   time.Duration `mapstructure:"backup-interval"`
	BackupDir        string        `mapstructure:"backup-dir"`
	BackupKeep       int           `mapstructure:"backup-keep"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "valuewatch")
	defaultDBPath := filepath.Join(dataDir, "valuewatch.duckdb")

	v := viper.New()
	v.SetEnvPrefix("VALUEWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("refresh-period", defaultRefreshPeriod)
	v.SetDefault("frame-interval", defaultFrameInterval)
	v.SetDefault("fetcher", defaultFetcher)
	v.SetDefault("fetch-timeout", defaultFetchTimeout)
	v.SetDefault("browser-url", "")
	v.SetDefault("browser-headful", false)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("history-retention", defaultHistoryRetention)
	v.SetDefault("notifications", true)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("import", "")
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep", defaultBackupKeep)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "valuewatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in paths
	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.Import = expandHome(home, cfg.Import)
	cfg.BackupDir = expandHome(home, cfg.BackupDir)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (c appConfig) validate() error {
	if c.RefreshPeriod <= 0 {
		return fmt.Errorf("invalid refresh-period: %s", c.RefreshPeriod)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("invalid frame-interval: %s", c.FrameInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch-timeout: %s", c.FetchTimeout)
	}
	switch strings.ToLower(c.Fetcher) {
	case scrape.KindBrowser, scrape.KindHTTP:
	default:
		return fmt.Errorf("invalid fetcher: %q", c.Fetcher)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("invalid history-retention: %d", c.HistoryRetention)
	}
	if c.BackupEnabled && c.BackupInterval <= 0 {
		return fmt.Errorf("invalid backup-interval: %s", c.BackupInterval)
	}
	if c.BackupKeep < 0 {
		return fmt.Errorf("invalid backup-keep: %d", c.BackupKeep)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	return nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
