package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix               = "DISCOGRAPH"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDSN      = "discograph.db"
	defaultLogLevel         = "info"
	defaultCookieName       = "discograph_session"
	defaultSessionIssuer    = "discograph"
	defaultLoginPath        = "/login"
	defaultPageSize         = 25
	defaultFormatTTLSeconds = 600
	defaultExportOutputDir  = "/tmp/dumps"
	defaultExportTmpDir     = "/tmp"
	defaultTarBinary        = "tar"
	defaultGPGBinary        = "gpg"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabaseDSN          string
	LogLevel             string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	SessionLoginPath     string
	PageSize             int
	FormatCacheTTL       time.Duration
}

// ExportConfig captures the settings of the export job that do not come from its flags.
type ExportConfig struct {
	DatabaseDSN         string
	LogLevel            string
	OutputDir           string
	TmpDir              string
	GPGSignKey          string
	GPGEncryptKey       string
	ReplicationCallback string
	TarBinary           string
	GPGBinary           string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.login_path", defaultLoginPath)
	configViper.SetDefault("pagination.page_size", defaultPageSize)
	configViper.SetDefault("cache.format_ttl_seconds", defaultFormatTTLSeconds)

	configViper.SetDefault("export.output_dir", defaultExportOutputDir)
	configViper.SetDefault("export.tmp_dir", defaultExportTmpDir)
	configViper.SetDefault("export.gpg_sign_key", "")
	configViper.SetDefault("export.gpg_encrypt_key", "")
	configViper.SetDefault("export.replication_callback", "")
	configViper.SetDefault("export.tar_binary", defaultTarBinary)
	configViper.SetDefault("export.gpg_binary", defaultGPGBinary)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored; variables already set keep their values.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       configViper.GetStringSlice("http.allowed_origins"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionLoginPath:     configViper.GetString("session.login_path"),
		PageSize:             configViper.GetInt("pagination.page_size"),
		FormatCacheTTL:       time.Duration(configViper.GetInt("cache.format_ttl_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if !strings.HasPrefix(c.SessionLoginPath, "/") {
		return fmt.Errorf("session.login_path must be an absolute path")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("pagination.page_size must be positive")
	}
	return nil
}

// LoadExport parses export job configuration from viper.
func LoadExport(configViper *viper.Viper) (ExportConfig, error) {
	cfg := ExportConfig{
		DatabaseDSN:         configViper.GetString("database.dsn"),
		LogLevel:            configViper.GetString("log.level"),
		OutputDir:           configViper.GetString("export.output_dir"),
		TmpDir:              configViper.GetString("export.tmp_dir"),
		GPGSignKey:          configViper.GetString("export.gpg_sign_key"),
		GPGEncryptKey:       configViper.GetString("export.gpg_encrypt_key"),
		ReplicationCallback: configViper.GetString("export.replication_callback"),
		TarBinary:           configViper.GetString("export.tar_binary"),
		GPGBinary:           configViper.GetString("export.gpg_binary"),
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return ExportConfig{}, fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return ExportConfig{}, fmt.Errorf("export.output_dir is required")
	}
	return cfg, nil
}
