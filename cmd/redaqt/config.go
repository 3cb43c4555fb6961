package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	pdo "github.com/redaqt/pdo-go"
	"github.com/redaqt/pdo-go/internal/logging"
)

// envPrefix prefixes every environment override, e.g. REDAQT_ACCOUNT_API_KEY.
const envPrefix = "REDAQT"

// Config is the CLI configuration file layout.
type Config struct {
	Account  AccountConfig  `mapstructure:"account"`
	Service  ServiceConfig  `mapstructure:"service"`
	Settings SettingsConfig `mapstructure:"settings"`
	Issuer   IssuerConfig   `mapstructure:"issuer"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	TempDir  string         `mapstructure:"temp_dir"`
}

type AccountConfig struct {
	APIKey          string `mapstructure:"api_key"`
	GrantToken      string `mapstructure:"grant_token"`
	GrantExpiration string `mapstructure:"grant_expiration"`
	Alias           string `mapstructure:"alias"`
	Email           string `mapstructure:"email"`
}

type ServiceConfig struct {
	EncryptURL      string        `mapstructure:"encrypt_url"`
	DecryptURL      string        `mapstructure:"decrypt_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequireChecksum bool          `mapstructure:"require_checksum"`
	SealedKeys      bool          `mapstructure:"sealed_keys"`
	// PinnedServerKey is the service's ML-DSA-65 public key, std base64.
	PinnedServerKey string `mapstructure:"pinned_server_key"`
}

type SettingsConfig struct {
	DefaultPolicy      string        `mapstructure:"default_policy"`
	CertificateImage   string        `mapstructure:"certificate_image"`
	DefaultImage       string        `mapstructure:"default_image"`
	RequestCertificate bool          `mapstructure:"request_certificate"`
	Receipt            ReceiptConfig `mapstructure:"receipt"`
}

type ReceiptConfig struct {
	OnRequest  bool   `mapstructure:"on_request"`
	OnDelivery bool   `mapstructure:"on_delivery"`
	Resource   string `mapstructure:"resource"`
}

// IssuerConfig enables local certificate issuance when Name is set.
type IssuerConfig struct {
	Name         string        `mapstructure:"name"`
	Organization string        `mapstructure:"organization"`
	Email        string        `mapstructure:"email"`
	URI          string        `mapstructure:"uri"`
	Validity     time.Duration `mapstructure:"validity"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig writes the run's counters in the node exporter textfile
// format when File is set.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account.api_key", "")
	v.SetDefault("account.grant_token", "")
	v.SetDefault("account.grant_expiration", "")
	v.SetDefault("account.alias", "")
	v.SetDefault("account.email", "")

	v.SetDefault("service.encrypt_url", "")
	v.SetDefault("service.decrypt_url", "")
	v.SetDefault("service.timeout", 5*time.Second)
	v.SetDefault("service.require_checksum", false)
	v.SetDefault("service.sealed_keys", false)
	v.SetDefault("service.pinned_server_key", "")

	v.SetDefault("settings.default_policy", string(pdo.NoPolicy))
	v.SetDefault("settings.certificate_image", "")
	v.SetDefault("settings.default_image", "")
	v.SetDefault("settings.request_certificate", false)
	v.SetDefault("settings.receipt.on_request", false)
	v.SetDefault("settings.receipt.on_delivery", false)
	v.SetDefault("settings.receipt.resource", "")

	v.SetDefault("issuer.name", "")
	v.SetDefault("issuer.organization", "")
	v.SetDefault("issuer.email", "")
	v.SetDefault("issuer.uri", "")
	v.SetDefault("issuer.validity", 365*24*time.Hour)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logging.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logging.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logging.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.file", "")
	v.SetDefault("temp_dir", "")
}

// globalFlags registers the flags shared by every command.
func globalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default redaqt.yaml in . or $HOME/.config/redaqt)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: console or json")
	fs.String("metrics-file", "", "write metrics to this file on exit")
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-file": "metrics.file",
	"policy":       "settings.default_policy",
	"image":        "settings.certificate_image",
	"certificate":  "settings.request_certificate",
	"on-request":   "settings.receipt.on_request",
	"on-delivery":  "settings.receipt.on_delivery",
	"receipt":      "settings.receipt.resource",
}

// loadConfig reads .env, the config file, REDAQT_* variables and the
// flags set on fs, in increasing order of precedence.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("redaqt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "redaqt"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) account() pdo.Account {
	return pdo.Account{
		APIKey:          c.Account.APIKey,
		GrantToken:      c.Account.GrantToken,
		GrantExpiration: c.Account.GrantExpiration,
		Alias:           c.Account.Alias,
		Email:           c.Account.Email,
	}
}

func (c *Config) engineConfig() pdo.Config {
	return pdo.Config{
		Product: pdo.DefaultProduct,
		Crypto:  pdo.DefaultCrypto,
		Settings: pdo.Settings{
			DefaultPolicy:      pdo.Protocol(c.Settings.DefaultPolicy),
			CertificateImage:   c.Settings.CertificateImage,
			DefaultImage:       c.Settings.DefaultImage,
			RequestCertificate: c.Settings.RequestCertificate,
			Receipt: pdo.ReceiptSettings{
				Timing: pdo.ReceiptTiming{
					OnRequest:  c.Settings.Receipt.OnRequest,
					OnDelivery: c.Settings.Receipt.OnDelivery,
				},
				Resource: pdo.ReceiptResource(c.Settings.Receipt.Resource),
			},
		},
		EncryptURL: c.Service.EncryptURL,
		DecryptURL: c.Service.DecryptURL,
	}
}

// engineOptions translates the service, issuer and temp settings.
func (c *Config) engineOptions() ([]pdo.Option, error) {
	opts := []pdo.Option{
		pdo.WithTimeout(c.Service.Timeout),
		pdo.WithChecksum(c.Service.RequireChecksum),
	}
	if c.Service.SealedKeys {
		opts = append(opts, pdo.WithSealedKeys())
	}
	if c.Service.PinnedServerKey != "" {
		pk, err := base64.StdEncoding.DecodeString(c.Service.PinnedServerKey)
		if err != nil {
			return nil, fmt.Errorf("service.pinned_server_key: %w", err)
		}
		opts = append(opts, pdo.WithPinnedServerKey(pk))
	}
	if c.Issuer.Name != "" {
		opts = append(opts, pdo.WithCertificateIssuer(pdo.CertificateIssuer{
			Name:         c.Issuer.Name,
			Organization: c.Issuer.Organization,
			Email:        c.Issuer.Email,
			URI:          c.Issuer.URI,
			Validity:     c.Issuer.Validity,
		}))
	}
	if c.TempDir != "" {
		opts = append(opts, pdo.WithTempDir(c.TempDir))
	}
	return opts, nil
}

func (c *Config) logConfig() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
