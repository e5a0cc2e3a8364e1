// Package config loads service settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"log"
	"strings"
	"time"

	"payment-reconciliation-backend/internal/database"
	"payment-reconciliation-backend/internal/logging"
	"payment-reconciliation-backend/internal/services/ingest"
	"payment-reconciliation-backend/internal/services/matching"
	"payment-reconciliation-backend/internal/services/reconciliation"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. RECON_DB_DSN.
const EnvPrefix = "RECON"

type Config struct {
	Server         ServerConfig
	Database       database.Config
	Log            logging.Config
	Import         ingest.Config
	Matching       matching.Config
	Trust          reconciliation.TrustPolicy
	Currency       string
	NotifierOrigin string
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// Load reads .env (if present) and the environment. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", cfgFile)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from v, applying defaults and environment
// overrides.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	eps, err := decimal.NewFromString(v.GetString("matching.money_epsilon"))
	if err != nil {
		return nil, errors.Wrap(err, "matching.money_epsilon")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
		Database: database.Config{
			Driver: v.GetString("db.driver"),
			DSN:    v.GetString("db.dsn"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Import: ingest.Config{
			StaleAfter: v.GetDuration("import.stale_after"),
		},
		Matching: matching.Config{
			MoneyEpsilon:        eps,
			DateToleranceDays:   v.GetInt("matching.date_tolerance_days"),
			AmountNearPercent:   v.GetFloat64("matching.amount_near_percent"),
			TenantRefOffset:     v.GetInt("matching.tenant_ref_offset"),
			TenantRefWidth:      v.GetInt("matching.tenant_ref_width"),
			NameOverlapMin:      v.GetFloat64("matching.name_overlap_min"),
			NameTokenSimilarity: v.GetFloat64("matching.name_token_similarity"),
			MinPartialRefLen:    v.GetInt("matching.min_partial_ref_len"),
			SuggestionLimit:     v.GetInt("matching.suggestion_limit"),
		},
		Trust: reconciliation.TrustPolicy{
			OnTimeBonus:  v.GetInt("trust.on_time_bonus"),
			StreakLength: v.GetInt("trust.streak_length"),
			StreakBonus:  v.GetInt("trust.streak_bonus"),
			Min:          v.GetInt("trust.min"),
			Max:          v.GetInt("trust.max"),
		},
		Currency:       strings.ToUpper(v.GetString("currency")),
		NotifierOrigin: v.GetString("notifier.origin"),
	}
	return cfg, cfg.Validate()
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	m := matching.DefaultConfig()
	t := reconciliation.DefaultTrustPolicy()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=reconciliation port=5432 sslmode=disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("import.stale_after", ingest.DefaultConfig().StaleAfter)
	v.SetDefault("matching.money_epsilon", m.MoneyEpsilon.String())
	v.SetDefault("matching.date_tolerance_days", m.DateToleranceDays)
	v.SetDefault("matching.amount_near_percent", m.AmountNearPercent)
	v.SetDefault("matching.tenant_ref_offset", m.TenantRefOffset)
	v.SetDefault("matching.tenant_ref_width", m.TenantRefWidth)
	v.SetDefault("matching.name_overlap_min", m.NameOverlapMin)
	v.SetDefault("matching.name_token_similarity", m.NameTokenSimilarity)
	v.SetDefault("matching.min_partial_ref_len", m.MinPartialRefLen)
	v.SetDefault("matching.suggestion_limit", m.SuggestionLimit)
	v.SetDefault("trust.on_time_bonus", t.OnTimeBonus)
	v.SetDefault("trust.streak_length", t.StreakLength)
	v.SetDefault("trust.streak_bonus", t.StreakBonus)
	v.SetDefault("trust.min", t.Min)
	v.SetDefault("trust.max", t.Max)
	v.SetDefault("currency", "RSD")
	v.SetDefault("notifier.origin", "reconciliation")
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported db.driver %q", c.Database.Driver)
	}
	if err := c.Matching.Validate(); err != nil {
		return errors.Wrap(err, "matching")
	}
	if err := c.Trust.Validate(); err != nil {
		return errors.Wrap(err, "trust")
	}
	if c.Import.StaleAfter < time.Second {
		return errors.Errorf("import.stale_after must be at least 1s, got %s", c.Import.StaleAfter)
	}
	if len(c.Currency) != 3 {
		return errors.Errorf("currency must be an ISO code, got %q", c.Currency)
	}
	return nil
}
