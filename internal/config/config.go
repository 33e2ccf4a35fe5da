package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// DefaultAgents is the roster used when AGENTS is unset.
var DefaultAgents = []string{
	"Fabiola Narváez",
	"Gianella Baux",
	"Jordy Cruz",
	"Miguel Gurumendi",
}

// Config holds runtime settings read from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string
	CORSOrigins      []string

	StorageBackend string
	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTLS       bool

	WhatsAppEnabled   bool
	WhatsAppStorePath string
	WhatsAppLogLevel  string
	WhatsAppEndpoint  string

	CompanyName         string
	Agents              []string
	DefaultSenderNumber string
	Timezone            string
	Location            *time.Location
	BatchCooldown       time.Duration
	BatchFinishDelay    time.Duration
}

// Load reads configuration from environment variables on top of defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("HTTP_LISTEN_ADDR", ":8080")
	v.SetDefault("METRICS_NAMESPACE", "cobranzas")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("STORAGE_BACKEND", "sqlite")
	v.SetDefault("DATABASE_SCHEMA", "public")
	v.SetDefault("SQLITE_PATH", "data/cobranzas.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("WHATSAPP_ENABLED", false)
	v.SetDefault("WHATSAPP_STORE_PATH", "data/whatsmeow.db")
	v.SetDefault("WHATSAPP_LOG_LEVEL", "WARN")
	v.SetDefault("WHATSAPP_ENDPOINT", "https://api.whatsapp.com/send")
	v.SetDefault("COMPANY_NAME", "Auto Club")
	v.SetDefault("DEFAULT_SENDER_NUMBER", "0963098362")
	v.SetDefault("TIMEZONE", "America/Guayaquil")
	v.SetDefault("BATCH_COOLDOWN", "60s")
	v.SetDefault("BATCH_FINISH_DELAY", "1s")

	cfg := &Config{
		AppEnv:              v.GetString("APP_ENV"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		HTTPListenAddr:      v.GetString("HTTP_LISTEN_ADDR"),
		PublicBasePath:      v.GetString("PUBLIC_BASE_PATH"),
		MetricsNamespace:    v.GetString("METRICS_NAMESPACE"),
		CORSOrigins:         splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		StorageBackend:      strings.ToLower(v.GetString("STORAGE_BACKEND")),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		DatabaseSchema:      v.GetString("DATABASE_SCHEMA"),
		SQLitePath:          v.GetString("SQLITE_PATH"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		RedisTLS:            v.GetBool("REDIS_TLS"),
		WhatsAppEnabled:     v.GetBool("WHATSAPP_ENABLED"),
		WhatsAppStorePath:   v.GetString("WHATSAPP_STORE_PATH"),
		WhatsAppLogLevel:    v.GetString("WHATSAPP_LOG_LEVEL"),
		WhatsAppEndpoint:    v.GetString("WHATSAPP_ENDPOINT"),
		CompanyName:         v.GetString("COMPANY_NAME"),
		Agents:              splitList(v.GetString("AGENTS")),
		DefaultSenderNumber: v.GetString("DEFAULT_SENDER_NUMBER"),
		Timezone:            v.GetString("TIMEZONE"),
		BatchCooldown:       v.GetDuration("BATCH_COOLDOWN"),
		BatchFinishDelay:    v.GetDuration("BATCH_FINISH_DELAY"),
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = append([]string(nil), DefaultAgents...)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "memory", "sqlite", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.BatchCooldown < time.Second {
		return fmt.Errorf("BATCH_COOLDOWN must be at least 1s, got %s", c.BatchCooldown)
	}
	return nil
}

// splitList splits a comma separated value, dropping blanks. Agent names
// contain spaces, so whitespace is not a separator.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
