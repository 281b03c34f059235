// Package config loads service and client settings from an optional
// config.yaml and EXAM_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "EXAM"

type Service struct {
	HTTPAddr             string        `mapstructure:"HTTP_ADDR"`
	DBDriver             string        `mapstructure:"DB_DRIVER"`
	DBDSN                string        `mapstructure:"DB_DSN"`
	CatalogPath          string        `mapstructure:"CATALOG_PATH"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	AdminUser            string        `mapstructure:"ADMIN_USER"`
	AdminPassHash        string        `mapstructure:"ADMIN_PASS_HASH"`
	AllowDevLogin        bool          `mapstructure:"ALLOW_DEV_LOGIN"`
	MaxCompletedAttempts int           `mapstructure:"MAX_COMPLETED_ATTEMPTS"`
	StaleAfter           time.Duration `mapstructure:"STALE_AFTER"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	OpenTDBURL           string        `mapstructure:"OPENTDB_URL"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	LogFormat            string        `mapstructure:"LOG_FORMAT"`
}

type Client struct {
	ServerURL        string        `mapstructure:"SERVER_URL"`
	StudentID        string        `mapstructure:"STUDENT_ID"`
	StudentName      string        `mapstructure:"STUDENT_NAME"`
	Token            string        `mapstructure:"TOKEN"`
	RecoveryPath     string        `mapstructure:"RECOVERY_PATH"`
	SyncInterval     time.Duration `mapstructure:"SYNC_INTERVAL"`
	WarningThreshold int           `mapstructure:"WARNING_THRESHOLD"`
	HTTPTimeout      time.Duration `mapstructure:"HTTP_TIMEOUT"`
	StrictIntegrity  bool          `mapstructure:"STRICT_INTEGRITY"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFormat        string        `mapstructure:"LOG_FORMAT"`
}

const devJWTSecret = "dev-secret-change-me"

// LoadService reads service settings. Extra search paths are tried before
// the working directory.
func LoadService(paths ...string) (Service, error) {
	v := newViper(paths)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "exam.db")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "")
	v.SetDefault("ALLOW_DEV_LOGIN", true)
	v.SetDefault("MAX_COMPLETED_ATTEMPTS", 2)
	v.SetDefault("STALE_AFTER", "24h")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("OPENTDB_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	if err := readConfig(v); err != nil {
		return Service{}, err
	}

	var cfg Service
	if err := v.Unmarshal(&cfg); err != nil {
		return Service{}, fmt.Errorf("decode service config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	if cfg.JWTSecret == devJWTSecret {
		log.Warn().Msg("using the development JWT secret; set EXAM_JWT_SECRET")
	}
	return cfg, nil
}

func LoadClient(paths ...string) (Client, error) {
	v := newViper(paths)
	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.SetDefault("STUDENT_ID", "")
	v.SetDefault("STUDENT_NAME", "")
	v.SetDefault("TOKEN", "")
	v.SetDefault("RECOVERY_PATH", "exam-recovery.db")
	v.SetDefault("SYNC_INTERVAL", "10s")
	v.SetDefault("WARNING_THRESHOLD", 2)
	v.SetDefault("HTTP_TIMEOUT", "5s")
	v.SetDefault("STRICT_INTEGRITY", true)
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "console")

	if err := readConfig(v); err != nil {
		return Client{}, err
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return Client{}, fmt.Errorf("decode client config: %w", err)
	}
	return cfg, nil
}

func newViper(paths []string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config file loaded")
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("read config file: %w", err)
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
