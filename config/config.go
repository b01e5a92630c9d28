package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
	BackendFirebase = "firebase"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`

	StoreBackend string `mapstructure:"store_backend"`
	SQLitePath   string `mapstructure:"sqlite_path"`

	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	FirebaseCredentials  string        `mapstructure:"firebase_credentials"`
	FirebaseDatabaseURL  string        `mapstructure:"firebase_database_url"`
	FirebasePollInterval time.Duration `mapstructure:"firebase_poll_interval"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3001")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("store_backend", BackendMemory)
	v.SetDefault("sqlite_path", "./taskdash.db")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "taskdash")
	v.SetDefault("firebase_credentials", "")
	v.SetDefault("firebase_database_url", "")
	v.SetDefault("firebase_poll_interval", 2*time.Second)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", "")
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("smtp_from", "")
}

// Load reads configuration from defaults, an optional file and the
// environment, in increasing precedence. A missing file is not an error.
// Files ending in .env are read as dotenv, anything else by extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if filepath.Ext(path) == ".env" || filepath.Base(path) == ".env" {
				v.SetConfigType("env")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitOrigins accepts both a list and a single comma separated value.
func splitOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendMongo:
	case BackendFirebase:
		if c.FirebaseDatabaseURL == "" {
			return errors.New("firebase_database_url is required for the firebase backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.FirebasePollInterval <= 0 {
		return errors.New("firebase_poll_interval must be positive")
	}
	return nil
}

// SMTPConfigured reports whether magic links can be emailed.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != ""
}
