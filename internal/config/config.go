package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	AWS       AWSConfig       `yaml:"aws"`
	Backup    BackupConfig    `yaml:"backup"`
	JWT       JWTConfig       `yaml:"jwt"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	APNs      APNsConfig      `yaml:"apns"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// StorageConfig selects the document store backend: file, memory, postgres or sqlite.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the JSON file for the file driver and the database file for sqlite.
	Path string `yaml:"path"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Endpoint points the client at an S3-compatible provider.
	Endpoint string `yaml:"endpoint"`
	// PublicBaseURL is prepended to object keys to build public URLs.
	PublicBaseURL string `yaml:"public_base_url"`
}

// BackupConfig controls the periodic document snapshot to S3.
type BackupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
}

// JWTConfig holds the key for chat stream tickets
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	TicketTTL time.Duration `yaml:"ticket_ttl"`
}

// SessionConfig holds bearer session settings
type SessionConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// Limit is a request budget per window.
type Limit struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// RateLimitConfig holds the write throttling tiers
type RateLimitConfig struct {
	IPWrite       Limit         `yaml:"ip_write"`
	UserWrite     Limit         `yaml:"user_write"`
	CreateEvent   Limit         `yaml:"create_event"`
	CreatePost    Limit         `yaml:"create_post"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// APNsConfig holds push notification credentials. Pushes are disabled
// while KeyPath is empty.
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// AuthConfig holds password hashing settings
type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 3000},
		Storage: StorageConfig{Driver: "file", Path: "data.json"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "meetmap",
			SSLMode: "disable",
		},
		AWS:     AWSConfig{Region: "us-east-1"},
		Backup:  BackupConfig{Interval: 24 * time.Hour, Keep: 3},
		JWT:     JWTConfig{TicketTTL: time.Minute},
		Session: SessionConfig{InactivityTimeout: 24 * time.Hour, SweepInterval: 6 * time.Hour},
		RateLimit: RateLimitConfig{
			IPWrite:       Limit{Max: 100, Window: time.Minute},
			UserWrite:     Limit{Max: 200, Window: time.Minute},
			CreateEvent:   Limit{Max: 10, Window: time.Hour},
			CreatePost:    Limit{Max: 2, Window: time.Hour},
			SweepInterval: 5 * time.Minute,
		},
		Auth: AuthConfig{BcryptCost: 10},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file on top of the defaults. A
// missing file is not an error. Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects settings the background jobs cannot run with.
func (c *Config) validate() error {
	intervals := map[string]time.Duration{
		"session.sweep_interval":    c.Session.SweepInterval,
		"rate_limit.sweep_interval": c.RateLimit.SweepInterval,
		"backup.interval":           c.Backup.Interval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Session.InactivityTimeout <= 0 {
		return fmt.Errorf("session.inactivity_timeout must be positive, got %s", c.Session.InactivityTimeout)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.AWS.S3Bucket = v
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
