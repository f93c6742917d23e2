// Package config provides configuration management for linkscan. Values are
// loaded from a YAML file, environment variables, and defaults via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultWorkerCount     = 4
	DefaultServerAddress   = ":8080"
	defaultShutdownTimeout = 15 * time.Second
)

// Config is the top-level application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Checker  CheckerConfig  `mapstructure:"checker"`
	PageTree PageTreeConfig `mapstructure:"pagetree"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Mail     MailConfig     `mapstructure:"mail"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection settings for the task queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ServerConfig holds admin API server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CheckerConfig holds link-check settings.
type CheckerConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	WorkerCount    int           `mapstructure:"worker_count"`
}

// PageTreeConfig holds content-store client settings.
type PageTreeConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIToken string        `mapstructure:"api_token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ScheduleConfig holds the automated scanning/cleanup schedule.
type ScheduleConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	CronSpec string   `mapstructure:"cron_spec"`
	SiteIDs  []string `mapstructure:"site_ids"`
}

// MailConfig holds the SMTP relay used for report mail.
type MailConfig struct {
	Addr     string `mapstructure:"addr"` // host:port
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load reads the configuration from viper into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers production-safe defaults with viper. Called by the
// root command before reading the config file.
func SetDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "linkscan",
		"environment": "production",
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":       "info",
		"encoding":    "json",
		"development": false,
	})

	viper.SetDefault("database", map[string]any{
		"host":    "127.0.0.1",
		"port":    "5432",
		"user":    "linkscan",
		"dbname":  "linkscan",
		"sslmode": "disable",
	})

	viper.SetDefault("redis", map[string]any{
		"addr":   "127.0.0.1:6379",
		"db":     0,
		"prefix": "linkscan",
	})

	viper.SetDefault("server", map[string]any{
		"address":          DefaultServerAddress,
		"read_timeout":     "15s",
		"write_timeout":    "15s",
		"shutdown_timeout": defaultShutdownTimeout.String(),
	})

	viper.SetDefault("checker", map[string]any{
		"user_agent":      "linkscan/1.0",
		"request_timeout": DefaultRequestTimeout.String(),
		"worker_count":    DefaultWorkerCount,
	})

	viper.SetDefault("pagetree", map[string]any{
		"base_url":  "http://127.0.0.1:8000",
		"api_token": "",
		"timeout":   "30s",
	})

	viper.SetDefault("schedule", map[string]any{
		"enabled":   false,
		"cron_spec": "0 3 * * *",
	})

	viper.SetDefault("mail", map[string]any{
		"addr": "127.0.0.1:25",
	})
}
