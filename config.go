package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from an optional config file or environment
// variables; the environment always wins.
type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	DatabaseURL string `mapstructure:"DB_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	BaseURL     string `mapstructure:"BASE_URL"`
	SMTPHost    string `mapstructure:"SMTP_HOST"`
	SMTPPort    string `mapstructure:"SMTP_PORT"`
	EmailUser   string `mapstructure:"EMAIL_USER"`
	EmailPass   string `mapstructure:"EMAIL_PASS"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("HTTP_ADDR", ":3000")
	viper.SetDefault("DB_URL", "sqlite://db.sqlite3")
	viper.SetDefault("BASE_URL", "http://localhost:3000")
	viper.SetDefault("SMTP_HOST", "smtp.gmail.com")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("LOG_LEVEL", "info")
	// register the secret keys so Unmarshal picks them up from the env
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("EMAIL_USER", "")
	viper.SetDefault("EMAIL_PASS", "")

	if err = viper.ReadInConfig(); err != nil {
		// env vars alone are fine; only a malformed file is fatal
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is not set")
	}

	return config, nil
}
