package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	API      APIConfig      `json:"api"`
	Realtime RealtimeConfig `json:"realtime"`
	Export   ExportConfig   `json:"export"`
	Email    EmailConfig    `json:"email"`
	S3       S3Config       `json:"s3"`
	Logging  LoggingConfig  `json:"logging"`
}

// APIConfig points at the reporting REST service
type APIConfig struct {
	BaseURL string `json:"base_url"`
}

// RealtimeConfig points at the realtime report service
type RealtimeConfig struct {
	URL string `json:"url"`
}

// ExportConfig controls where downloaded exports land
type ExportConfig struct {
	OutputDir string `json:"output_dir"`
}

// EmailConfig configures SMTP delivery
type EmailConfig struct {
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

// S3Config configures the optional S3 delivery channel
type S3Config struct {
	Region string `json:"region"`
	Bucket string `json:"bucket"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from an optional JSON file and environment
// variables. A .env file in the working directory is honored when present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		API:      APIConfig{BaseURL: "http://localhost:8080"},
		Realtime: RealtimeConfig{URL: "ws://localhost:8080/ws/reports"},
		Export:   ExportConfig{OutputDir: "exports"},
		Email:    EmailConfig{SMTPPort: 587, FromName: "Training Portal Reports"},
		Logging:  LoggingConfig{Level: "info"},
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)
	return config, nil
}

func overrideWithEnv(config *Config) {
	if v := os.Getenv("REPORT_API_BASE_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv("REPORT_REALTIME_URL"); v != "" {
		config.Realtime.URL = v
	}
	if v := os.Getenv("REPORT_EXPORT_DIR"); v != "" {
		config.Export.OutputDir = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		config.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Email.SMTPPort = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		config.Email.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		config.Email.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		config.Email.FromAddress = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		config.S3.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.S3.Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
