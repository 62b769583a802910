// Package ecoguardian - config.go
// Host configuration: .env / environment variables for credentials and
// endpoints, an optional YAML file for tuning weights and thresholds.

package ecoguardian

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is everything a host needs to assemble an orchestration instance.
type Config struct {
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"-"`
	Model         string `yaml:"model"`
	WeatherAPIKey string `yaml:"-"`

	// ArchivePath enables the SQLite archive when set.
	ArchivePath string `yaml:"archive_path"`
	// PostgresURI enables the Postgres archive when set (takes precedence).
	PostgresURI string `yaml:"-"`

	BankCapacity int               `yaml:"bank_capacity"`
	Coordinator  CoordinatorConfig `yaml:"coordinator"`
	Evaluator    EvaluatorConfig   `yaml:"evaluator"`
}

// LoadConfig reads .env (when present), then the environment, then an
// optional YAML overlay for the tuning sections.
func LoadConfig(yamlPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, falling back to environment variables")
	}

	cfg := &Config{
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		Model:         getEnv("ECOGUARDIAN_MODEL", "gpt-4o-mini"),
		WeatherAPIKey: getEnv("WEATHER_API_KEY", ""),
		ArchivePath:   getEnv("ECOGUARDIAN_ARCHIVE", ""),
		PostgresURI:   getEnv("ECOGUARDIAN_POSTGRES_URI", ""),
		BankCapacity:  getEnvInt("ECOGUARDIAN_BANK_CAPACITY", 10000),
		Coordinator:   DefaultCoordinatorConfig(),
		Evaluator:     DefaultEvaluatorConfig(),
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}
	cfg.Coordinator = cfg.Coordinator.normalized()
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}
