package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/dsarena/go/internal/battle/judge"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Languages struct {
		Enabled []string                          `yaml:"enabled_languages"`
		Plugins map[string]map[string]interface{} `yaml:"plugins"`
	} `yaml:"languages"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer, using default")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
	}
	return defaultValue
}

func redisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// defaultConfig enables every compiled-in language with default settings.
func defaultConfig() *Config {
	var config Config
	config.Languages.Enabled = judge.Languages()
	return &config
}

func setupLanguages(config *Config) ([]string, error) {
	enabled := make([]string, 0, len(config.Languages.Enabled))
	for _, key := range config.Languages.Enabled {
		if err := judge.InitializeLanguage(key, config.Languages.Plugins[key]); err != nil {
			return nil, fmt.Errorf("failed to initialize language %s: %w", key, err)
		}
		log.Info().Str("language", key).Msg("language plugin initialized")
		enabled = append(enabled, key)
	}
	return enabled, nil
}
