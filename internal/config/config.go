// Package config loads process configuration from an optional config file
// (.env or yaml) with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chainline/chainline/internal/mqs"
	"github.com/chainline/chainline/internal/redis"
)

func getConfigLocations() []string {
	return []string{
		".env",
		".chainline.yaml",
		"config/chainline.yaml",
		"/config/chainline.yaml",
		"/config/chainline/.env",
	}
}

type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Infrastructure
	Redis     *redis.Config    `yaml:"redis"`
	TaskQueue *mqs.QueueConfig `yaml:"task_queue"`

	// Consumer
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	// External call retry
	RetryMaxAttempts int `yaml:"retry_max_attempts" env:"RETRY_MAX_ATTEMPTS"`

	// Poll loop
	PollBudgetSeconds int `yaml:"poll_budget_seconds" env:"POLL_BUDGET_SECONDS"`

	// Warehouse
	ProjectID string `yaml:"project_id" env:"PROJECT_ID"`

	// Sink
	SinkEndpointURL string `yaml:"sink_endpoint_url" env:"SINK_ENDPOINT_URL"`
	SinkUserAgent   string `yaml:"sink_user_agent" env:"SINK_USER_AGENT"`

	// Job log batcher
	LogBatcherDelayThresholdSeconds int `yaml:"log_batcher_delay_threshold_seconds" env:"LOG_BATCH_THRESHOLD_SECONDS"`
	LogBatcherItemCountThreshold    int `yaml:"log_batcher_item_count_threshold" env:"LOG_BATCH_SIZE"`
}

func (c *Config) initDefaults() {
	c.LogLevel = "info"
	c.Redis = &redis.Config{
		Host: "127.0.0.1",
		Port: 6379,
	}
	c.TaskQueue = &mqs.QueueConfig{}
	c.Concurrency = 1
	c.RetryMaxAttempts = 5
	c.PollBudgetSeconds = 30
	c.SinkEndpointURL = "https://www.google-analytics.com/batch"
	c.SinkUserAgent = "chainline / 0.1"
	c.LogBatcherDelayThresholdSeconds = 10
	c.LogBatcherItemCountThreshold = 1000
}

func (c *Config) parseConfigFile(configPath string) error {
	if envPath := os.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}
	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := os.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}
	if configPath == "" {
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.Read(configPath)
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{Environment: envMap}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing yaml config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if err := c.TaskQueue.Validate(); err != nil {
		return err
	}
	return nil
}

// Parse builds the effective configuration: defaults, then the config file,
// then environment variables, highest priority last.
func Parse(configPath string) (*Config, error) {
	var config Config
	config.initDefaults()

	if err := config.parseConfigFile(configPath); err != nil {
		return nil, err
	}
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("error parsing environment variables: %w", err)
	}
	config.TaskQueue.ParseEnv()
	if config.TaskQueue.RabbitMQ == nil && config.TaskQueue.InMemory == nil {
		config.TaskQueue.InMemory = &mqs.InMemoryConfig{}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
