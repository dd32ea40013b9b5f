package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/gasdesk/agent-server/internal/agent/model"
	pkgredis "github.com/gasdesk/agent-server/pkg/redis"
	pkgsqlite "github.com/gasdesk/agent-server/pkg/sqlite"
)

// AppConfig defines every configurable parameter of the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Storage model.StorageConfig
	Redis   pkgredis.Config
	SQLite  pkgsqlite.Config
	HTTP    model.HTTPConfig

	// LLM provider; checked when the models are built so naturalgas-server runs without it
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Decision model.DecisionModelConfig
	Response model.ResponseModelConfig
	Loop     model.LoopConfig
	Memory   model.MemoryConfig
	Tools    model.ToolsConfig
}

func loadConfig(envFile string) (AppConfig, error) {
	if err := godotenv.Load(envFile); err != nil {
		log().Debug().Err(err).Str("file", envFile).Msg("no env file loaded, using process environment")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}
