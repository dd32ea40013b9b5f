package model

import "time"

// ================ Config ================
type LoopConfig struct {
	MaxIterations        int           `envconfig:"MAX_ITERATIONS" default:"10"`
	ToolTimeout          time.Duration `envconfig:"TOOL_TIMEOUT" default:"20s"`
	DecisionHistoryTurns int           `envconfig:"DECISION_HISTORY_TURNS" default:"5"`
	FinalizeHistoryTurns int           `envconfig:"FINALIZE_HISTORY_TURNS" default:"10"`
}

type MemoryConfig struct {
	Mode        string        `envconfig:"MEMORY_MODE" default:"simple"`
	SimpleTurns int           `envconfig:"MEMORY_SIMPLE_TURNS" default:"20"`
	HybridTurns int           `envconfig:"MEMORY_HYBRID_TURNS" default:"6"`
	PIIMode     string        `envconfig:"MEMORY_PII_MODE" default:"placeholder"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"0s"`
}

type StorageConfig struct {
	Backend string `envconfig:"STORAGE_BACKEND" default:"file"`
	DataDir string `envconfig:"DATA_DIR" default:"data"`
}

type DecisionModelConfig struct {
	Model       string  `envconfig:"DECISION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"DECISION_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"DECISION_TEMPERATURE" default:"0.1"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ToolsConfig struct {
	EntsogBaseURL     string  `envconfig:"ENTSOG_BASE_URL" default:"https://transparency.entsog.eu/api/v1"`
	EntsogRPS         float64 `envconfig:"ENTSOG_RPS" default:"2"`
	RegulationCorpus  string  `envconfig:"REGULATION_CORPUS" default:"data/regulation.txt"`
	RegulationTitle   string  `envconfig:"REGULATION_TITLE" default:"2008. évi XL. törvény a földgázellátásról"`
	NaturalGasCommand string  `envconfig:"NATURALGAS_COMMAND"`
	NaturalGasArgs    string  `envconfig:"NATURALGAS_ARGS" default:"naturalgas-server"`
	EIAAPIKey         string  `envconfig:"EIA_API_KEY"`
	EIABaseURL        string  `envconfig:"EIA_BASE_URL" default:"https://api.eia.gov/v2"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}
