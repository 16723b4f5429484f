package model

import "time"

// ================ Config ================

type AnalyzerModelConfig struct {
	Model               string  `envconfig:"ANALYZER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens           int     `envconfig:"ANALYZER_MAX_TOKENS" default:"2000"`
	Temperature         float32 `envconfig:"ANALYZER_TEMPERATURE" default:"0.1"`
	ConfidenceThreshold float64 `envconfig:"ANALYZER_CONFIDENCE_THRESHOLD" default:"0.6"`
	ContextTurns        int     `envconfig:"ANALYZER_CONTEXT_TURNS" default:"5"`
}

type RationaleModelConfig struct {
	Model       string  `envconfig:"RATIONALE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RATIONALE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RATIONALE_TEMPERATURE" default:"0.5"`
}

type SessionConfig struct {
	// Backend selects the session store implementation: memory or redis.
	Backend       string        `envconfig:"SESSION_BACKEND" default:"memory"`
	TTL           time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

type CacheConfig struct {
	TTL        time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	MaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"1024"`
}

type SearchConfig struct {
	ClientID     string        `envconfig:"NAVER_CLIENT_ID"`
	ClientSecret string        `envconfig:"NAVER_CLIENT_SECRET"`
	BaseURL      string        `envconfig:"NAVER_BASE_URL" default:"https://openapi.naver.com/v1/search/shop.json"`
	Timeout      time.Duration `envconfig:"SEARCH_TIMEOUT" default:"10s"`
	MaxRetries   int           `envconfig:"SEARCH_MAX_RETRIES" default:"2"`
}

type AgentConfig struct {
	// MaxResults caps the ranked items returned per recommendation.
	MaxResults int `envconfig:"AGENT_MAX_RESULTS" default:"6"`
	// MinCandidates is the threshold below which a warning is attached.
	MinCandidates int `envconfig:"AGENT_MIN_CANDIDATES" default:"3"`
	// SearchDisplay is how many hits each sub-query requests.
	SearchDisplay int `envconfig:"AGENT_SEARCH_DISPLAY" default:"15"`
	// MaxQueries bounds the sub-queries an agent issues per turn.
	MaxQueries int `envconfig:"AGENT_MAX_QUERIES" default:"3"`
}

type OrchestratorConfig struct {
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"30s"`
	// MaxAnalysisRetries bounds re-analysis on transient LLM failures.
	MaxAnalysisRetries int `envconfig:"ANALYSIS_MAX_RETRIES" default:"2"`
	// MaxClarifications caps clarification turns per session before the
	// orchestrator proceeds best-effort.
	MaxClarifications int `envconfig:"MAX_CLARIFICATIONS" default:"2"`
}
