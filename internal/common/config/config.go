// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Data     DataConfig     `mapstructure:"data"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// --- Core App Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// DataConfig holds settings for the tabular data source collaborator.
type DataConfig struct {
	Directory  string   `mapstructure:"directory"`
	Extensions []string `mapstructure:"extensions"` // .xlsx, .csv, .json
}

// LLMConfig holds settings for the language model service.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Timeout     int     `mapstructure:"timeout"`     // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"` // per call, beyond the first attempt
}

// AnalysisConfig holds settings for the analyzer and the feedback loop.
type AnalysisConfig struct {
	TopN              int  `mapstructure:"top_n"`
	FeedbackCap       int  `mapstructure:"feedback_cap"`
	EnableElaboration bool `mapstructure:"enable_elaboration"`
}

// MemoryConfig holds settings for the conversation ledger.
type MemoryConfig struct {
	Capacity      int `mapstructure:"capacity"`
	ContextWindow int `mapstructure:"context_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}
