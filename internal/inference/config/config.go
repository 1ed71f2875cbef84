package config

import "time"

type Duration struct {
	Duration time.Duration
}

type EngineConfig struct {
	// Type is one of "mock", "oai_http" or "anthropic".
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey may be given inline; APIKeyEnv names an env var to read it from instead.
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	ChatCompletionsPath string `yaml:"chat_completions_path,omitempty"`

	// TokenParam is the request field carrying the output token limit for oai_http engines:
	// "max_tokens" (default) or "max_completion_tokens".
	TokenParam string `yaml:"token_param,omitempty"`
}

type ProviderConfig struct {
	Name   string       `yaml:"name"`
	Model  string       `yaml:"model"`
	Engine EngineConfig `yaml:"engine"`
}

// GenerationConfig carries every limit of a course-generation run. A run is bounded by the
// sum of its per-call timeouts (times retries) and the fixed batch/window delays.
type GenerationConfig struct {
	DetectionProvider string `yaml:"detection_provider"`
	LessonProvider    string `yaml:"lesson_provider"`

	DetectionTimeout Duration `yaml:"detection_timeout"`
	LessonTimeout    Duration `yaml:"lesson_timeout"`
	Retries          int      `yaml:"retries"`
	BackoffUnit      Duration `yaml:"backoff_unit"`

	DetectionMaxTokens int `yaml:"detection_max_tokens"`
	LessonMaxTokens    int `yaml:"lesson_max_tokens"`

	// Zero leaves the provider default in place.
	DetectionTemperature float64 `yaml:"detection_temperature"`
	LessonTemperature    float64 `yaml:"lesson_temperature"`

	BatchThreshold int      `yaml:"batch_threshold"`
	BatchSize      int      `yaml:"batch_size"`
	BatchDelay     Duration `yaml:"batch_delay"`
	MinTopics      int      `yaml:"min_topics"`
	MaxTopics      int      `yaml:"max_topics"`
	MaxConcepts    int      `yaml:"max_concepts"`

	LessonWindow   int      `yaml:"lesson_window"`
	WindowDelay    Duration `yaml:"window_delay"`
	LessonMinWords int      `yaml:"lesson_min_words"`
	LessonMaxWords int      `yaml:"lesson_max_words"`

	LeakageThreshold   float64 `yaml:"leakage_threshold"`
	LeakageShingleSize int     `yaml:"leakage_shingle_size"`

	RegenerationWindow Duration `yaml:"regeneration_window"`
	RunLockTTL         Duration `yaml:"run_lock_ttl"`
	RecoveryTopicName  string   `yaml:"recovery_topic_name"`
}

type Config struct {
	Env        string           `yaml:"env"`
	Providers  []ProviderConfig `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
}
