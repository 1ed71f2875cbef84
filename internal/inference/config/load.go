package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/examcourse-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if dd, err := time.ParseDuration(s); err == nil {
		d.Duration = dd
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %q", s)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		DetectionProvider:  "default",
		LessonProvider:     "default",
		DetectionTimeout:   Duration{Duration: 120 * time.Second},
		LessonTimeout:      Duration{Duration: 90 * time.Second},
		Retries:            2,
		BackoffUnit:        Duration{Duration: time.Second},
		DetectionMaxTokens: 8000,
		LessonMaxTokens:    2000,
		BatchThreshold:     100,
		BatchSize:          40,
		BatchDelay:         Duration{Duration: 2 * time.Second},
		MinTopics:          5,
		MaxTopics:          12,
		MaxConcepts:        5,
		LessonWindow:       3,
		WindowDelay:        Duration{Duration: time.Second},
		LessonMinWords:     100,
		LessonMaxWords:     600,
		LeakageThreshold:   0.30,
		LeakageShingleSize: 5,
		RegenerationWindow: Duration{Duration: 5 * time.Minute},
		RunLockTTL:         Duration{Duration: 30 * time.Minute},
		RecoveryTopicName:  "Additional Practice",
	}
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Providers: []ProviderConfig{
			{Name: "default", Model: "mock-1", Engine: EngineConfig{Type: "mock"}},
		},
		Generation: DefaultGeneration(),
	}
}

// Load reads the YAML file named by COURSEGEN_CONFIG_PATH (or ./config/coursegen.yaml when
// present), falls back to a mock-only config, applies env overrides and validates.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := envutil.String("COURSEGEN_CONFIG_PATH", "")
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "coursegen.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		loaded, err := Parse(b)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", cfgPath, err)
		}
		cfg = loaded
	}

	applyEnv(cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the default generation limits so a file only has to name
// what it changes.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{Generation: DefaultGeneration()}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	g := &cfg.Generation
	g.DetectionProvider = envutil.String("COURSEGEN_DETECTION_PROVIDER", g.DetectionProvider)
	g.LessonProvider = envutil.String("COURSEGEN_LESSON_PROVIDER", g.LessonProvider)
	g.Retries = envutil.Int("COURSEGEN_RETRIES", g.Retries)
	g.DetectionTimeout.Duration = envutil.Duration("COURSEGEN_DETECTION_TIMEOUT", g.DetectionTimeout.Duration)
	g.LessonTimeout.Duration = envutil.Duration("COURSEGEN_LESSON_TIMEOUT", g.LessonTimeout.Duration)
	g.BatchDelay.Duration = envutil.Duration("COURSEGEN_BATCH_DELAY", g.BatchDelay.Duration)
	g.WindowDelay.Duration = envutil.Duration("COURSEGEN_WINDOW_DELAY", g.WindowDelay.Duration)
	g.RegenerationWindow.Duration = envutil.Duration("COURSEGEN_REGENERATION_WINDOW", g.RegenerationWindow.Duration)
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if len(cfg.Providers) == 0 {
		return errors.New("config must define at least one provider")
	}
	seen := map[string]bool{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return errors.New("provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
		p.Model = strings.TrimSpace(p.Model)

		e := &p.Engine
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
		if e.APIKey == "" && strings.TrimSpace(e.APIKeyEnv) != "" {
			e.APIKey = strings.TrimSpace(os.Getenv(strings.TrimSpace(e.APIKeyEnv)))
		}
		switch e.Type {
		case "mock":
		case "openai_http", "oai_http":
			e.Type = "oai_http"
			if e.BaseURL == "" {
				return fmt.Errorf("provider %q (oai_http) missing engine.base_url", p.Name)
			}
			if e.ChatCompletionsPath == "" {
				e.ChatCompletionsPath = "/v1/chat/completions"
			}
			switch e.TokenParam {
			case "":
				e.TokenParam = "max_tokens"
			case "max_tokens", "max_completion_tokens":
			default:
				return fmt.Errorf("provider %q invalid engine.token_param=%q", p.Name, e.TokenParam)
			}
		case "anthropic":
			if p.Model == "" {
				return fmt.Errorf("provider %q (anthropic) missing model", p.Name)
			}
		case "":
			return fmt.Errorf("provider %q missing engine.type", p.Name)
		default:
			return fmt.Errorf("provider %q unsupported engine.type=%q", p.Name, e.Type)
		}
	}

	g := &cfg.Generation
	if !seen[g.DetectionProvider] {
		return fmt.Errorf("generation.detection_provider %q is not a configured provider", g.DetectionProvider)
	}
	if !seen[g.LessonProvider] {
		return fmt.Errorf("generation.lesson_provider %q is not a configured provider", g.LessonProvider)
	}
	if g.Retries < 0 {
		return errors.New("generation.retries must be >= 0")
	}
	if g.DetectionTemperature < 0 || g.DetectionTemperature > 2 || g.LessonTemperature < 0 || g.LessonTemperature > 2 {
		return fmt.Errorf("generation temperatures must be within [0, 2]: detection=%g lesson=%g", g.DetectionTemperature, g.LessonTemperature)
	}
	if g.BatchSize <= 0 || g.BatchThreshold <= 0 || g.LessonWindow <= 0 {
		return errors.New("generation batch_size, batch_threshold and lesson_window must be positive")
	}
	if g.MinTopics <= 0 || g.MaxTopics < g.MinTopics {
		return fmt.Errorf("generation topic bounds invalid: min=%d max=%d", g.MinTopics, g.MaxTopics)
	}
	if g.LessonMinWords <= 0 || g.LessonMaxWords < g.LessonMinWords {
		return fmt.Errorf("generation lesson word band invalid: min=%d max=%d", g.LessonMinWords, g.LessonMaxWords)
	}
	if g.LeakageThreshold <= 0 || g.LeakageThreshold > 1 {
		return fmt.Errorf("generation.leakage_threshold must be in (0,1], got %v", g.LeakageThreshold)
	}
	if strings.TrimSpace(g.RecoveryTopicName) == "" {
		g.RecoveryTopicName = DefaultGeneration().RecoveryTopicName
	}
	return nil
}

// Provider returns the named provider config.
func (cfg *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range cfg.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
