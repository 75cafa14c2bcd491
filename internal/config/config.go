package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig   `json:"basic_config"`
	LLM         LLMConfig     `json:"llm"`
	OCR         OCRConfig     `json:"ocr"`
	Redis       RedisConfig   `json:"redis"`
	Session     SessionConfig `json:"session"`
}

type BasicConfig struct {
	Env             string `json:"env" env:"HWGRADER_ENV" env-default:"local"`
	ServerAddress   string `json:"server_address" env:"HWGRADER_ADDR" env-default:":8090"`
	MaxUploadBytes  int64  `json:"max_upload_bytes" env:"HWGRADER_MAX_UPLOAD_BYTES" env-default:"10485760"`
	MaxScore        int    `json:"max_score" env:"HWGRADER_MAX_SCORE" env-default:"10"`
	MinStudentChars int    `json:"min_student_chars" env:"HWGRADER_MIN_STUDENT_CHARS" env-default:"20"`
	MinWorkers      int    `json:"min_workers" env:"HWGRADER_MIN_WORKERS" env-default:"2"`
	MaxWorkers      int    `json:"max_workers" env:"HWGRADER_MAX_WORKERS" env-default:"4"`
	QueueSize       int    `json:"queue_size" env:"HWGRADER_QUEUE_SIZE" env-default:"32"`
}

// LLMConfig selects the chat-completion backend used for grading and chat.
type LLMConfig struct {
	Provider       string `json:"provider" env:"HWGRADER_LLM_PROVIDER" env-default:"openai"`
	BaseURL        string `json:"base_url" env:"HWGRADER_LLM_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model          string `json:"model" env:"HWGRADER_LLM_MODEL" env-default:"meta-llama/llama-3-8b-instruct"`
	APIKey         string `json:"api_key" env:"OPENROUTER_API_KEY"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"HWGRADER_LLM_TIMEOUT_SECONDS" env-default:"120"`
}

type OCRConfig struct {
	Languages         []string `json:"languages" env:"HWGRADER_OCR_LANGUAGES" env-default:"eng"`
	TessdataPrefix    string   `json:"tessdata_prefix" env:"TESSDATA_PREFIX"`
	HandwritingEngine string   `json:"handwriting_engine" env:"HWGRADER_HANDWRITING_ENGINE" env-default:"tesseract"`
	VisionModel       string   `json:"vision_model" env:"HWGRADER_VISION_MODEL"`
	PdftoppmPath      string   `json:"pdftoppm_path" env:"HWGRADER_PDFTOPPM" env-default:"pdftoppm"`
	DPI               int      `json:"dpi" env:"HWGRADER_OCR_DPI" env-default:"200"`
	PreferTextLayer   bool     `json:"prefer_text_layer" env:"HWGRADER_PREFER_TEXT_LAYER" env-default:"false"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" env:"HWGRADER_REDIS_ENABLED" env-default:"false"`
	Host     string `json:"host" env:"HWGRADER_REDIS_HOST" env-default:"127.0.0.1"`
	Port     int    `json:"port" env:"HWGRADER_REDIS_PORT" env-default:"6379"`
	Username string `json:"username" env:"HWGRADER_REDIS_USERNAME"`
	Password string `json:"password" env:"HWGRADER_REDIS_PASSWORD"`
	DB       int    `json:"db" env:"HWGRADER_REDIS_DB" env-default:"0"`
}

type SessionConfig struct {
	TTLMinutes int `json:"ttl_minutes" env:"HWGRADER_SESSION_TTL_MINUTES" env-default:"60"`
}

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	HandwritingTesseract = "tesseract"
	HandwritingVision    = "vision"
)

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is allowed; values then come from the environment and defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	if _, statErr := os.Stat(absPath); statErr == nil {
		if err := cleanenv.ReadConfig(absPath, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read config from env: %w", err)
		}
	} else {
		return nil, fmt.Errorf("stat config %s: %w", absPath, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with. The API key is
// deliberately not checked; a missing key surfaces on the first remote call.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}
	c.OCR.HandwritingEngine = strings.ToLower(strings.TrimSpace(c.OCR.HandwritingEngine))
	switch c.OCR.HandwritingEngine {
	case HandwritingTesseract, HandwritingVision:
	default:
		return fmt.Errorf("unsupported handwriting engine: %q", c.OCR.HandwritingEngine)
	}
	if c.BasicConfig.MaxScore < 1 {
		return fmt.Errorf("max_score must be at least 1, got %d", c.BasicConfig.MaxScore)
	}
	if len(c.OCR.Languages) == 0 {
		c.OCR.Languages = []string{"eng"}
	}
	return nil
}

// LLMTimeout returns the per-call deadline for remote model requests.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// SessionTTL returns how long an evaluation stays available for follow-up questions.
func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}
