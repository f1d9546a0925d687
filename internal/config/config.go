package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// 支持的模型供应商
const (
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	DatabaseURL   string `validate:"required"`
	GitHubToken   string
	FeishuWebhook string `validate:"omitempty,url"`
	HTTPAddr      string `validate:"required"`
	RubricPath    string

	LogLevel string `validate:"oneof=DEBUG INFO WARN WARNING ERROR"`
	LogFile  string

	LLM     LLMConfig
	Scoring ScoringConfig
	Digest  DigestConfig
}

type LLMConfig struct {
	Provider        string  `validate:"oneof=gemini groq anthropic"`
	GeminiAPIKey    string  `validate:"required_if=Provider gemini"`
	GroqAPIKey      string  `validate:"required_if=Provider groq"`
	AnthropicAPIKey string  `validate:"required_if=Provider anthropic"`
	Model           string  // 为空时使用供应商默认模型
	Temperature     float32 `validate:"gte=0,lte=2"`
	MaxTokens       int     `validate:"gte=0"`
}

type ScoringConfig struct {
	Timeout           time.Duration `validate:"gt=0"`
	MaxRetries        int           `validate:"gte=0,lte=10"`
	InitialBackoff    time.Duration `validate:"gt=0"`
	RequestsPerSecond float64       `validate:"gte=0"`
}

type DigestConfig struct {
	IngestTimeout time.Duration `validate:"gt=0"`
	BudgetBytes   int           `validate:"gte=0"`
	MaxFileBytes  int           `validate:"gte=0"`
	MaxFiles      int           `validate:"gte=0"`
}

// Load 先读 .env（文件不存在时忽略），再读环境变量
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup 从任意 key/value 来源构造配置，便于测试
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		DatabaseURL:   r.str("DATABASE_URL", "judge.db"),
		GitHubToken:   r.str("GITHUB_TOKEN", ""),
		FeishuWebhook: r.str("FEISHU_WEBHOOK", ""),
		HTTPAddr:      r.str("HTTP_ADDR", ":8080"),
		RubricPath:    r.str("RUBRIC_PATH", ""),
		LogLevel:      strings.ToUpper(r.str("LOG_LEVEL", "INFO")),
		LogFile:       r.str("LOG_FILE", ""),
		LLM: LLMConfig{
			Provider:        strings.ToLower(r.str("LLM_PROVIDER", ProviderGemini)),
			GeminiAPIKey:    r.str("GEMINI_API_KEY", ""),
			GroqAPIKey:      r.str("GROQ_API_KEY", ""),
			AnthropicAPIKey: r.str("ANTHROPIC_API_KEY", ""),
			Model:           r.str("LLM_MODEL", ""),
			Temperature:     float32(r.float("LLM_TEMPERATURE", 0.2)),
			MaxTokens:       r.int("LLM_MAX_TOKENS", 4096),
		},
		Scoring: ScoringConfig{
			Timeout:           r.duration("SCORING_TIMEOUT", 2*time.Minute),
			MaxRetries:        r.int("SCORING_MAX_RETRIES", 3),
			InitialBackoff:    r.duration("SCORING_INITIAL_BACKOFF", time.Second),
			RequestsPerSecond: r.float("LLM_RPS", 0),
		},
		Digest: DigestConfig{
			IngestTimeout: r.duration("INGEST_TIMEOUT", 60*time.Second),
			BudgetBytes:   r.int("DIGEST_BUDGET_BYTES", 0),
			MaxFileBytes:  r.int("DIGEST_MAX_FILE_BYTES", 0),
			MaxFiles:      r.int("DIGEST_MAX_FILES", 0),
		},
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// APIKey 当前供应商对应的密钥
func (c *Config) APIKey() string {
	switch c.LLM.Provider {
	case ProviderGroq:
		return c.LLM.GroqAPIKey
	case ProviderAnthropic:
		return c.LLM.AnthropicAPIKey
	}
	return c.LLM.GeminiAPIKey
}

// reader 收集所有解析错误，一次性返回
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	return v
}

func (r *reader) int(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return def
	}
	return f
}

// duration 接受 "90s" 这样的写法，纯数字按秒处理
func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}
