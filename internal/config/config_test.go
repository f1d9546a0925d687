package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"GEMINI_API_KEY": "g-key"}))
	require.NoError(t, err)

	assert.Equal(t, "judge.db", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.APIKey())
	assert.Equal(t, float32(0.2), cfg.LLM.Temperature)
	assert.Equal(t, 2*time.Minute, cfg.Scoring.Timeout)
	assert.Equal(t, 3, cfg.Scoring.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Digest.IngestTimeout)
	assert.Zero(t, cfg.Digest.BudgetBytes)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"LLM_PROVIDER":        "Anthropic",
		"ANTHROPIC_API_KEY":   "a-key",
		"LLM_MODEL":           "claude-test",
		"SCORING_TIMEOUT":     "90",
		"SCORING_MAX_RETRIES": "5",
		"INGEST_TIMEOUT":      "45s",
		"DIGEST_BUDGET_BYTES": "102400",
		"LLM_RPS":             "0.5",
		"LOG_LEVEL":           "debug",
		"FEISHU_WEBHOOK":      "https://open.feishu.cn/open-apis/bot/v2/hook/x",
		"DATABASE_URL":        "postgres://u:p@localhost/judge",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "a-key", cfg.APIKey())
	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.Scoring.Timeout)
	assert.Equal(t, 5, cfg.Scoring.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Digest.IngestTimeout)
	assert.Equal(t, 102400, cfg.Digest.BudgetBytes)
	assert.Equal(t, 0.5, cfg.Scoring.RequestsPerSecond)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "缺少当前供应商的密钥",
			env:     map[string]string{"LLM_PROVIDER": "groq", "GEMINI_API_KEY": "g"},
			wantErr: "GroqAPIKey",
		},
		{
			name:    "未知供应商",
			env:     map[string]string{"LLM_PROVIDER": "openai"},
			wantErr: "Provider",
		},
		{
			name:    "整数格式错误",
			env:     map[string]string{"GEMINI_API_KEY": "g", "LLM_MAX_TOKENS": "lots"},
			wantErr: "LLM_MAX_TOKENS",
		},
		{
			name:    "时长格式错误",
			env:     map[string]string{"GEMINI_API_KEY": "g", "SCORING_TIMEOUT": "soon"},
			wantErr: "SCORING_TIMEOUT",
		},
		{
			name:    "温度越界",
			env:     map[string]string{"GEMINI_API_KEY": "g", "LLM_TEMPERATURE": "3"},
			wantErr: "Temperature",
		},
		{
			name:    "Webhook 不是 URL",
			env:     map[string]string{"GEMINI_API_KEY": "g", "FEISHU_WEBHOOK": "not a url"},
			wantErr: "FeishuWebhook",
		},
		{
			name:    "日志级别非法",
			env:     map[string]string{"GEMINI_API_KEY": "g", "LOG_LEVEL": "verbose"},
			wantErr: "LogLevel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromLookup_BlankValuesUseDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"GEMINI_API_KEY": "g",
		"HTTP_ADDR":      "   ",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}
