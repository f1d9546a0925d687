package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/port"
)

const (
	providerName   = "groq"
	defaultBaseURL = "https://api.groq.com/openai/v1/chat/completions"
	// DefaultModel Groq 上默认使用的模型
	DefaultModel = "llama-3.3-70b-versatile"
)

// Completer 调用 Groq 的 OpenAI 兼容 Chat Completions 接口，要求返回 JSON
type Completer struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

func NewCompleter(apiKey string) *Completer {
	return &Completer{
		// 超时由 ctx 控制，这里只兜底
		http:    &http.Client{Timeout: 5 * time.Minute},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

func (g *Completer) Name() string { return providerName }

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete 单次调用，不做重试
func (g *Completer) Complete(ctx context.Context, req port.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []message{{Role: "user", Content: req.Prompt}},
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureRejected, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureRejected, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// 网络层错误一律视为瞬时
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureTransient, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &common.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Kind: common.FailureTransient, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		msg := resp.Status
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", resp.Status, e.Error.Message)
		}
		return "", common.NewProviderError(providerName, resp.StatusCode, errors.New(msg))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &common.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Kind: common.FailureTransient, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &common.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Kind: common.FailureTransient, Err: errors.New("empty choices")}
	}
	if out.Choices[0].FinishReason == "content_filter" {
		return "", &common.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Kind: common.FailureRejected, Err: errors.New("response blocked by content filter")}
	}
	return out.Choices[0].Message.Content, nil
}
