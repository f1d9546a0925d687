package anthropic

import (
	"context"
	"errors"
	"strings"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/port"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const providerName = "anthropic"

const (
	// DefaultModel 默认模型
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
)

type Completer struct {
	client anthropic.Client
}

// NewCompleter SDK 自带的重试关闭，统一由 scoring.Client 的策略控制
func NewCompleter(apiKey string, opts ...option.RequestOption) *Completer {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Completer{client: anthropic.NewClient(append(base, opts...)...)}
}

func (c *Completer) Name() string { return providerName }

// Complete 单次调用，不做重试
func (c *Completer) Complete(ctx context.Context, req port.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(err)
	}

	if resp.StopReason == anthropic.StopReasonRefusal {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureRejected, Err: errors.New("model refused the request")}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		// 只拼接 text 块，thinking / tool_use 等忽略
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureTransient, Err: errors.New("no text content in response")}
	}
	return text.String(), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// 529 overloaded 也落在 >=500 区间
		return common.NewProviderError(providerName, apiErr.StatusCode, err)
	}
	kind := common.FailureRejected
	if common.IsTransient(err) {
		kind = common.FailureTransient
	}
	return &common.ProviderError{Provider: providerName, Kind: kind, Err: err}
}
