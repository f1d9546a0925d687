package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/port"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const providerName = "gemini"

// DefaultModel 默认模型
const DefaultModel = "gemini-2.5-flash-lite"

type Completer struct {
	client *genai.Client
}

func NewCompleter(ctx context.Context, apiKey string) (*Completer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Completer{client: client}, nil
}

func (g *Completer) Name() string { return providerName }

// Close 释放底层连接
func (g *Completer) Close() error {
	return g.client.Close()
}

// Complete 单次调用，不做重试
func (g *Completer) Complete(ctx context.Context, req port.CompletionRequest) (string, error) {
	name := req.Model
	if name == "" {
		name = DefaultModel
	}
	// 每次调用单独创建 model，避免并发请求互相修改参数
	model := g.client.GenerativeModel(name)
	// 强制要求返回 JSON，降低解析错误的概率
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(err)
	}
	return responseText(resp)
}

// responseText 拼接第一个候选的所有文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureTransient, Err: errors.New("AI 返回内容为空")}
	}
	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureRejected,
			Err: fmt.Errorf("response blocked: %s", cand.FinishReason)}
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureTransient, Err: errors.New("AI 返回内容为空")}
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", &common.ProviderError{Provider: providerName, Kind: common.FailureRejected, Err: errors.New("AI 返回格式错误")}
	}
	return sb.String(), nil
}

var transientMarkers = []string{
	"resourceexhausted",
	"code = unavailable",
	"code = internal",
	"quota",
}

// classify 把 SDK 错误转成 ProviderError
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &common.ProviderError{Provider: providerName, Kind: common.FailureRejected, Err: err}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return common.NewProviderError(providerName, gErr.Code, err)
	}
	// gax apierror 暴露 HTTPCode()，非 HTTP 传输时返回 -1
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return common.NewProviderError(providerName, coded.HTTPCode(), err)
	}

	kind := common.FailureRejected
	msg := strings.ToLower(err.Error())
	if common.IsTransient(err) {
		kind = common.FailureTransient
	} else {
		for _, m := range transientMarkers {
			if strings.Contains(msg, m) {
				kind = common.FailureTransient
				break
			}
		}
	}
	return &common.ProviderError{Provider: providerName, Kind: kind, Err: err}
}
