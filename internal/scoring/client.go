package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/logger"
	"hackathon-judge/internal/port"

	"golang.org/x/time/rate"
)

// Config 单次评分请求的参数
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout 覆盖整个评分过程（包括重试与退避）
	Timeout time.Duration
	// RequestsPerSecond <= 0 表示不限流
	RequestsPerSecond float64
}

// DefaultPolicy 默认重试策略：最多 3 次重试，1s 起指数退避，只重试瞬时错误
func DefaultPolicy() *common.Policy {
	return common.NewPolicy(
		common.WithMaxRetries(3),
		common.WithInitialDelay(time.Second),
		common.WithMaxDelay(20*time.Second),
		common.WithRetryIf(common.IsTransient),
	)
}

var errRateWait = errors.New("token wait would exceed scoring deadline")

// Client 实现 port.Scorer：超时、限流、重试都在这里，供应商适配器只负责一次调用
type Client struct {
	completer port.Completer
	cfg       Config
	policy    *common.Policy
	limiter   *rate.Limiter
}

// NewClient policy 为 nil 时使用 DefaultPolicy
func NewClient(completer port.Completer, cfg Config, policy *common.Policy) *Client {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	c := &Client{
		completer: completer,
		cfg:       cfg,
		policy:    policy,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Score 返回模型原始输出
func (c *Client) Score(parent context.Context, prompt string) (string, error) {
	// 调用方的 deadline 可能比配置的更短
	budget := c.cfg.Timeout
	if dl, ok := parent.Deadline(); ok {
		if left := time.Until(dl); left < budget {
			budget = left
		}
	}
	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	log := logger.WithComponent("scoring_client").WithField("provider", c.completer.Name())
	req := port.CompletionRequest{
		Prompt:      prompt,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	start := time.Now()
	attempt := 0
	var text string
	err := c.policy.Do(ctx, func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errRateWait
			}
		}
		out, err := c.completer.Complete(ctx, req)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("模型调用失败")
			return err
		}
		text = out
		return nil
	})

	if err != nil {
		return "", c.mapError(parent, ctx, err, attempt, budget)
	}

	log.WithFields(map[string]interface{}{
		"model":    c.cfg.Model,
		"attempts": attempt,
		"duration": time.Since(start).String(),
		"bytes":    len(text),
	}).Info("模型调用完成")
	log.Debugf("模型原始输出: %s", text)
	return text, nil
}

// mapError 把最终错误归类到评分错误码
func (c *Client) mapError(parent, scoped context.Context, err error, attempts int, budget time.Duration) error {
	msg := fmt.Sprintf("%s scoring failed after %d attempt(s)", c.completer.Name(), attempts)
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return common.WrapError(common.ErrCodeCancelled, msg, err)
	case scoped.Err() != nil:
		return common.WrapError(common.ErrCodeScoringTimeout, fmt.Sprintf("%s: deadline %s exceeded", msg, budget.Round(time.Millisecond)), err)
	case errors.Is(err, errRateWait):
		return common.WrapError(common.ErrCodeScoringTimeout, msg, err)
	case common.IsTransient(err):
		return common.WrapError(common.ErrCodeScoringUnavailable, msg, err)
	default:
		return common.WrapError(common.ErrCodeScoringRejected, msg, err)
	}
}
