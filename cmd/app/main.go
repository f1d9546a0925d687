package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"hackathon-judge/internal/adapter/anthropic"
	"hackathon-judge/internal/adapter/feishu"
	"hackathon-judge/internal/adapter/gemini"
	"hackathon-judge/internal/adapter/github"
	"hackathon-judge/internal/adapter/groq"
	"hackathon-judge/internal/adapter/repository"
	"hackathon-judge/internal/common"
	"hackathon-judge/internal/config"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"
	"hackathon-judge/internal/port"
	"hackathon-judge/internal/scoring"
	"hackathon-judge/internal/service"
)

func main() {
	if err := newRootCmd(config.Load, buildRuntime).Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime 一次命令执行所需的全部依赖
type runtime struct {
	service port.AnalysisService
	cfg     *config.Config
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.WithError(err, "main").Warn("释放资源失败")
		}
	}
}

type loadFunc func() (*config.Config, error)

type buildFunc func(ctx context.Context, cfg *config.Config) (*runtime, error)

// buildRuntime 按配置组装：采集员、评委、档案管理员、信使
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	rt := &runtime{cfg: cfg}

	var rubric *domain.Rubric
	if cfg.RubricPath != "" {
		r, err := domain.LoadRubric(cfg.RubricPath)
		if err != nil {
			return nil, err
		}
		rubric = r
	}

	// 1. 数据库
	store, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("❌ DB 初始化失败: %w", err)
	}
	rt.closers = append(rt.closers, store.Close)

	// 2. AI 依赖
	completer, closeFn, err := newCompleter(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("❌ AI 初始化失败: %w", err)
	}
	if closeFn != nil {
		rt.closers = append(rt.closers, closeFn)
	}
	scorer := scoring.NewClient(completer, scoring.Config{
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           cfg.Scoring.Timeout,
		RequestsPerSecond: cfg.Scoring.RequestsPerSecond,
	}, common.NewPolicy(
		common.WithMaxRetries(cfg.Scoring.MaxRetries),
		common.WithInitialDelay(cfg.Scoring.InitialBackoff),
		common.WithMaxDelay(20*time.Second),
		common.WithRetryIf(common.IsTransient),
	))

	// 3. GitHub 采集
	ingestor := github.NewIngestor(cfg.GitHubToken, github.Policy{
		BudgetBytes:  cfg.Digest.BudgetBytes,
		MaxFileBytes: cfg.Digest.MaxFileBytes,
		MaxFiles:     cfg.Digest.MaxFiles,
	})

	// 4. 通知器 (可选)
	var notifier port.Notifier
	if cfg.FeishuWebhook != "" {
		notifier = feishu.NewNotifier(cfg.FeishuWebhook)
	}

	rt.service = service.NewAnalysisService(ingestor, scorer, store, notifier, rubric, cfg.Digest.IngestTimeout)
	logger.WithComponent("main").WithField("provider", completer.Name()).Info("依赖初始化完成")
	return rt, nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (port.Completer, func() error, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGroq:
		return groq.NewCompleter(cfg.APIKey()), nil, nil
	case config.ProviderAnthropic:
		return anthropic.NewCompleter(cfg.APIKey()), nil, nil
	case config.ProviderGemini:
		c, err := gemini.NewCompleter(ctx, cfg.APIKey())
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return nil, nil, fmt.Errorf("未知的模型供应商: %s", cfg.LLM.Provider)
}
