package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"hackathon-judge/internal/adapter/github"
	"hackathon-judge/internal/config"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"
	"hackathon-judge/internal/port"
	"hackathon-judge/internal/prompt"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(newIngestor).Execute(); err != nil {
		os.Exit(1)
	}
}

type ingestorFactory func(cfg *config.Config) port.Ingestor

func newIngestor(cfg *config.Config) port.Ingestor {
	return github.NewIngestor(cfg.GitHubToken, github.Policy{
		BudgetBytes:  cfg.Digest.BudgetBytes,
		MaxFileBytes: cfg.Digest.MaxFileBytes,
		MaxFiles:     cfg.Digest.MaxFiles,
	})
}

// 调试模式只需要 GitHub 相关配置，不要求模型密钥；完整配置加载失败时提示后降级
func loadConfig(status io.Writer, load func() (*config.Config, error)) *config.Config {
	cfg, err := load()
	if err == nil {
		return cfg
	}
	fmt.Fprintf(status, "⚠️  配置加载失败，只使用 GITHUB_TOKEN / LOG_LEVEL，摘要参数取默认值: %v\n", err)
	level := strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if level == "" {
		level = "INFO"
	}
	return &config.Config{
		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		LogLevel:    level,
		Digest:      config.DigestConfig{IngestTimeout: 60 * time.Second},
	}
}

func newRootCmd(factory ingestorFactory) *cobra.Command {
	var (
		ref        string
		problem    string
		rubricPath string
		digestOnly bool
	)

	cmd := &cobra.Command{
		Use:   "judge-debug <repo-url>",
		Short: "Print the digest and prompt for a repository without calling any model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd.ErrOrStderr(), config.Load)
			if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
				return err
			}

			rubric := domain.DefaultRubric()
			if rubricPath != "" {
				r, err := domain.LoadRubric(rubricPath)
				if err != nil {
					return err
				}
				rubric = r
			}

			timeout := cfg.Digest.IngestTimeout
			if timeout <= 0 {
				timeout = 60 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), factory(cfg), rubric, args[0], ref, problem, digestOnly)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "branch, tag or commit")
	cmd.Flags().StringVarP(&problem, "problem", "p", "", "problem statement")
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "rubric YAML file (default built-in rubric)")
	cmd.Flags().BoolVar(&digestOnly, "digest-only", false, "print only the rendered digest")
	return cmd
}

func run(ctx context.Context, out, status io.Writer, ingestor port.Ingestor, rubric *domain.Rubric, url, ref, problem string, digestOnly bool) error {
	fmt.Fprintln(status, "🔍 调试模式：生成仓库摘要")
	fmt.Fprintf(status, "📥 正在读取 %s ...\n", url)

	start := time.Now()
	digest, err := ingestor.Ingest(ctx, url, ref)
	if err != nil {
		fmt.Fprintf(status, "❌ 采集失败: %v\n", err)
		return err
	}
	fmt.Fprintf(status, "✅ 共 %d 个文件（截断 %d 个），摘要 %d 字节，耗时 %s\n",
		len(digest.FileEntries), digest.TruncatedCount(), digest.TotalSizeEstimate, time.Since(start).Round(time.Millisecond))

	if digestOnly {
		_, err = io.WriteString(out, digest.Render())
		return err
	}

	p := prompt.NewBuilder(rubric).Build(digest, problem)
	fmt.Fprintf(status, "🧠 Prompt 共 %d 字节 (rubric %s)\n", len(p), rubric.Version)
	_, err = io.WriteString(out, p)
	return err
}
