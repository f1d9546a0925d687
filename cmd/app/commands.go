package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"hackathon-judge/internal/adapter/analyzer"
	"hackathon-judge/internal/adapter/httpapi"
	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newRootCmd(load loadFunc, build buildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "judge",
		Short: "judge - LLM-backed hackathon repository judge",
		Long: `judge turns a public GitHub repository into a scored verdict.

Pipeline:
  ingest → prompt → score → validate → aggregate → store

Commands:
  serve     Start the HTTP API
  analyze   Judge one or more repositories
  list      List recent analyses
  show      Print a stored analysis`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(load, build),
		newAnalyzeCmd(load, build),
		newListCmd(load, build),
		newShowCmd(load, build),
	)
	return root
}

// withRuntime 加载配置、组装依赖，结束后释放
func withRuntime(cmd *cobra.Command, load loadFunc, build buildFunc, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// --- serve ---

func newServeCmd(load loadFunc, build buildFunc) *cobra.Command {
	var addr string
	var submitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, load, build, func(ctx context.Context, rt *runtime) error {
				if addr == "" {
					addr = rt.cfg.HTTPAddr
				}
				if os.Getenv("GIN_MODE") == "" {
					gin.SetMode(gin.ReleaseMode)
				}
				router := httpapi.NewRouter(httpapi.NewHandler(rt.service, submitTimeout))
				return serve(ctx, addr, router)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	cmd.Flags().DurationVar(&submitTimeout, "submit-timeout", 5*time.Minute, "overall deadline for one submission")
	return cmd
}

// serve 阻塞直到 ctx 结束，然后优雅关闭
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.WithComponent("server")

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("🚀 HTTP 服务已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("👋 收到停止信号，正在退出...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// --- analyze ---

func newAnalyzeCmd(load loadFunc, build buildFunc) *cobra.Command {
	var (
		problem     string
		problemFile string
		ref         string
		concurrency int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <repo-url>...",
		Short: "Judge one or more repositories",
		Long: `Judge one or more public GitHub repositories. Each URL is an independent
run; a failure on one does not stop the others.

Examples:
  judge analyze https://github.com/org/repo
  judge analyze https://github.com/org/a https://github.com/org/b --concurrency 2
  judge analyze https://github.com/org/repo --problem-file brief.md --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if problemFile != "" {
				b, err := os.ReadFile(problemFile)
				if err != nil {
					return fmt.Errorf("读取题目文件失败: %w", err)
				}
				problem = string(b)
			}

			return withRuntime(cmd, load, build, func(ctx context.Context, rt *runtime) error {
				out := cmd.OutOrStdout()
				batch := analyzer.NewBatchAnalyzer(rt.service)
				batch.SetMaxGoroutines(concurrency)
				if asJSON {
					batch.SetOutput(cmd.ErrOrStderr())
				} else {
					batch.SetOutput(out)
				}

				results := batch.Analyze(ctx, args, problem, ref)
				if asJSON {
					if err := writeBatchJSON(out, results); err != nil {
						return err
					}
				} else {
					for _, r := range results {
						printResult(out, r)
					}
				}

				failed := 0
				for _, r := range results {
					if r.Err != nil {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d/%d 个仓库评审失败", failed, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&problem, "problem", "p", "", "problem statement the project was built for")
	cmd.Flags().StringVar(&problemFile, "problem-file", "", "read the problem statement from a file")
	cmd.Flags().StringVar(&ref, "ref", "", "branch, tag or commit (default branch when empty)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 3, "number of repositories judged in parallel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

type batchItem struct {
	RepoURL string                 `json:"repo_url"`
	Record  *domain.AnalysisRecord `json:"record,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func writeBatchJSON(w io.Writer, results []analyzer.BatchResult) error {
	items := make([]batchItem, 0, len(results))
	for _, r := range results {
		item := batchItem{RepoURL: r.RepoURL, Record: r.Record}
		if r.Err != nil {
			item.Code = common.CodeOf(r.Err)
			item.Error = r.Err.Error()
		}
		items = append(items, item)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func printResult(w io.Writer, r analyzer.BatchResult) {
	fmt.Fprintln(w, "\n==================================================")
	if r.Err != nil {
		fmt.Fprintf(w, "❌ %s\n   [%s] %v\n", r.RepoURL, common.CodeOf(r.Err), r.Err)
		var mErr *common.MalformedResponseError
		if errors.As(r.Err, &mErr) {
			for _, f := range mErr.Failures {
				fmt.Fprintf(w, "   - %s: %s\n", f.Criterion, f.Reason)
			}
		}
		return
	}
	printRecord(w, r.Record)
}

func printRecord(w io.Writer, rec *domain.AnalysisRecord) {
	fmt.Fprintf(w, "🏆 %s  总分 %.1f\n", rec.RepoURL, rec.OverallScore)
	fmt.Fprintf(w, "   ID: %s  Rubric: %s  时间: %s\n", rec.ID, rec.RubricVersion, rec.CreatedAt.Format(time.RFC3339))

	keys := make([]string, 0, len(rec.Scores))
	for k := range rec.Scores {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := rec.Scores[domain.Criterion(k)]
		fmt.Fprintf(w, "   %-16s %2d  %s\n", k, e.Score, e.Justification)
	}
	if rec.SummaryAssessment != "" {
		fmt.Fprintf(w, "\n📝 %s\n", rec.SummaryAssessment)
	}
}

// --- list / show ---

func newListCmd(load loadFunc, build buildFunc) *cobra.Command {
	var filter domain.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, load, build, func(ctx context.Context, rt *runtime) error {
				items, err := rt.service.ListAnalyses(ctx, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "📭 还没有评审记录")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSCORE\tCREATED\tREPO")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\n", it.ID, it.OverallScore, it.CreatedAt.Format("2006-01-02 15:04"), it.RepoURL)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&filter.RepoURL, "repo", "", "only analyses of this repository URL")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of rows")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "rows to skip")
	return cmd
}

func newShowCmd(load loadFunc, build buildFunc) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, load, build, func(ctx context.Context, rt *runtime) error {
				rec, err := rt.service.GetAnalysis(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rec)
				}
				printRecord(out, rec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	return cmd
}
