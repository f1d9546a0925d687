package analyzer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/port"
)

// BatchResult 单个仓库的评审结果，Record 与 Err 二选一
type BatchResult struct {
	RepoURL  string
	Record   *domain.AnalysisRecord
	Err      error
	Duration time.Duration
}

// BatchAnalyzer 用固定数量的 worker 并发评审多个仓库
// 每个仓库都是一次独立的 SubmitAnalysis，互不影响
type BatchAnalyzer struct {
	service       port.AnalysisService
	maxGoroutines int // 最大并发数
	out           io.Writer
}

type job struct {
	index int
	req   domain.SubmitRequest
}

// NewBatchAnalyzer 创建新的批量评审器
func NewBatchAnalyzer(service port.AnalysisService) *BatchAnalyzer {
	return &BatchAnalyzer{
		service:       service,
		maxGoroutines: 3, // 默认并发数为3，避免打满模型配额
		out:           os.Stdout,
	}
}

// SetMaxGoroutines 设置最大并发数
func (a *BatchAnalyzer) SetMaxGoroutines(max int) {
	if max > 0 {
		a.maxGoroutines = max
	}
}

// SetOutput 进度输出位置，nil 表示不输出
func (a *BatchAnalyzer) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	a.out = w
}

// analyzeWorker 工作协程，处理单个仓库的评审
func (a *BatchAnalyzer) analyzeWorker(
	ctx context.Context,
	jobs <-chan job,
	results []BatchResult,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for j := range jobs {
		url := j.req.RepoURL
		// 已取消的任务不再发起
		if err := ctx.Err(); err != nil {
			results[j.index] = BatchResult{RepoURL: url, Err: common.WrapError(common.ErrCodeCancelled, "batch cancelled", err)}
			continue
		}

		fmt.Fprintf(a.out, "   [Worker-%d] 正在评审 %s...\n", workerID, url)
		start := time.Now()
		rec, err := a.service.SubmitAnalysis(ctx, j.req)
		res := BatchResult{RepoURL: url, Record: rec, Err: err, Duration: time.Since(start)}

		if err != nil {
			fmt.Fprintf(a.out, "   [Worker-%d] ❌ %s 评审失败 [%s]: %v\n", workerID, url, common.CodeOf(err), err)
		} else {
			fmt.Fprintf(a.out, "   [Worker-%d] ✅ %s 评审完成 (总分: %.1f)\n", workerID, url, rec.OverallScore)
		}
		// 每个 index 只被一个 worker 写入
		results[j.index] = res
	}
}

// Analyze 并发评审，返回结果与输入顺序一致。单个仓库失败不影响其他仓库
func (a *BatchAnalyzer) Analyze(ctx context.Context, urls []string, problemStatement, ref string) []BatchResult {
	fmt.Fprintf(a.out, "🤖 开始批量评审，共 %d 个仓库，最大并发数: %d\n", len(urls), a.maxGoroutines)

	results := make([]BatchResult, len(urls))
	jobs := make(chan job, len(urls))

	workers := a.maxGoroutines
	if workers > len(urls) {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go a.analyzeWorker(ctx, jobs, results, &wg, i+1)
	}

	for i, u := range urls {
		jobs <- job{index: i, req: domain.SubmitRequest{RepoURL: u, ProblemStatement: problemStatement, Ref: ref}}
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(a.out, "⚠️  共有 %d 个评审失败\n", failed)
	}
	fmt.Fprintln(a.out, "✅ 批量评审完成")
	return results
}
