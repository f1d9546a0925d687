package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// fetchConcurrency 同时下载 blob 的数量
const fetchConcurrency = 8

// minTruncatedContent 预算剩余不足此值时不再放入截断文件
const minTruncatedContent = 256

// Ingestor 实现了 port.Ingestor 接口，基于 GitHub REST API，不 clone 仓库
type Ingestor struct {
	client *github.Client
	policy Policy
	retry  []common.Option
}

// NewIngestor 初始化 GitHub 客户端
// token: GitHub Personal Access Token (如果是空字符串，就是匿名访问，限制 60次/小时)
func NewIngestor(token string, policy Policy) *Ingestor {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	return newIngestor(client, policy)
}

func newIngestor(client *github.Client, policy Policy) *Ingestor {
	return &Ingestor{
		client: client,
		policy: policy.withDefaults(),
		retry: []common.Option{
			common.WithMaxRetries(2),
			common.WithInitialDelay(500 * time.Millisecond),
			common.WithRetryIf(isRetryable),
		},
	}
}

// Policy 当前生效的选择规则
func (i *Ingestor) Policy() Policy {
	return i.policy
}

// Ingest 生成仓库摘要，总大小不超过 Policy.BudgetBytes
func (i *Ingestor) Ingest(ctx context.Context, repoURL, ref string) (*domain.RepositoryDigest, error) {
	loc, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = loc.Ref
	}
	log := logger.WithComponent("github_ingestor").WithField("repo", loc.Owner+"/"+loc.Name)

	// 1. 确定 ref
	if ref == "" {
		var repo *github.Repository
		err := common.Do(ctx, func() error {
			var apiErr error
			repo, _, apiErr = i.client.Repositories.Get(ctx, loc.Owner, loc.Name)
			return apiErr
		}, i.retry...)
		if err != nil {
			return nil, classify(err, "获取仓库信息失败")
		}
		ref = repo.GetDefaultBranch()
	}

	// 2. 递归获取文件树
	var tree *github.Tree
	err = common.Do(ctx, func() error {
		var apiErr error
		tree, _, apiErr = i.client.Git.GetTree(ctx, loc.Owner, loc.Name, ref, true)
		return apiErr
	}, i.retry...)
	if err != nil {
		return nil, classify(err, "获取文件树失败")
	}
	if tree.GetTruncated() {
		log.Warn("GitHub 返回的文件树被截断，只使用已返回的部分")
	}

	var nodes []treeNode
	var candidates []candidate
	for _, e := range tree.Entries {
		nodes = append(nodes, treeNode{path: e.GetPath(), isDir: e.GetType() == "tree"})
		if e.GetType() != "blob" {
			continue
		}
		if i.policy.eligible(e.GetPath(), e.GetSize()) {
			candidates = append(candidates, candidate{path: e.GetPath(), sha: e.GetSHA(), size: e.GetSize()})
		}
	}
	if len(candidates) == 0 {
		return nil, common.NewError(common.ErrCodeIngestEmpty, fmt.Sprintf("%s/%s@%s 没有可分析的文件", loc.Owner, loc.Name, ref))
	}
	sortCandidates(candidates)

	digest := &domain.RepositoryDigest{
		SourceURL: repoURL,
		Ref:       ref,
	}
	digest.Tree, digest.TreeOmitted = clampLines(renderTree(nodes, i.policy.TreeDepth), i.policy.BudgetBytes/10)

	// 3. 最近提交，失败不影响整体
	commits, err := i.recentCommits(ctx, loc, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classify(ctx.Err(), "获取提交记录被中断")
		}
		log.WithError(err).Warn("获取提交记录失败，摘要中省略")
	}
	digest.Commits, _ = clampLines(commits, i.policy.BudgetBytes/20)

	remaining := i.policy.BudgetBytes - len(digest.RenderPreamble())
	if remaining <= 0 {
		digest.Tree, digest.TreeOmitted = nil, len(digest.Tree)+digest.TreeOmitted
		digest.Commits = nil
		remaining = i.policy.BudgetBytes - len(digest.RenderPreamble())
	}

	// 4. 按优先级预选，估算大小不超过剩余预算
	selected := i.preselect(candidates, remaining)

	// 5. 并发下载
	contents := make([][]byte, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for idx, c := range selected {
		g.Go(func() error {
			return common.Do(gctx, func() error {
				data, _, apiErr := i.client.Git.GetBlobRaw(gctx, loc.Owner, loc.Name, c.sha)
				if apiErr != nil {
					return apiErr
				}
				contents[idx] = data
				return nil
			}, i.retry...)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(err, "下载文件内容失败")
	}

	// 6. 组装，严格执行预算
	for idx, c := range selected {
		if isBinary(contents[idx]) {
			continue
		}
		text := strings.ToValidUTF8(string(contents[idx]), "�")
		entry := domain.FileEntry{Path: c.path, Content: text}
		if len(text) > i.policy.MaxFileBytes {
			entry.Content = cutUTF8(text, i.policy.MaxFileBytes)
			entry.Truncated = true
		}

		size := len(domain.RenderEntry(entry))
		if size > remaining {
			room := remaining - domain.EntryOverhead(c.path, true)
			if room < minTruncatedContent {
				continue
			}
			entry.Content = cutUTF8(entry.Content, room)
			entry.Truncated = true
			size = len(domain.RenderEntry(entry))
		}
		digest.FileEntries = append(digest.FileEntries, entry)
		remaining -= size
	}

	if len(digest.FileEntries) == 0 {
		return nil, common.NewError(common.ErrCodeIngestEmpty, fmt.Sprintf("%s/%s@%s 没有可分析的文本文件", loc.Owner, loc.Name, ref))
	}
	digest.Seal()

	log.WithFields(map[string]interface{}{
		"ref":        ref,
		"candidates": len(candidates),
		"files":      len(digest.FileEntries),
		"truncated":  digest.TruncatedCount(),
		"bytes":      digest.TotalSizeEstimate,
		"budget":     i.policy.BudgetBytes,
	}).Info("仓库摘要生成完成")
	return digest, nil
}

// preselect 只下载有机会进入摘要的文件，避免为大仓库拉取全部 blob
func (i *Ingestor) preselect(candidates []candidate, budget int) []candidate {
	var out []candidate
	used := 0
	for _, c := range candidates {
		if len(out) >= i.policy.MaxFiles {
			break
		}
		est := c.size
		if est > i.policy.MaxFileBytes {
			est = i.policy.MaxFileBytes
		}
		est += domain.EntryOverhead(c.path, true)
		if used+est > budget {
			if budget-used >= minTruncatedContent+domain.EntryOverhead(c.path, true) {
				out = append(out, c)
			}
			break
		}
		used += est
		out = append(out, c)
	}
	return out
}

// recentCommits 提交记录用于 version_control 维度
func (i *Ingestor) recentCommits(ctx context.Context, loc RepoRef, ref string) ([]string, error) {
	if i.policy.MaxCommits == 0 {
		return nil, nil
	}
	var commits []*github.RepositoryCommit
	err := common.Do(ctx, func() error {
		var apiErr error
		commits, _, apiErr = i.client.Repositories.ListCommits(ctx, loc.Owner, loc.Name, &github.CommitsListOptions{
			SHA:         ref,
			ListOptions: github.ListOptions{PerPage: i.policy.MaxCommits},
		})
		return apiErr
	}, i.retry...)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		sha := c.GetSHA()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		msg, _, _ := strings.Cut(c.GetCommit().GetMessage(), "\n")
		author := c.GetCommit().GetAuthor()
		lines = append(lines, fmt.Sprintf("%s %s %s: %s",
			sha, author.GetDate().Format("2006-01-02"), author.GetName(), strings.TrimSpace(msg)))
	}
	return lines, nil
}

// cutUTF8 截断到不超过 n 字节，且不拆开多字节字符
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// isRetryable 只重试 5xx、二级限流和网络抖动；主限流要等到窗口重置，重试无意义
func isRetryable(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return common.IsTransient(err)
}

// classify 把 GitHub 错误映射到 ingest 错误码
func classify(err error, msg string) error {
	if errors.Is(err, context.Canceled) {
		return common.WrapError(common.ErrCodeCancelled, msg, err)
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return common.WrapError(common.ErrCodeIngestUnavailable, msg+": 仓库不存在或无权限访问", err)
		case http.StatusConflict:
			// GitHub 对空仓库返回 409 Git Repository is empty
			return common.WrapError(common.ErrCodeIngestEmpty, msg+": 仓库为空", err)
		}
	}
	return common.WrapError(common.ErrCodeIngestUnavailable, msg, err)
}
