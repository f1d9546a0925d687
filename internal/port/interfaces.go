package port

import (
	"context"

	"hackathon-judge/internal/domain"
)

// Ingestor (采集员): 把远程仓库压缩成有界的文本摘要
type Ingestor interface {
	// ref 为空时使用默认分支
	Ingest(ctx context.Context, repoURL, ref string) (*domain.RepositoryDigest, error)
}

// CompletionRequest 单次模型调用参数
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Completer 具体的 LLM 供应商 (Gemini / Groq / Anthropic)
// 失败时应返回 *common.ProviderError，方便上层判断能否重试
type Completer interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Scorer (评委): 发送 prompt，返回模型原始文本，负责超时与重试
type Scorer interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// ResultStore (档案管理员): 评审结果只追加不修改
type ResultStore interface {
	Save(ctx context.Context, rec *domain.AnalysisRecord) (string, error)
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.AnalysisSummary, error)
}

// Notifier (信使): 评审完成后推送到飞书
type Notifier interface {
	Notify(ctx context.Context, rec *domain.AnalysisRecord) error
}

// AnalysisService 对外暴露的三个操作，HTTP 和 CLI 都依赖它
type AnalysisService interface {
	SubmitAnalysis(ctx context.Context, req domain.SubmitRequest) (*domain.AnalysisRecord, error)
	GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter domain.ListFilter) ([]domain.AnalysisSummary, error)
}
