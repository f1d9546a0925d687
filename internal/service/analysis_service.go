package service

import (
	"context"
	"math"
	"strings"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"
	"hackathon-judge/internal/port"
	"hackathon-judge/internal/prompt"
	"hackathon-judge/internal/verdict"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultIngestTimeout = 60 * time.Second
	notifyTimeout        = 10 * time.Second
	maxListLimit         = 100
)

// AnalysisService 串起一次评审：采集 → prompt → 评分 → 校验 → 汇总 → 入库
// 每次调用相互独立，唯一共享的可变状态是 ResultStore
type AnalysisService struct {
	ingestor  port.Ingestor
	scorer    port.Scorer
	store     port.ResultStore
	notifier  port.Notifier
	rubric    *domain.Rubric
	builder   *prompt.Builder
	validator *verdict.Validator
	validate  *validator.Validate

	ingestTimeout time.Duration
	nowFunc       func() time.Time
}

// NewAnalysisService notifier 可以为 nil；rubric 为 nil 时使用默认 rubric
func NewAnalysisService(
	ingestor port.Ingestor,
	scorer port.Scorer,
	store port.ResultStore,
	notifier port.Notifier,
	rubric *domain.Rubric,
	ingestTimeout time.Duration,
) *AnalysisService {
	if rubric == nil {
		rubric = domain.DefaultRubric()
	}
	if ingestTimeout <= 0 {
		ingestTimeout = defaultIngestTimeout
	}
	return &AnalysisService{
		ingestor:      ingestor,
		scorer:        scorer,
		store:         store,
		notifier:      notifier,
		rubric:        rubric,
		builder:       prompt.NewBuilder(rubric),
		validator:     verdict.NewValidator(rubric),
		validate:      validator.New(),
		ingestTimeout: ingestTimeout,
		nowFunc:       time.Now,
	}
}

// Rubric 当前使用的评分标准
func (s *AnalysisService) Rubric() *domain.Rubric {
	return s.rubric
}

// SubmitAnalysis 执行完整评审流程。任何一步失败都返回带错误码的错误，不写入任何记录
func (s *AnalysisService) SubmitAnalysis(ctx context.Context, req domain.SubmitRequest) (*domain.AnalysisRecord, error) {
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	req.Ref = strings.TrimSpace(req.Ref)
	if err := s.validate.Struct(req); err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "invalid analysis request", err)
	}

	runID := uuid.NewString()
	log := logger.WithAnalysis(runID, req.RepoURL)
	start := time.Now()

	// 1. 采集
	ictx, cancel := context.WithTimeout(ctx, s.ingestTimeout)
	digest, err := s.ingestor.Ingest(ictx, req.RepoURL, req.Ref)
	cancel()
	if err != nil {
		log.WithError(err).WithField("code", common.CodeOf(err)).Warn("仓库采集失败")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"files": len(digest.FileEntries),
		"bytes": digest.TotalSizeEstimate,
	}).Info("仓库采集完成")

	// 2. 构造 prompt
	p := s.builder.Build(digest, req.ProblemStatement)
	log.Debugf("prompt: %s", p)

	// 3. 评分
	raw, err := s.scorer.Score(ctx, p)
	if err != nil {
		log.WithError(err).WithField("code", common.CodeOf(err)).Warn("模型评分失败")
		return nil, err
	}

	// 4. 校验
	v, err := s.validator.Normalize(raw)
	if err != nil {
		log.WithError(err).Warn("模型输出不符合约定")
		log.Debugf("raw response: %s", raw)
		return nil, err
	}

	// 5. 汇总
	overall, err := verdict.Aggregate(v.Scores, s.rubric.Precision)
	if err != nil {
		return nil, err
	}
	if v.ReportedOverall != nil && math.Abs(*v.ReportedOverall-overall) >= 0.05 {
		log.WithFields(logrus.Fields{
			"reported": *v.ReportedOverall,
			"computed": overall,
		}).Info("模型自报总分与计算结果不一致，以计算结果为准")
	}

	// 取消后不落库
	if err := ctx.Err(); err != nil {
		return nil, common.WrapError(common.ErrCodeCancelled, "analysis cancelled before save", err)
	}

	// 6. 入库
	rec := &domain.AnalysisRecord{
		RepoURL:          req.RepoURL,
		Ref:              digest.Ref,
		ProblemStatement: req.ProblemStatement,
		RubricVersion:    s.rubric.Version,
		Scores:           v.Scores,
		OverallScore:     overall,
		Narrative:        v.Narrative,
		CreatedAt:        s.nowFunc().UTC(),
	}
	id, err := s.store.Save(ctx, rec)
	if err != nil {
		log.WithError(err).Error("保存评审结果失败")
		return nil, err
	}
	rec.ID = id

	log.WithFields(logrus.Fields{
		"analysis_id":   id,
		"overall_score": overall,
		"duration":      time.Since(start).String(),
	}).Info("评审完成")

	s.notify(ctx, rec)
	return rec, nil
}

// notify 推送失败只记日志，不影响已保存的记录
func (s *AnalysisService) notify(ctx context.Context, rec *domain.AnalysisRecord) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, rec); err != nil {
		logger.WithError(err, "notifier").WithField("analysis_id", rec.ID).Warn("推送评审结果失败")
	}
}

// GetAnalysis 查询单条记录
func (s *AnalysisService) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "analysis id is required")
	}
	return s.store.Get(ctx, id)
}

// ListAnalyses 最近的评审记录，最新的在前
func (s *AnalysisService) ListAnalyses(ctx context.Context, filter domain.ListFilter) ([]domain.AnalysisSummary, error) {
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.RepoURL = strings.TrimSpace(filter.RepoURL)
	return s.store.List(ctx, filter)
}
