package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"
	"hackathon-judge/internal/port"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest 客户端提前断开，沿用 nginx 的 499
const StatusClientClosedRequest = 499

// Handler 把 AnalysisService 暴露为 JSON API
type Handler struct {
	service port.AnalysisService
	// 单次评审的整体超时，0 表示只受客户端连接控制
	submitTimeout time.Duration
}

func NewHandler(service port.AnalysisService, submitTimeout time.Duration) *Handler {
	return &Handler{service: service, submitTimeout: submitTimeout}
}

// NewRouter 注册路由与中间件
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(RequestLogger())
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/analyses", h.SubmitAnalysis)
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/:id", h.GetAnalysis)
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SubmitAnalysis POST /api/v1/analyses，同步执行完整评审
func (h *Handler) SubmitAnalysis(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, common.WrapError(common.ErrCodeInvalidInput, "invalid JSON body", err))
		return
	}

	ctx := c.Request.Context()
	if h.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.submitTimeout)
		defer cancel()
	}

	rec, err := h.service.SubmitAnalysis(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetAnalysis GET /api/v1/analyses/:id
func (h *Handler) GetAnalysis(c *gin.Context) {
	rec, err := h.service.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListAnalyses GET /api/v1/analyses?repo_url=&limit=&offset=
func (h *Handler) ListAnalyses(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		writeError(c, common.NewError(common.ErrCodeInvalidInput, "limit must be a non-negative integer"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		writeError(c, common.NewError(common.ErrCodeInvalidInput, "offset must be a non-negative integer"))
		return
	}

	items, err := h.service.ListAnalyses(c.Request.Context(), domain.ListFilter{
		RepoURL: c.Query("repo_url"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// StatusFor 错误码到 HTTP 状态码
func StatusFor(code string) int {
	switch code {
	case common.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case common.ErrCodeNotFound:
		return http.StatusNotFound
	case common.ErrCodeIngestUnavailable, common.ErrCodeIngestEmpty:
		return http.StatusUnprocessableEntity
	case common.ErrCodeScoringUnavailable:
		return http.StatusServiceUnavailable
	case common.ErrCodeScoringTimeout:
		return http.StatusGatewayTimeout
	case common.ErrCodeScoringRejected, common.ErrCodeMalformedScoreResponse, common.ErrCodeNoScoresToAggregate:
		return http.StatusBadGateway
	case common.ErrCodeCancelled:
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := common.CodeOf(err)
	status := StatusFor(code)

	body := gin.H{"code": code, "error": err.Error()}
	var mErr *common.MalformedResponseError
	if errors.As(err, &mErr) {
		body["failures"] = mErr.Failures
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err, "httpapi").WithField("path", c.Request.URL.Path).Error("request failed")
		if status == http.StatusInternalServerError {
			// 内部错误不把细节返回给调用方
			body["error"] = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, body)
}
