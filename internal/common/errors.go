package common

import (
	"errors"
	"fmt"
	"strings"
)

// AppError 应用级错误结构
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(err, ErrIngestEmpty) 对任意包装层级生效
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WrapError 包装错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// 错误码常量
const (
	ErrCodeIngestUnavailable      = "INGEST_UNAVAILABLE"
	ErrCodeIngestEmpty            = "INGEST_EMPTY"
	ErrCodeScoringUnavailable     = "SCORING_UNAVAILABLE"
	ErrCodeScoringTimeout         = "SCORING_TIMEOUT"
	ErrCodeScoringRejected        = "SCORING_REJECTED"
	ErrCodeMalformedScoreResponse = "MALFORMED_SCORE_RESPONSE"
	ErrCodeNoScoresToAggregate    = "NO_SCORES_TO_AGGREGATE"
	ErrCodeDatabase               = "DATABASE_ERROR"
	ErrCodeNotification           = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeCancelled              = "CANCELLED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// 哨兵错误，仅用于 errors.Is 比较
var (
	ErrIngestUnavailable      = &AppError{Code: ErrCodeIngestUnavailable, Message: "repository unavailable"}
	ErrIngestEmpty            = &AppError{Code: ErrCodeIngestEmpty, Message: "no eligible files"}
	ErrScoringUnavailable     = &AppError{Code: ErrCodeScoringUnavailable, Message: "scoring provider unavailable"}
	ErrScoringTimeout         = &AppError{Code: ErrCodeScoringTimeout, Message: "scoring deadline exceeded"}
	ErrScoringRejected        = &AppError{Code: ErrCodeScoringRejected, Message: "scoring request rejected"}
	ErrMalformedScoreResponse = &AppError{Code: ErrCodeMalformedScoreResponse, Message: "malformed score response"}
	ErrNoScoresToAggregate    = &AppError{Code: ErrCodeNoScoresToAggregate, Message: "no scores to aggregate"}
	ErrDatabase               = &AppError{Code: ErrCodeDatabase, Message: "database failure"}
	ErrInvalidInput           = &AppError{Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrNotFound               = &AppError{Code: ErrCodeNotFound, Message: "not found"}
	ErrCancelled              = &AppError{Code: ErrCodeCancelled, Message: "cancelled"}
)

// CriterionFailure 描述单个评分维度未通过校验的原因
type CriterionFailure struct {
	Criterion string `json:"criterion"`
	Reason    string `json:"reason"`
}

// MalformedResponseError 模型输出不符合约定的 schema，列出所有失败的维度
type MalformedResponseError struct {
	Failures []CriterionFailure
	Err      error
}

func (e *MalformedResponseError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Criterion+": "+f.Reason)
	}
	msg := fmt.Sprintf("[%s] %d invalid criteria (%s)", ErrCodeMalformedScoreResponse, len(e.Failures), strings.Join(parts, "; "))
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == ErrCodeMalformedScoreResponse
}

// FailedCriteria 返回失败维度名列表（保持顺序）
func (e *MalformedResponseError) FailedCriteria() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Criterion)
	}
	return out
}

// CodeOf 返回错误链上第一个可识别的错误码，未知错误返回 ErrCodeInternal
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return ErrCodeMalformedScoreResponse
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
