package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService 模拟 AnalysisService 接口
type MockService struct {
	mock.Mock
}

func (m *MockService) SubmitAnalysis(ctx context.Context, req domain.SubmitRequest) (*domain.AnalysisRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockService) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockService) ListAnalyses(ctx context.Context, filter domain.ListFilter) ([]domain.AnalysisSummary, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.AnalysisSummary), args.Error(1)
}

func byURL(url string) interface{} {
	return mock.MatchedBy(func(req domain.SubmitRequest) bool { return req.RepoURL == url })
}

func TestBatchAnalyzer_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		urls       []string
		setupMock  func(*MockService)
		wantFailed []bool
	}{
		{
			name: "全部成功",
			urls: []string{"https://github.com/a/1", "https://github.com/a/2", "https://github.com/a/3"},
			setupMock: func(m *MockService) {
				for i, u := range []string{"https://github.com/a/1", "https://github.com/a/2", "https://github.com/a/3"} {
					m.On("SubmitAnalysis", mock.Anything, byURL(u)).
						Return(&domain.AnalysisRecord{ID: fmt.Sprintf("id-%d", i), RepoURL: u, OverallScore: 7}, nil)
				}
			},
			wantFailed: []bool{false, false, false},
		},
		{
			name: "部分失败不影响其他仓库",
			urls: []string{"https://github.com/a/ok", "https://github.com/a/bad"},
			setupMock: func(m *MockService) {
				m.On("SubmitAnalysis", mock.Anything, byURL("https://github.com/a/ok")).
					Return(&domain.AnalysisRecord{ID: "id-ok", RepoURL: "https://github.com/a/ok"}, nil)
				m.On("SubmitAnalysis", mock.Anything, byURL("https://github.com/a/bad")).
					Return(nil, common.WrapError(common.ErrCodeIngestEmpty, "no files", errors.New("empty")))
			},
			wantFailed: []bool{false, true},
		},
		{
			name:       "空列表",
			urls:       []string{},
			setupMock:  func(m *MockService) {},
			wantFailed: []bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			a := NewBatchAnalyzer(svc)
			a.SetOutput(io.Discard)
			a.SetMaxGoroutines(2)

			results := a.Analyze(context.Background(), tt.urls, "", "")
			require.Len(t, results, len(tt.urls))
			for i, r := range results {
				assert.Equal(t, tt.urls[i], r.RepoURL)
				assert.Equal(t, tt.wantFailed[i], r.Err != nil)
				if r.Err == nil {
					assert.Equal(t, tt.urls[i], r.Record.RepoURL)
				}
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestBatchAnalyzer_OrderPreservedUnderConcurrency(t *testing.T) {
	svc := new(MockService)
	var urls []string
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://github.com/o/r%d", i)
		urls = append(urls, u)
		// 前面的任务故意更慢
		delay := time.Duration(12-i) * time.Millisecond
		svc.On("SubmitAnalysis", mock.Anything, byURL(u)).
			After(delay).
			Return(&domain.AnalysisRecord{ID: "id-" + u, RepoURL: u}, nil)
	}

	a := NewBatchAnalyzer(svc)
	a.SetOutput(nil)
	a.SetMaxGoroutines(4)

	results := a.Analyze(context.Background(), urls, "problem", "main")
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, "id-"+urls[i], r.Record.ID)
	}
}

func TestBatchAnalyzer_ConcurrencyBound(t *testing.T) {
	var running, peak atomic.Int32
	svc := new(MockService)
	svc.On("SubmitAnalysis", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}).
		Return(&domain.AnalysisRecord{ID: "x"}, nil)

	a := NewBatchAnalyzer(svc)
	a.SetOutput(io.Discard)
	a.SetMaxGoroutines(3)

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://github.com/o/r%d", i)
	}
	a.Analyze(context.Background(), urls, "", "")
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchAnalyzer_CancelledSkipsRemaining(t *testing.T) {
	svc := new(MockService)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewBatchAnalyzer(svc)
	a.SetOutput(io.Discard)

	results := a.Analyze(ctx, []string{"https://github.com/o/a", "https://github.com/o/b"}, "", "")
	for _, r := range results {
		assert.Equal(t, common.ErrCodeCancelled, common.CodeOf(r.Err))
	}
	svc.AssertNotCalled(t, "SubmitAnalysis", mock.Anything, mock.Anything)
}

func TestBatchAnalyzer_SetMaxGoroutines(t *testing.T) {
	a := NewBatchAnalyzer(new(MockService))
	assert.Equal(t, 3, a.maxGoroutines)

	a.SetMaxGoroutines(0)
	assert.Equal(t, 3, a.maxGoroutines)

	a.SetMaxGoroutines(8)
	assert.Equal(t, 8, a.maxGoroutines)
}
