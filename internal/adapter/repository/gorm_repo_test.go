package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupMockDB 创建一个模拟的 postgres 连接
func setupMockDB(t *testing.T) (*GormRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := NewGormRepo(gormDB)
	repo.newID = func() string { return "fixed-id" }
	return repo, mock
}

// setupSQLite 内存 sqlite，真实执行 SQL
func setupSQLite(t *testing.T) *GormRepo {
	repo, err := NewSQLiteRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleRecord(repoURL string) *domain.AnalysisRecord {
	return &domain.AnalysisRecord{
		RepoURL:       repoURL,
		RubricVersion: "v1",
		Scores: domain.ScoreSet{
			domain.CriterionCodeQuality: {Criterion: domain.CriterionCodeQuality, Score: 8, Justification: "clean"},
			domain.CriterionEfficiency:  {Criterion: domain.CriterionEfficiency, Score: 6, Justification: "ok"},
		},
		OverallScore: 7.0,
		Narrative:    domain.Narrative{SummaryAssessment: "solid", Conclusion: "good"},
	}
}

func TestGormRepo_Save_Postgres(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantCode  string
	}{
		{
			name: "成功插入",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "analyses"`)).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "数据库错误",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "analyses"`)).
					WillReturnError(errors.New("connection lost"))
				mock.ExpectRollback()
			},
			wantCode: common.ErrCodeDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t)
			tt.setupMock(mock)

			id, err := repo.Save(context.Background(), sampleRecord("https://github.com/o/r"))
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, common.CodeOf(err))
				assert.Empty(t, id)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "fixed-id", id)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormRepo_Get_Postgres(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("找到记录", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		rows := sqlmock.NewRows([]string{"id", "repo_url", "ref", "rubric_version", "scores", "overall_score", "summary_assessment", "created_at"}).
			AddRow("id-1", "https://github.com/o/r", "main", "v1", `{"code_quality":{"score":8,"justification":"clean"}}`, 8.0, "solid", now)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "analyses" WHERE id = $1`)).WillReturnRows(rows)

		rec, err := repo.Get(context.Background(), "id-1")
		require.NoError(t, err)
		assert.Equal(t, "id-1", rec.ID)
		assert.Equal(t, 8, rec.Scores[domain.CriterionCodeQuality].Score)
		assert.Equal(t, domain.CriterionCodeQuality, rec.Scores[domain.CriterionCodeQuality].Criterion)
		assert.Equal(t, "solid", rec.SummaryAssessment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("记录不存在", func(t *testing.T) {
		repo, mock := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "analyses" WHERE id = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})
}

func TestGormRepo_List_Postgres(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "repo_url", "overall_score", "created_at"}).
		AddRow("b", "https://github.com/o/r", 7.5, now).
		AddRow("a", "https://github.com/o/r", 6.0, now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM "analyses" WHERE repo_url = \$1 ORDER BY created_at DESC, id DESC LIMIT`).
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), domain.ListFilter{RepoURL: "https://github.com/o/r", Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 7.5, got[0].OverallScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepo_SQLite_RoundTrip(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	in := sampleRecord("https://github.com/o/r")
	in.ProblemStatement = "todo app"
	id, err := repo.Save(ctx, in)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.RepoURL, got.RepoURL)
	assert.Equal(t, in.Scores, got.Scores)
	assert.Equal(t, in.Narrative, got.Narrative)
	assert.Equal(t, 7.0, got.OverallScore)
	assert.Equal(t, "todo app", got.ProblemStatement)

	_, err = repo.Get(ctx, "nope")
	assert.Equal(t, common.ErrCodeNotFound, common.CodeOf(err))
}

func TestGormRepo_SQLite_ListOrderAndFilter(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	urls := []string{"https://github.com/a/x", "https://github.com/b/y", "https://github.com/a/x"}
	var ids []string
	for i, u := range urls {
		rec := sampleRecord(u)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		id, err := repo.Save(ctx, rec)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := repo.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	filtered, err := repo.List(ctx, domain.ListFilter{RepoURL: "https://github.com/a/x"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	page, err := repo.List(ctx, domain.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	empty, err := repo.List(ctx, domain.ListFilter{RepoURL: "https://github.com/none/z"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestGormRepo_SQLite_ConcurrentSaveSameRepo(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = repo.Save(ctx, sampleRecord("https://github.com/same/repo"))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], fmt.Sprintf("save %d", i))
		assert.False(t, seen[ids[i]])
		seen[ids[i]] = true
	}

	list, err := repo.List(ctx, domain.ListFilter{RepoURL: "https://github.com/same/repo", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, isPostgresDSN("postgres://u:p@localhost:5432/db"))
	assert.True(t, isPostgresDSN("host=localhost user=u dbname=db"))
	assert.False(t, isPostgresDSN("judge.db"))
	assert.False(t, isPostgresDSN(":memory:"))
}
