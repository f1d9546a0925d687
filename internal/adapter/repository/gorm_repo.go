package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultListLimit = 20

// GormRepo 实现了 port.ResultStore 接口，只追加不更新
type GormRepo struct {
	db      *gorm.DB
	nowFunc func() time.Time
	newID   func() string
}

// NewGormRepo 使用已有连接，不做迁移
func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{
		db:      db,
		nowFunc: time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Open 根据 DSN 选择驱动：postgres:// 或 key=value 形式走 postgres，其余视为 sqlite 文件路径
func Open(dsn string) (*GormRepo, error) {
	if isPostgresDSN(dsn) {
		return NewPostgresRepo(dsn)
	}
	return NewSQLiteRepo(dsn)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*GormRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return migrated(db)
}

// NewSQLiteRepo 本地/开发环境使用。sqlite 只允许单写，连接池限制为 1，写入自然串行
func NewSQLiteRepo(path string) (*GormRepo, error) {
	if path == "" {
		path = "judge.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return migrated(db)
}

func migrated(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&domain.AnalysisRecord{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return NewGormRepo(db), nil
}

// Close 关闭底层连接
func (r *GormRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 总是插入新行并分配新 ID，同一 repo_url 的并发提交互不影响
func (r *GormRepo) Save(ctx context.Context, rec *domain.AnalysisRecord) (string, error) {
	rec.ID = r.newID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.nowFunc().UTC()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", common.WrapError(common.ErrCodeDatabase, "保存评审结果失败", err)
	}
	return rec.ID, nil
}

// Get 按 ID 查询
func (r *GormRepo) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.WrapError(common.ErrCodeNotFound, fmt.Sprintf("analysis %s not found", id), err)
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询评审结果失败", err)
	}
	return &rec, nil
}

// List 按创建时间倒序返回摘要
func (r *GormRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.AnalysisSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := r.db.WithContext(ctx).
		Model(&domain.AnalysisRecord{}).
		Select("id", "repo_url", "overall_score", "created_at")
	if filter.RepoURL != "" {
		q = q.Where("repo_url = ?", filter.RepoURL)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	summaries := []domain.AnalysisSummary{}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Scan(&summaries).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询评审列表失败", err)
	}
	return summaries, nil
}
