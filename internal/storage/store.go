// Package storage 持久化捕获历史。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"cdpsnap/internal/logger"
	"cdpsnap/pkg/model"
)

// 记录状态
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrRecordNotFound 历史记录不存在
var ErrRecordNotFound = errors.New("capture record not found")

// CaptureRecord 一次捕获的历史记录，成功与失败都会写入
type CaptureRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	Target        string `gorm:"index"`
	PageURL       string
	Marker        string
	Status        string `gorm:"size:16"`
	Stage         string `gorm:"size:32"`
	Error         string
	Nodes         int
	MarkupBytes   int
	ApproxTokens  int
	Base64Images  int
	Base64Bytes   int
	SVGBytes      int
	StyleBytes    int
	RuleBytes     int
	VariableBytes int
	Width         float64
	Height        float64
	LayoutAuto    bool
	DurationMS    int64
	CreatedAt     time.Time `gorm:"index"`
}

// ApplyResult 填充成功结果中的统计数据
func (r *CaptureRecord) ApplyResult(res *model.CaptureResult) {
	if res == nil {
		return
	}
	r.Status = StatusOK
	r.Nodes = res.Nodes
	r.MarkupBytes = res.Bloat.TotalBytes
	r.ApproxTokens = res.Bloat.ApproxTokens
	r.Base64Images = res.Bloat.Base64Images
	r.Base64Bytes = res.Bloat.Base64Bytes
	r.SVGBytes = res.Bloat.SVGBytes
	r.StyleBytes = res.Bloat.StyleBytes
	r.RuleBytes = res.Bloat.RuleBytes
	r.VariableBytes = res.Bloat.VariableBytes
	r.Width = res.Layout.Width
	r.Height = res.Layout.Height
	r.LayoutAuto = res.Layout.Auto
}

// ApplyError 记录失败原因与阶段
func (r *CaptureRecord) ApplyError(err error) {
	if err == nil {
		return
	}
	r.Status = StatusFailed
	r.Error = err.Error()
	var ce *model.CaptureError
	if errors.As(err, &ce) {
		r.Stage = ce.Stage
	}
}

// Store 捕获历史存储
type Store struct {
	db *gorm.DB
}

// Open 打开 sqlite 数据库并迁移表结构，prefix 为表名前缀
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewSQLLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&CaptureRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save 写入记录
func (s *Store) Save(ctx context.Context, rec *CaptureRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// List 按时间倒序返回最近的记录，limit<=0 时返回全部
func (s *Store) List(ctx context.Context, limit int) ([]CaptureRecord, error) {
	var out []CaptureRecord
	q := s.db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get 按 ID 查询
func (s *Store) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	var rec CaptureRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
