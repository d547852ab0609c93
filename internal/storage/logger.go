package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cdpsnap/internal/ctxkeys"
	"cdpsnap/internal/logger"
)

// sqlLogger 把 gorm 的日志接到项目 Logger 上，每条带上当前捕获 ID
type sqlLogger struct {
	out       logger.Logger
	level     gormlogger.LogLevel
	slow      time.Duration
	quietMiss bool
}

// NewSQLLogger 默认只输出 Warn 及以上，慢查询阈值 200ms，忽略 ErrRecordNotFound
func NewSQLLogger(l logger.Logger) gormlogger.Interface {
	return &sqlLogger{out: l, level: gormlogger.Warn, slow: 200 * time.Millisecond, quietMiss: true}
}

func (s *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *s
	cp.level = level
	return &cp
}

func (s *sqlLogger) Info(ctx context.Context, msg string, data ...any) {
	s.emit(ctx, gormlogger.Info, s.out.Info, msg, data)
}

func (s *sqlLogger) Warn(ctx context.Context, msg string, data ...any) {
	s.emit(ctx, gormlogger.Warn, s.out.Warn, msg, data)
}

func (s *sqlLogger) Error(ctx context.Context, msg string, data ...any) {
	s.emit(ctx, gormlogger.Error, s.out.Error, msg, data)
}

func (s *sqlLogger) emit(ctx context.Context, at gormlogger.LogLevel, fn func(string, ...any), msg string, data []any) {
	if s.level < at {
		return
	}
	fn(msg, append([]any{"capture", traceID(ctx)}, data...)...)
}

// Trace 每条 SQL 执行后调用
func (s *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if s.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	if err != nil && s.quietMiss && errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}

	var (
		fn  func(string, ...any)
		msg string
	)
	switch {
	case err != nil && s.level >= gormlogger.Error:
		fn, msg = s.out.Error, "SQL执行错误"
	case s.slow > 0 && elapsed > s.slow && s.level >= gormlogger.Warn:
		fn, msg = s.out.Warn, "慢SQL"
	case s.level >= gormlogger.Info:
		fn, msg = s.out.Debug, "SQL执行"
	default:
		return
	}

	query, rows := fc()
	kv := []any{"capture", traceID(ctx), "sql", query, "rows", rows, "ms", elapsed.Milliseconds()}
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	fn(msg, kv...)
}

func traceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxkeys.TraceIDKey{}).(string)
	return id
}
