package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 结构化日志接口，kv 为交替的键值对
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志输出配置
type Options struct {
	Level      string
	Writer     []string // console, file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type zlog struct {
	l zerolog.Logger
}

// New 根据配置创建 zerolog 实现
func New(opts Options) Logger {
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	for _, w := range opts.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		case "file":
			if opts.File == "" {
				continue
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return &zlog{l: zl}
}

// NewWriter 输出到指定 writer，测试中用于断言日志内容
func NewWriter(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.DebugLevel
	}
	return &zlog{l: zerolog.New(w).Level(lvl)}
}

// NewNop 丢弃所有日志
func NewNop() Logger {
	return &zlog{l: zerolog.Nop()}
}

func (z *zlog) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }

func (z *zlog) Info(msg string, kv ...any) { z.l.Info().Fields(kv).Msg(msg) }

func (z *zlog) Warn(msg string, kv ...any) { z.l.Warn().Fields(kv).Msg(msg) }

func (z *zlog) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }

func (z *zlog) Err(err error, msg string, kv ...any) {
	z.l.Error().Err(err).Fields(kv).Msg(msg)
}

func (z *zlog) With(kv ...any) Logger {
	return &zlog{l: z.l.With().Fields(kv).Logger()}
}
