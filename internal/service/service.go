// Package service 组装配置、目标附加、捕获会话、捕获流程与历史存储。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cdpsnap/internal/cdp"
	"cdpsnap/internal/config"
	"cdpsnap/internal/ctxkeys"
	"cdpsnap/internal/handler"
	"cdpsnap/internal/logger"
	"cdpsnap/internal/session"
	"cdpsnap/internal/storage"
	"cdpsnap/pkg/model"
)

const eventBuffer = 256

// Options 服务依赖。Dial 为空时通过 DevTools 地址连接；Store 为空且配置了 DSN 时自动打开
type Options struct {
	Config *config.Config
	Logger logger.Logger
	Dial   cdp.DialFunc
	Store  *storage.Store
}

// Service 捕获服务
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	mgr      *cdp.Manager
	sessions *session.Manager
	handler  *handler.Handler
	store    *storage.Store
	events   chan model.Event
}

// New 创建服务
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	var mgr *cdp.Manager
	if opts.Dial != nil {
		mgr = cdp.NewWithDialer(opts.Dial, l)
	} else {
		mgr = cdp.New(cfg.DevTools.URL, cfg.CommandTimeout(), l)
	}

	store := opts.Store
	if store == nil && cfg.Sqlite.Dsn != "" {
		var err error
		if store, err = storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l); err != nil {
			return nil, err
		}
	}

	events := make(chan model.Event, eventBuffer)
	s := &Service{
		cfg:      cfg,
		log:      l,
		mgr:      mgr,
		sessions: session.NewManager(l),
		store:    store,
		events:   events,
	}
	s.handler = handler.New(handler.Config{
		MarkerAttribute:   cfg.Capture.MarkerAttribute,
		Concurrency:       cfg.Capture.Concurrency,
		SettleDelay:       cfg.SettleDelay(),
		FreezeStyleID:     cfg.Capture.FreezeStyleID,
		CleanupRetries:    cfg.Capture.CleanupRetries,
		CleanupTimeout:    cfg.CommandTimeout() * time.Duration(cfg.Capture.CleanupRetries+2),
		TruncateThreshold: cfg.Capture.TruncateThreshold,
		TruncateKeep:      cfg.Capture.TruncateKeep,
		Events:            events,
		Logger:            l,
	})
	return s, nil
}

// ListTargets 列出页面目标
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	return s.mgr.ListTargets(ctx)
}

// Capture 附加目标并捕获带 marker 的元素。目标为空时选择第一个页面。
// 附加在返回前一定会被分离
func (s *Service) Capture(ctx context.Context, target model.TargetID, marker string) (*model.CaptureResult, error) {
	if target == "" {
		t, err := s.firstPage(ctx)
		if err != nil {
			return nil, err
		}
		target = t
	}

	sess, err := s.sessions.Begin(target, marker)
	if err != nil {
		return nil, err
	}
	defer s.sessions.End(sess)

	ctx = context.WithValue(ctx, ctxkeys.TraceIDKey{}, string(sess.ID))
	rec := &storage.CaptureRecord{
		ID:        string(sess.ID),
		Target:    string(target),
		Marker:    marker,
		CreatedAt: sess.Started,
	}

	res, err := s.capture(ctx, sess, rec)
	rec.DurationMS = time.Since(sess.Started).Milliseconds()
	if err != nil {
		rec.ApplyError(err)
	} else {
		rec.ApplyResult(res)
	}
	s.record(ctx, rec)
	return res, err
}

func (s *Service) capture(ctx context.Context, sess *session.Session, rec *storage.CaptureRecord) (*model.CaptureResult, error) {
	att, err := s.mgr.Attach(ctx, sess.Target)
	if err != nil {
		s.handlerFailed(sess, err)
		return nil, err
	}
	defer func() {
		if derr := s.mgr.Detach(att); derr != nil {
			s.log.Warn("分离目标失败", "capture", string(sess.ID), "target", string(sess.Target), "error", derr)
		}
	}()
	rec.PageURL = att.URL()

	return s.handler.Capture(ctx, att.Conn, handler.Request{
		ID:      sess.ID,
		Target:  sess.Target,
		Marker:  sess.Marker,
		PageURL: att.URL(),
	})
}

// handlerFailed 附加失败时流程尚未开始，由服务补发失败事件
func (s *Service) handlerFailed(sess *session.Session, err error) {
	s.log.Err(err, "附加目标失败", "capture", string(sess.ID), "target", string(sess.Target))
	select {
	case s.events <- model.Event{
		Type:      model.EventCaptureFailed,
		Capture:   sess.ID,
		Target:    sess.Target,
		Stage:     "attach",
		Error:     err.Error(),
		Timestamp: time.Now().UnixMilli(),
	}:
	default:
	}
}

func (s *Service) record(ctx context.Context, rec *storage.CaptureRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("保存捕获记录失败", "capture", rec.ID, "error", err)
	}
}

func (s *Service) firstPage(ctx context.Context) (model.TargetID, error) {
	targets, err := s.mgr.ListTargets(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrAttachFailed, err)
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("%w: no page targets", model.ErrAttachFailed)
	}
	return targets[0].ID, nil
}

// History 最近的捕获记录
func (s *Service) History(ctx context.Context, limit int) ([]storage.CaptureRecord, error) {
	if s.store == nil {
		return nil, errors.New("history store disabled")
	}
	return s.store.List(ctx, limit)
}

// Events 捕获事件流，读取方可选
func (s *Service) Events() <-chan model.Event { return s.events }

// Close 分离所有目标并关闭存储
func (s *Service) Close() error {
	var errs []error
	if err := s.mgr.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
