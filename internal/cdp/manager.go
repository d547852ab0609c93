package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"

	"cdpsnap/internal/inspect"
	"cdpsnap/internal/logger"
	"cdpsnap/pkg/model"
)

// Conn 已建立的目标连接
type Conn interface {
	inspect.Inspector
	URL() string
	Alive() bool
	Close() error
}

// DialFunc 建立到目标的连接；target 为空时选择第一个页面
type DialFunc func(ctx context.Context, target model.TargetID) (Conn, error)

// Attachment 一次独占附加，由 Manager.Detach 释放
type Attachment struct {
	Conn
	Target model.TargetID
}

type targetSession struct {
	conn    Conn
	pending bool
}

func (ts *targetSession) alive() bool {
	return ts.pending || (ts.conn != nil && ts.conn.Alive())
}

// Manager 管理目标附加表：每个目标同一时刻最多一个附加
type Manager struct {
	devtoolsURL string
	timeout     time.Duration
	log         logger.Logger
	dial        DialFunc

	targetsMu sync.Mutex
	targets   map[model.TargetID]*targetSession
}

// New 创建管理器，timeout 为单条命令超时
func New(devtoolsURL string, timeout time.Duration, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	m := &Manager{
		devtoolsURL: devtoolsURL,
		timeout:     timeout,
		log:         l,
		targets:     make(map[model.TargetID]*targetSession),
	}
	m.dial = m.dialDevTools
	return m
}

// NewWithDialer 使用自定义连接方式创建管理器
func NewWithDialer(dial DialFunc, l logger.Logger) *Manager {
	m := New("", 0, l)
	m.dial = dial
	return m
}

// ListTargets 列出浏览器中的页面目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		id := model.TargetID(t.ID)
		ts, ok := m.targets[id]
		out = append(out, model.TargetInfo{
			ID:       id,
			Type:     string(t.Type),
			URL:      t.URL,
			Title:    t.Title,
			Attached: ok && ts.alive(),
		})
	}
	return out, nil
}

// Attach 独占附加目标。已有活动附加时返回 ErrAlreadyAttached；
// 残留的失效附加会先被分离，连接失败时重试一次
func (m *Manager) Attach(ctx context.Context, target model.TargetID) (*Attachment, error) {
	m.targetsMu.Lock()
	if cur, ok := m.targets[target]; ok {
		if cur.alive() {
			m.targetsMu.Unlock()
			return nil, fmt.Errorf("%w: %s", model.ErrAlreadyAttached, target)
		}
		m.log.Warn("分离残留的失效附加", "target", string(target))
		delete(m.targets, target)
		m.closeConn(target, cur.conn)
	}
	m.targets[target] = &targetSession{pending: true}
	m.targetsMu.Unlock()

	conn, err := m.dial(ctx, target)
	if err != nil {
		m.log.Warn("附加目标失败，重试", "target", string(target), "error", err)
		conn, err = m.dial(ctx, target)
	}

	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	if err != nil {
		delete(m.targets, target)
		return nil, fmt.Errorf("%w: %s: %v", model.ErrAttachFailed, target, err)
	}
	m.targets[target] = &targetSession{conn: conn}
	m.log.Info("已附加目标", "target", string(target), "url", conn.URL())
	return &Attachment{Conn: conn, Target: target}, nil
}

// Detach 分离目标，可重复调用
func (m *Manager) Detach(a *Attachment) error {
	if a == nil {
		return nil
	}
	m.targetsMu.Lock()
	if cur, ok := m.targets[a.Target]; ok && cur.conn == a.Conn {
		delete(m.targets, a.Target)
	}
	m.targetsMu.Unlock()

	if err := a.Close(); err != nil {
		m.log.Warn("关闭连接失败", "target", string(a.Target), "error", err)
		return err
	}
	m.log.Info("已分离目标", "target", string(a.Target))
	return nil
}

// IsAttached 目标当前是否持有活动附加
func (m *Manager) IsAttached(target model.TargetID) bool {
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	ts, ok := m.targets[target]
	return ok && ts.alive()
}

// Close 分离所有目标
func (m *Manager) Close() error {
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	var errs []error
	for id, ts := range m.targets {
		delete(m.targets, id)
		if ts.conn != nil {
			if err := ts.conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeConn(target model.TargetID, c Conn) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		m.log.Debug("关闭失效连接失败", "target", string(target), "error", err)
	}
}

func (m *Manager) dialDevTools(ctx context.Context, target model.TargetID) (Conn, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, err
	}
	var sel *devtool.Target
	for _, t := range targets {
		if target == "" && t.Type == devtool.Page {
			sel = t
			break
		}
		if string(t.ID) == string(target) {
			sel = t
			break
		}
	}
	if sel == nil {
		return nil, fmt.Errorf("no target %q", target)
	}
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return nil, err
	}
	return newSession(model.TargetID(sel.ID), sel.URL, conn, m.timeout), nil
}
