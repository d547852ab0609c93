// Package session 记录每个目标上正在进行的捕获，同一目标同一时刻只允许一个捕获。
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cdpsnap/internal/logger"
	"cdpsnap/pkg/model"
)

// Session 一次捕获会话
type Session struct {
	ID      model.CaptureID
	Target  model.TargetID
	Marker  string
	Started time.Time
}

// New 创建带随机 ID 的会话
func New(target model.TargetID, marker string) *Session {
	return &Session{
		ID:      model.CaptureID(uuid.NewString()),
		Target:  target,
		Marker:  marker,
		Started: time.Now(),
	}
}

// Manager 捕获会话表，按目标索引
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.TargetID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.TargetID]*Session),
		log:      l,
	}
}

// Begin 为目标登记新会话，目标已有进行中的捕获时返回 ErrAlreadyAttached
func (m *Manager) Begin(target model.TargetID, marker string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[target]; ok {
		return nil, fmt.Errorf("%w: capture %s in progress on %s", model.ErrAlreadyAttached, cur.ID, target)
	}
	s := New(target, marker)
	m.sessions[target] = s
	m.log.Info("创建捕获会话", "capture", string(s.ID), "target", string(target))
	return s, nil
}

// End 结束会话，可重复调用
func (m *Manager) End(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.Target]; ok && cur.ID == s.ID {
		delete(m.sessions, s.Target)
		m.log.Info("结束捕获会话", "capture", string(s.ID), "duration", time.Since(s.Started))
	}
}

// Get 获取目标上的会话
func (m *Manager) Get(target model.TargetID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[target]
	return s, ok
}

// List 返回所有进行中的会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
