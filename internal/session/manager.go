package session

import (
	"sync"
)

// Manager 维护当前所有在线会话的索引（连接注册表）。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - 房间成员的广播不经过 Manager，仅按房间成员表定向查找；
//   - Range 主要服务于停机清理与运维日志。
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint64]Session
}

// NewManager 创建一个空的 Manager。
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[uint64]Session),
	}
}

// Register 将一个已创建好的 Session 注册到管理器中。
// sess 为 nil 时忽略。
func (m *Manager) Register(sess Session) {
	if sess == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID()] = sess
}

// Get 根据 session id 查找会话。
func (m *Manager) Get(id uint64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	return sess, ok
}

// Unregister 从管理器中移除指定 id 的会话。
// 重复移除是无操作；仅删除索引，不负责调用 sess.Close()。
func (m *Manager) Unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Range 遍历当前所有在线会话。
// 遍历前复制一份会话切片，避免在持锁情况下执行回调。
// 当 fn 返回 false 时，中断遍历。
func (m *Manager) Range(fn func(sess Session) bool) {
	if fn == nil {
		return
	}

	m.mu.RLock()
	snapshot := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess)
	}
	m.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// Count 返回当前已注册的会话数量。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
