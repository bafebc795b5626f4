package telegram

import (
	"sync"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingChannel
)

type Session struct {
	State SessionState
	// LastChannel is the channel most recently analyzed in this chat.
	LastChannel string
}

type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns a copy of the chat's session, or an idle one.
func (m *StateManager) Get(chatID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if session, ok := m.sessions[chatID]; ok {
		return *session
	}
	return Session{State: StateIdle}
}

func (m *StateManager) Set(chatID int64, session Session) {
	m.mu.Lock()
	m.sessions[chatID] = &session
	m.mu.Unlock()
}

func (m *StateManager) SetState(chatID int64, state SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[chatID]
	if !ok {
		session = &Session{}
		m.sessions[chatID] = session
	}
	session.State = state
}

// Reset returns the chat to idle and keeps the last analyzed channel.
func (m *StateManager) Reset(chatID int64) {
	m.SetState(chatID, StateIdle)
}
