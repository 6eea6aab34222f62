package session

import "github.com/jrsteele09/go-school-session/token/refresh"

func (m *Manager) RefreshObserver() refresh.Observer {
	return observer{m: m}
}

func (m *Manager) Epoch() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.epoch
}
