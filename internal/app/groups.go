package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
)

// group is a threadsafe in-memory member set.
// A closed group is empty and about to leave the manager; it never accepts members again.
type group struct {
	name    domain.GroupName
	mu      sync.RWMutex
	members map[domain.ConnectionID]struct{}
	closed  bool
}

type groupManager struct {
	mu     sync.RWMutex
	groups map[domain.GroupName]*group
}

func newGroupManager() *groupManager {
	return &groupManager{groups: make(map[domain.GroupName]*group)}
}

func (m *groupManager) getOrCreate(name domain.GroupName) *group {
	m.mu.RLock()
	g, ok := m.groups[name]
	m.mu.RUnlock()
	if ok && !g.isClosed() {
		return g
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok = m.groups[name]; ok && !g.isClosed() {
		return g
	}
	g = &group{name: name, members: make(map[domain.ConnectionID]struct{})}
	m.groups[name] = g
	log.Info().Str("module", "app.groups").Str("group", string(name)).Msg("group created")
	return g
}

func (g *group) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

func (m *groupManager) add(name domain.GroupName, id domain.ConnectionID) {
	for {
		g := m.getOrCreate(name)
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			continue
		}
		g.members[id] = struct{}{}
		g.mu.Unlock()
		return
	}
}

func (m *groupManager) remove(name domain.GroupName, id domain.ConnectionID) {
	m.mu.RLock()
	g, ok := m.groups[name]
	m.mu.RUnlock()
	if !ok {
		return
	}

	g.mu.Lock()
	delete(g.members, id)
	empty := len(g.members) == 0
	if empty {
		g.closed = true
	}
	g.mu.Unlock()
	if !empty {
		return
	}

	m.mu.Lock()
	if m.groups[name] == g {
		delete(m.groups, name)
	}
	m.mu.Unlock()
	log.Info().Str("module", "app.groups").Str("group", string(name)).Msg("group removed")
}

func (m *groupManager) members(name domain.GroupName) []domain.ConnectionID {
	m.mu.RLock()
	g, ok := m.groups[name]
	m.mu.RUnlock()
	if !ok {
		return []domain.ConnectionID{}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ConnectionID, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	return out
}

func (m *groupManager) exists(name domain.GroupName) bool {
	m.mu.RLock()
	g, ok := m.groups[name]
	m.mu.RUnlock()
	return ok && !g.isClosed()
}

func (m *groupManager) list() []domain.GroupInfo {
	m.mu.RLock()
	snapshot := make([]*group, 0, len(m.groups))
	for _, g := range m.groups {
		snapshot = append(snapshot, g)
	}
	m.mu.RUnlock()

	out := make([]domain.GroupInfo, 0, len(snapshot))
	for _, g := range snapshot {
		g.mu.RLock()
		if !g.closed {
			out = append(out, domain.GroupInfo{Name: g.name, MemberCount: len(g.members)})
		}
		g.mu.RUnlock()
	}
	return out
}

func (m *groupManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = make(map[domain.GroupName]*group)
}
