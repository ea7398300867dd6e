package app

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// connEntry holds everything the registry knows about one connection.
// Lock order: connEntry.mu, then groupManager.mu, then group.mu.
type connEntry struct {
	mu       sync.Mutex
	conn     core.Connection
	lang     string
	name     string
	joined   bool
	seq      uint64
	groups   []domain.GroupName
	detached bool
}

// Registry is the authoritative in-memory map of connections, sessions and groups.
// The entries map lock only guards lookup and insertion; each connection entry
// and each group carries its own lock.
type Registry struct {
	mu          sync.RWMutex
	entries     map[domain.ConnectionID]*connEntry
	groups      *groupManager
	seq         atomic.Uint64
	defaultLang string
}

func NewRegistry(defaultLang string) *Registry {
	return &Registry{
		entries:     make(map[domain.ConnectionID]*connEntry),
		groups:      newGroupManager(),
		defaultLang: domain.NormalizeLanguage(defaultLang, domain.DefaultLanguage),
	}
}

func (r *Registry) entry(id domain.ConnectionID) (*connEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) getOrCreateEntry(id domain.ConnectionID) *connEntry {
	if e, ok := r.entry(id); ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &connEntry{lang: r.defaultLang}
	r.entries[id] = e
	return e
}

func (r *Registry) snapshotEntries() map[domain.ConnectionID]*connEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ConnectionID]*connEntry, len(r.entries))
	for id, e := range r.entries {
		out[id] = e
	}
	return out
}

// Bind attaches a live transport endpoint. lang is the connection's preferred
// language until the session names one.
func (r *Registry) Bind(id domain.ConnectionID, conn core.Connection, lang string) {
	e := r.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn = conn
	e.lang = domain.NormalizeLanguage(lang, r.defaultLang)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("lang", e.lang).Msg("bound connection")
}

// Unbind drops the connection entirely: session, group memberships and transport handle.
func (r *Registry) Unbind(id domain.ConnectionID) (string, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
	e.conn = nil
	name, had := r.clearSessionLocked(id, e)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
	return name, had
}

// Register inserts or overwrites the session of a connection. Overwriting keeps
// the original registration order. An empty lang keeps the connection's current one.
func (r *Registry) Register(id domain.ConnectionID, username, lang string) {
	e := r.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		log.Warn().Str("module", "app.registry").Str("conn", string(id)).Msg("register on detached connection ignored")
		return
	}
	if !e.joined {
		e.seq = r.seq.Add(1)
	}
	e.joined = true
	e.name = username
	e.lang = domain.NormalizeLanguage(lang, e.lang)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", username).Str("lang", e.lang).Msg("registered session")
}

// Unregister removes the session and every group membership of the connection.
// It reports the removed name, or false when the connection had no session.
func (r *Registry) Unregister(id domain.ConnectionID) (string, bool) {
	e, ok := r.entry(id)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.clearSessionLocked(id, e)
}

func (r *Registry) clearSessionLocked(id domain.ConnectionID, e *connEntry) (string, bool) {
	for _, g := range e.groups {
		r.groups.remove(g, id)
	}
	e.groups = nil

	if !e.joined {
		return "", false
	}
	name := e.name
	e.joined = false
	e.name = ""
	e.seq = 0
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", name).Msg("unregistered session")
	return name, true
}

func (r *Registry) SetLanguage(id domain.ConnectionID, lang string) bool {
	e, ok := r.entry(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lang = domain.NormalizeLanguage(lang, r.defaultLang)
	return true
}

// JoinGroup adds the connection to the group, creating it on first join.
// It reports whether the membership changed.
func (r *Registry) JoinGroup(id domain.ConnectionID, name domain.GroupName) bool {
	e := r.getOrCreateEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached || slices.Contains(e.groups, name) {
		return false
	}
	r.groups.add(name, id)
	e.groups = append(e.groups, name)
	return true
}

// LeaveGroup removes the membership; leaving a group one is not in is a no-op.
func (r *Registry) LeaveGroup(id domain.ConnectionID, name domain.GroupName) bool {
	e, ok := r.entry(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := slices.Index(e.groups, name)
	if idx < 0 {
		return false
	}
	e.groups = slices.Delete(e.groups, idx, idx+1)
	r.groups.remove(name, id)
	return true
}

func (r *Registry) ResolveGroupMembers(name domain.GroupName) []domain.ConnectionID {
	return r.groups.members(name)
}

func (r *Registry) GroupExists(name domain.GroupName) bool {
	return r.groups.exists(name)
}

func (r *Registry) Groups() []domain.GroupInfo {
	out := r.groups.list()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GroupsOf lists the groups of a connection in join order.
func (r *Registry) GroupsOf(id domain.ConnectionID) []domain.GroupName {
	e, ok := r.entry(id)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.groups)
}

type sessionSnap struct {
	id   domain.ConnectionID
	name string
	seq  uint64
}

func (r *Registry) sessions() []sessionSnap {
	entries := r.snapshotEntries()
	out := make([]sessionSnap, 0, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		if e.joined {
			out = append(out, sessionSnap{id: id, name: e.name, seq: e.seq})
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// FindConnectionByName resolves a display name. Names are not unique; the
// earliest registered session wins.
func (r *Registry) FindConnectionByName(username string) (domain.ConnectionID, bool) {
	match, ok := lo.Find(r.sessions(), func(s sessionSnap) bool { return s.name == username })
	if !ok {
		return "", false
	}
	return match.id, true
}

// Snapshot lists the display names of all sessions in registration order.
func (r *Registry) Snapshot() []string {
	return lo.Map(r.sessions(), func(s sessionSnap, _ int) string { return s.name })
}

func (r *Registry) Session(id domain.ConnectionID) (domain.UserSession, bool) {
	e, ok := r.entry(id)
	if !ok {
		return domain.UserSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined {
		return domain.UserSession{}, false
	}
	return domain.UserSession{ConnectionID: id, Username: e.name, Language: e.lang}, true
}

// Language returns the stored language of a connection, or the default one.
func (r *Registry) Language(id domain.ConnectionID) string {
	e, ok := r.entry(id)
	if !ok {
		return r.defaultLang
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lang
}

func (r *Registry) DefaultLanguage() string { return r.defaultLang }

func (r *Registry) Connection(id domain.ConnectionID) (core.Connection, bool) {
	e, ok := r.entry(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn, e.conn != nil
}

// Connections lists every connection with a live transport endpoint.
func (r *Registry) Connections() []domain.ConnectionID {
	entries := r.snapshotEntries()
	out := make([]domain.ConnectionID, 0, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		if e.conn != nil {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	return out
}

// Close detaches and closes every connection and forgets all state.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[domain.ConnectionID]*connEntry)
	r.mu.Unlock()

	for id, e := range entries {
		e.mu.Lock()
		e.detached = true
		e.groups = nil
		e.joined = false
		if e.conn != nil {
			e.conn.Close()
			e.conn = nil
		}
		e.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("closed on shutdown")
	}
	r.groups.reset()
	log.Info().Str("module", "app.registry").Int("connections", len(entries)).Msg("registry closed")
}
