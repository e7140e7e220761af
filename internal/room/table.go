// Package room holds the local view of who is in the call and in what state.
package room

import (
	"sync"

	"github.com/samber/lo"
)

// ConnectionState of a participant as seen from this side of the mesh.
type ConnectionState int

const (
	Connecting ConnectionState = iota
	Connected
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Participant is one member of the room.
type Participant struct {
	ID          string
	DisplayName string
	HasAudio    bool
	HasVideo    bool
	State       ConnectionState
}

// Table is the membership list. The local participant is kept apart from the
// remote list, so Total is always len(Snapshot())+1.
type Table struct {
	mu     sync.RWMutex
	local  Participant
	order  []string
	remote map[string]*Participant
}

func NewTable(local Participant) *Table {
	local.State = Connected
	return &Table{
		local:  local,
		remote: make(map[string]*Participant),
	}
}

// Upsert inserts p or updates it in place, keeping its list position.
// Upserting the local id is ignored.
func (t *Table) Upsert(p Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.ID == "" || p.ID == t.local.ID {
		return
	}
	if existing, ok := t.remote[p.ID]; ok {
		*existing = p
		return
	}
	t.remote[p.ID] = &p
	t.order = append(t.order, p.ID)
}

// Remove deletes id and reports whether it was present.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.remote[id]; !ok {
		return false
	}
	delete(t.remote, id)
	t.order = lo.Without(t.order, id)
	return true
}

func (t *Table) Get(id string) (Participant, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.remote[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Snapshot returns the remote participants in insertion order.
func (t *Table) Snapshot() []Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.Map(t.order, func(id string, _ int) Participant {
		return *t.remote[id]
	})
}

// IDs returns the remote participant ids in insertion order.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]string(nil), t.order...)
}

func (t *Table) SetState(id string, state ConnectionState) bool {
	return t.update(id, func(p *Participant) { p.State = state })
}

// SetMediaFlags records what a remote participant is sending.
func (t *Table) SetMediaFlags(id string, hasAudio, hasVideo bool) bool {
	return t.update(id, func(p *Participant) {
		p.HasAudio = hasAudio
		p.HasVideo = hasVideo
	})
}

func (t *Table) update(id string, fn func(*Participant)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.remote[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

func (t *Table) SetLocalFlags(hasAudio, hasVideo bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.local.HasAudio = hasAudio
	t.local.HasVideo = hasVideo
}

func (t *Table) Local() Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.local
}

// Total counts every participant including the local one.
func (t *Table) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order) + 1
}

// Clear drops every remote participant.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.order = nil
	t.remote = make(map[string]*Participant)
}
