package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/five82/roomboard/internal/rooms"
)

// Snapshot represents the registry contents available to the views.
type Snapshot struct {
	Rooms               []rooms.Room
	Version             uint64
	Loaded              bool // a full replace has been applied at least once
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive sync failures
}

// IsOffline returns true when synchronization has failed repeatedly.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Room returns the room with the given id.
func (s Snapshot) Room(id string) (rooms.Room, bool) {
	return lo.Find(s.Rooms, func(r rooms.Room) bool { return r.ID == id })
}

// Registry is the ordered in-memory collection of rooms. The zero value is
// ready to use. Every mutation is atomic with respect to Snapshot.
type Registry struct {
	mu          sync.RWMutex
	rooms       []rooms.Room
	index       map[string]int
	version     uint64
	loaded      bool
	lastUpdated time.Time
	lastError   error
	failures    int

	watchMu  sync.Mutex
	watchers map[uint64]chan struct{}
	nextID   uint64
}

// ReplaceAll swaps the whole collection, keeping the order of list. The list
// must hold valid rooms with unique ids; otherwise the registry is unchanged.
func (r *Registry) ReplaceAll(list []rooms.Room) error {
	if err := rooms.ValidateRooms(list); err != nil {
		return fmt.Errorf("replace rooms: %w", err)
	}

	next := slices.Clone(list)
	index := make(map[string]int, len(next))
	for i, room := range next {
		index[room.ID] = i
	}

	r.mu.Lock()
	r.rooms = next
	r.index = index
	r.loaded = true
	r.lastError = nil
	r.failures = 0
	r.touch()
	r.mu.Unlock()

	r.notify()
	return nil
}

// PatchStatus sets the status of the room with the given id in place and
// reports whether such a room exists. Unknown ids and undefined statuses
// leave the registry unchanged.
func (r *Registry) PatchStatus(id string, status rooms.Status) bool {
	if !status.Valid() {
		return false
	}

	r.mu.Lock()
	pos, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := r.rooms[pos].Status != status
	if changed {
		r.rooms[pos].Status = status
		r.touch()
	}
	r.mu.Unlock()

	if changed {
		r.notify()
	}
	return true
}

// RecordFailure keeps the current rooms but records err for visibility.
func (r *Registry) RecordFailure(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.lastError = err
	r.failures++
	r.lastUpdated = time.Now()
	r.mu.Unlock()

	r.notify()
}

// Rooms returns a copy of the current ordered collection.
func (r *Registry) Rooms() []rooms.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRooms(r.rooms)
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Rooms:               cloneRooms(r.rooms),
		Version:             r.version,
		Loaded:              r.loaded,
		LastUpdated:         r.lastUpdated,
		ConsecutiveFailures: r.failures,
	}
	if r.lastError != nil {
		snap.LastError = fmt.Errorf("%w", r.lastError)
	}
	return snap
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce: a slow reader sees at most one pending signal. The
// returned function stops the subscription and closes the channel.
func (r *Registry) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	r.watchMu.Lock()
	if r.watchers == nil {
		r.watchers = make(map[uint64]chan struct{})
	}
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.watchMu.Lock()
			delete(r.watchers, id)
			r.watchMu.Unlock()
			close(ch)
		})
	}
}

// touch must be called with mu held.
func (r *Registry) touch() {
	r.version++
	r.lastUpdated = time.Now()
}

func (r *Registry) notify() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func cloneRooms(list []rooms.Room) []rooms.Room {
	if len(list) == 0 {
		return nil
	}
	return slices.Clone(list)
}
