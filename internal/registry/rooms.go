package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrAlreadyMember = errors.New("connection is already a member of the room")

// Room is a point-in-time view of a chat room
type Room struct {
	ID        int64
	Members   []string
	CreatedAt time.Time
}

type room struct {
	id         int64
	members    map[string]struct{}
	createdAt  time.Time
	lastActive time.Time
}

func (r *room) snapshot() Room {
	return Room{ID: r.id, Members: sortedMembers(r.members), CreatedAt: r.createdAt}
}

// Rooms maps room ids to member connection ids. A room exists from its first reference and
// stays until EvictIdle removes it, so empty rooms are retained by default.
type Rooms struct {
	logger *zap.SugaredLogger
	now    func() time.Time

	mu     sync.RWMutex
	rooms  map[int64]*room
	byConn map[string]map[int64]struct{}
}

func NewRooms(logger *zap.SugaredLogger) *Rooms {
	return &Rooms{
		logger: logger,
		now:    time.Now,
		rooms:  make(map[int64]*room),
		byConn: make(map[string]map[int64]struct{}),
	}
}

// getOrCreate must be called with mu held for writing
func (r *Rooms) getOrCreate(id int64) *room {
	now := r.now()
	rm, ok := r.rooms[id]
	if !ok {
		rm = &room{id: id, members: make(map[string]struct{}), createdAt: now}
		r.rooms[id] = rm
		r.logger.Debugf("Created room %d", id)
	}
	rm.lastActive = now
	return rm
}

// GetOrCreate returns the room with id, creating an empty one on first reference
func (r *Rooms) GetOrCreate(id int64) Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreate(id).snapshot()
}

// AddMember subscribes connID to the room, creating the room if needed.
// A duplicate subscription fails with ErrAlreadyMember and changes nothing.
func (r *Rooms) AddMember(roomID int64, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID][roomID]; ok {
		return ErrAlreadyMember
	}

	rm := r.getOrCreate(roomID)
	rm.members[connID] = struct{}{}

	joined, ok := r.byConn[connID]
	if !ok {
		joined = make(map[int64]struct{})
		r.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}

	r.logger.Debugf("Added connection %s to room %d (%d members)", connID, roomID, len(rm.members))

	return nil
}

// RemoveMember unsubscribes connID from every room it belongs to
func (r *Rooms) RemoveMember(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.byConn[connID]
	if !ok {
		return
	}

	now := r.now()
	for roomID := range joined {
		if rm, ok := r.rooms[roomID]; ok {
			delete(rm.members, connID)
			rm.lastActive = now
		}
	}
	delete(r.byConn, connID)

	r.logger.Debugf("Removed connection %s from %d rooms", connID, len(joined))
}

// MembersOf returns the member ids of the room, empty for an unknown room
func (r *Rooms) MembersOf(roomID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []string{}
	}
	return sortedMembers(rm.members)
}

// RoomsOf returns the ids of the rooms connID belongs to in ascending order
func (r *Rooms) RoomsOf(connID string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0, len(r.byConn[connID]))
	for id := range r.byConn[connID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of known rooms including empty ones
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Reset forgets every room and membership
func (r *Rooms) Reset() {
	r.mu.Lock()
	r.rooms = make(map[int64]*room)
	r.byConn = make(map[string]map[int64]struct{})
	r.mu.Unlock()
}

// EvictIdle removes rooms without members whose last activity is older than ttl
// and returns how many were removed
func (r *Rooms) EvictIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, rm := range r.rooms {
		if len(rm.members) == 0 && now.Sub(rm.lastActive) > ttl {
			delete(r.rooms, id)
			evicted++
		}
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done
func (r *Rooms) RunEviction(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Infof("Evicting rooms idle for more than %s every %s", ttl, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(r.now(), ttl); n > 0 {
				r.logger.Infof("Evicted %d idle rooms", n)
			}
		}
	}
}

func sortedMembers(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
