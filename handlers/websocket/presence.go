package websocket

import (
	"certificate-server/core"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Presence tracks which users have a template open in the editor. Rooms are
// keyed by template id and members by socket id.
type Presence struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]core.OnlineUser
	registry core.RoomRegistry
	now      func() time.Time
}

// NewPresence returns an empty tracker. registry may be nil; when set, every
// join and relayed update marks the room active there.
func NewPresence(registry core.RoomRegistry) *Presence {
	return &Presence{
		rooms:    make(map[string]map[string]core.OnlineUser),
		registry: registry,
		now:      time.Now,
	}
}

// Join adds socketID to roomID and returns the room members afterwards.
// An empty UserID is replaced by the socket id.
func (p *Presence) Join(roomID, socketID string, user core.OnlineUser) []core.OnlineUser {
	if user.UserID == "" {
		user.UserID = socketID
	}
	user.OnlineAt = p.now().UTC()

	p.mu.Lock()
	members, ok := p.rooms[roomID]
	if !ok {
		members = make(map[string]core.OnlineUser)
		p.rooms[roomID] = members
	}
	members[socketID] = user
	users := sortedUsers(members)
	p.mu.Unlock()

	p.touch(roomID)
	return users
}

// Leave removes socketID from every room and returns the remaining members
// of each room it was in. Emptied rooms are dropped.
func (p *Presence) Leave(socketID string) map[string][]core.OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()

	left := make(map[string][]core.OnlineUser)
	for roomID, members := range p.rooms {
		if _, ok := members[socketID]; !ok {
			continue
		}
		delete(members, socketID)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		}
		left[roomID] = sortedUsers(members)
	}
	return left
}

func (p *Presence) Users(roomID string) []core.OnlineUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedUsers(p.rooms[roomID])
}

// Sockets returns the ids of the sockets in roomID, sorted.
func (p *Presence) Sockets(roomID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.rooms[roomID]))
	for id := range p.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Active returns the number of connected sockets per room.
func (p *Presence) Active() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rooms := make(map[string]int, len(p.rooms))
	for id, members := range p.rooms {
		rooms[id] = len(members)
	}
	return rooms
}

func (p *Presence) touch(roomID string) {
	if p.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.registry.TouchRoom(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to record room activity")
	}
}

// sortedUsers lists members by join time. A user with several tabs open
// appears once, with the earliest join.
func sortedUsers(members map[string]core.OnlineUser) []core.OnlineUser {
	byUser := make(map[string]core.OnlineUser, len(members))
	for _, u := range members {
		if prev, ok := byUser[u.UserID]; ok && !u.OnlineAt.Before(prev.OnlineAt) {
			continue
		}
		byUser[u.UserID] = u
	}
	users := make([]core.OnlineUser, 0, len(byUser))
	for _, u := range byUser {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].OnlineAt.Equal(users[j].OnlineAt) {
			return users[i].UserID < users[j].UserID
		}
		return users[i].OnlineAt.Before(users[j].OnlineAt)
	})
	return users
}
