package websocket

import (
	"certificate-server/core"
	"net/http"
	"sort"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// RoomStatus describes one template room for the presence endpoint.
type RoomStatus struct {
	ID          string            `json:"id"`
	Users       int               `json:"users"`
	OnlineUsers []core.OnlineUser `json:"online_users"`
	LastActive  *int64            `json:"lastActive,omitempty"`
}

// HandlePresence lists the rooms with connected editors, merged with the
// activity recorded in registry. Busiest rooms come first.
func HandlePresence(presence *Presence, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := make(map[string]*RoomStatus)
		for id, count := range presence.Active() {
			rooms[id] = &RoomStatus{ID: id, Users: count, OnlineUsers: presence.Users(id)}
		}

		if registry != nil {
			stored, err := registry.ListRooms(r.Context())
			if err != nil {
				logrus.WithError(err).Warn("Failed to list rooms from registry")
			}
			for _, room := range stored {
				entry, ok := rooms[room.ID]
				if !ok {
					entry = &RoomStatus{ID: room.ID, OnlineUsers: []core.OnlineUser{}}
					rooms[room.ID] = entry
				}
				if room.LastActive > 0 {
					last := room.LastActive
					entry.LastActive = &last
				}
			}
		}

		list := make([]RoomStatus, 0, len(rooms))
		for _, entry := range rooms {
			list = append(list, *entry)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Users != list[j].Users {
				return list[i].Users > list[j].Users
			}
			li, lj := lastActive(list[i]), lastActive(list[j])
			if li != lj {
				return li > lj
			}
			return list[i].ID < list[j].ID
		})

		render.JSON(w, r, list)
	}
}

func lastActive(r RoomStatus) int64 {
	if r.LastActive == nil {
		return 0
	}
	return *r.LastActive
}
