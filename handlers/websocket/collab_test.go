package websocket

import (
	"certificate-server/core"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockRegistry struct {
	touched []string
	rooms   []core.Room
	err     error
}

func (m *mockRegistry) TouchRoom(ctx context.Context, roomID string) error {
	m.touched = append(m.touched, roomID)
	return m.err
}

func (m *mockRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	return m.rooms, m.err
}

// newTestPresence returns a tracker whose clock advances one second per
// join.
func newTestPresence(registry core.RoomRegistry) *Presence {
	p := NewPresence(registry)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	p.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return p
}

func TestPresenceJoinAndLeave(t *testing.T) {
	registry := &mockRegistry{}
	p := newTestPresence(registry)

	users := p.Join("tpl-1", "sock-a", core.OnlineUser{UserID: "u1", UserName: "Ana"})
	if len(users) != 1 || users[0].UserName != "Ana" {
		t.Fatalf("Users mismatch: got %+v", users)
	}

	users = p.Join("tpl-1", "sock-b", core.OnlineUser{})
	if len(users) != 2 || users[1].UserID != "sock-b" {
		t.Errorf("Anonymous user should be named after its socket: got %+v", users)
	}

	p.Join("tpl-2", "sock-a", core.OnlineUser{UserID: "u1"})
	if got := p.Active(); got["tpl-1"] != 2 || got["tpl-2"] != 1 {
		t.Errorf("Active rooms mismatch: got %v", got)
	}
	if len(registry.touched) != 3 {
		t.Errorf("Touch count mismatch: got %d, want 3", len(registry.touched))
	}

	left := p.Leave("sock-a")
	if len(left) != 2 {
		t.Fatalf("Left rooms mismatch: got %v", left)
	}
	if len(left["tpl-1"]) != 1 || left["tpl-1"][0].UserID != "sock-b" {
		t.Errorf("Remaining users mismatch: got %+v", left["tpl-1"])
	}
	if len(left["tpl-2"]) != 0 {
		t.Errorf("Room tpl-2 should be empty: got %+v", left["tpl-2"])
	}
	if _, ok := p.Active()["tpl-2"]; ok {
		t.Error("Empty room should be dropped")
	}
	if got := p.Sockets("tpl-1"); len(got) != 1 || got[0] != "sock-b" {
		t.Errorf("Sockets mismatch: got %v", got)
	}
}

func TestPresenceDeduplicatesUsers(t *testing.T) {
	p := newTestPresence(nil)
	p.Join("tpl-1", "tab-1", core.OnlineUser{UserID: "u1"})
	p.Join("tpl-1", "tab-2", core.OnlineUser{UserID: "u1"})

	users := p.Users("tpl-1")
	if len(users) != 1 {
		t.Fatalf("User count mismatch: got %d, want 1", len(users))
	}
	if want := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC); !users[0].OnlineAt.Equal(want) {
		t.Errorf("OnlineAt mismatch: got %v, want %v", users[0].OnlineAt, want)
	}
	if got := p.Active()["tpl-1"]; got != 2 {
		t.Errorf("Socket count mismatch: got %d, want 2", got)
	}
}

func TestPresenceRegistryErrorIsNotFatal(t *testing.T) {
	p := newTestPresence(&mockRegistry{err: errors.New("redis down")})
	if users := p.Join("tpl-1", "sock-a", core.OnlineUser{}); len(users) != 1 {
		t.Errorf("Join should succeed without the registry: got %+v", users)
	}
}

func TestParseJoinArgs(t *testing.T) {
	roomID, user, err := parseJoinArgs([]any{"tpl-1", map[string]any{"user_id": "u1", "user_email": "a@b.c", "user_name": "Ana"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if roomID != "tpl-1" || user.UserID != "u1" || user.UserEmail != "a@b.c" || user.UserName != "Ana" {
		t.Errorf("Parsed values mismatch: room %q, user %+v", roomID, user)
	}

	if _, _, err := parseJoinArgs(nil); err == nil {
		t.Error("Expected an error without a room id")
	}
	if _, _, err := parseJoinArgs([]any{42}); err == nil {
		t.Error("Expected an error for a non-string room id")
	}
}

func TestExtractAck(t *testing.T) {
	var gotErr error
	var gotPayload map[string]any
	callback := func(err error, payload map[string]any) {
		gotErr = err
		gotPayload = payload
	}

	ack, args := extractAck([]any{"room", "payload", callback})
	if ack == nil || len(args) != 2 {
		t.Fatalf("Ack not extracted: ack=%v args=%v", ack != nil, args)
	}
	ack(nil, map[string]any{"status": "ok"})
	if gotErr != nil || gotPayload["status"] != "ok" {
		t.Errorf("Callback arguments mismatch: err=%v payload=%v", gotErr, gotPayload)
	}

	var single any
	ack, _ = extractAck([]any{func(v any) { single = v }})
	ack(errors.New("boom"), nil)
	if err, ok := single.(error); !ok || err.Error() != "boom" {
		t.Errorf("Single-argument callback should receive the error: got %v", single)
	}

	if ack, args := extractAck([]any{"room"}); ack != nil || len(args) != 1 {
		t.Error("Non-func trailing argument should not be treated as an ack")
	}
}

func TestMakeBroadcastAckPayload(t *testing.T) {
	payload := makeBroadcastAckPayload(map[string]any{"__collabMessageId": "m-1"}, nil)
	if payload["status"] != "ok" || payload["messageId"] != "m-1" {
		t.Errorf("Payload mismatch: got %v", payload)
	}

	payload = makeBroadcastAckPayload("opaque", errors.New("missing room id"))
	if payload["status"] != "error" || payload["error"] != "missing room id" {
		t.Errorf("Payload mismatch: got %v", payload)
	}
	if _, ok := payload["messageId"]; ok {
		t.Error("Unexpected message id")
	}
}

func TestParseBroadcastArgs(t *testing.T) {
	roomID, payload, metadata, _ := parseBroadcastArgs([]any{"tpl-1", "data", "meta"})
	if roomID != "tpl-1" || payload != "data" || metadata != "meta" {
		t.Errorf("Parsed values mismatch: %v %v %v", roomID, payload, metadata)
	}

	if roomID, _, _, _ := parseBroadcastArgs([]any{"tpl-1"}); roomID != "" {
		t.Errorf("Short argument list should yield no room: got %q", roomID)
	}
}

func TestHandlePresence(t *testing.T) {
	registry := &mockRegistry{rooms: []core.Room{
		{ID: "tpl-1", LastActive: 100},
		{ID: "tpl-old", LastActive: 50},
	}}
	p := newTestPresence(nil)
	p.Join("tpl-1", "sock-a", core.OnlineUser{UserID: "u1"})
	p.Join("tpl-2", "sock-b", core.OnlineUser{UserID: "u2"})
	p.Join("tpl-2", "sock-c", core.OnlineUser{UserID: "u3"})

	rec := httptest.NewRecorder()
	HandlePresence(p, registry)(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}

	var rooms []RoomStatus
	if err := json.NewDecoder(rec.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	wantOrder := []string{"tpl-2", "tpl-1", "tpl-old"}
	if len(rooms) != len(wantOrder) {
		t.Fatalf("Room count mismatch: got %d, want %d", len(rooms), len(wantOrder))
	}
	for i, id := range wantOrder {
		if rooms[i].ID != id {
			t.Errorf("Room %d mismatch: got %q, want %q", i, rooms[i].ID, id)
		}
	}
	if rooms[0].Users != 2 || len(rooms[0].OnlineUsers) != 2 {
		t.Errorf("Room tpl-2 mismatch: got %+v", rooms[0])
	}
	if rooms[1].LastActive == nil || *rooms[1].LastActive != 100 {
		t.Errorf("Room tpl-1 last active mismatch: got %v", rooms[1].LastActive)
	}
}
