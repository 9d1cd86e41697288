package websocket

import (
	"certificate-server/core"
	"fmt"
	"reflect"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

// SetupSocketIO returns the Socket.IO server used by the editor. Clients
// join the room of the template they edit; the server relays their updates
// and keeps everyone's list of online users in sync.
func SetupSocketIO(presence *Presence) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin:      []any{localhostOrigin},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		_ = socket.Emit("init-room")
		logrus.WithField("socket_id", me).Debug("Socket connected")

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-room", func(datas ...any) {
			ack, args := extractAck(datas)
			roomID, user, err := parseJoinArgs(args)
			if err != nil {
				respondWithAck(socket, ack, "join-room-ack", map[string]any{
					"status": "error",
					"error":  err.Error(),
				}, err)
				return
			}

			room := socketio.Room(roomID)
			socket.Join(room)
			users := presence.Join(roomID, string(me), user)
			logrus.WithFields(logrus.Fields{
				"socket_id": me,
				"room_id":   roomID,
				"users":     len(users),
			}).Info("Socket joined room")

			members := presence.Active()[roomID]
			if members <= 1 {
				_ = socket.Emit("first-in-room")
			} else {
				_ = socket.Broadcast().To(room).Emit("new-user", me)
			}

			srv.In(room).FetchSockets()(func(sockets []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					logrus.WithError(fetchErr).WithField("room_id", roomID).Warn("Failed to fetch room sockets")
					return
				}
				ids := make([]socketio.SocketId, 0, len(sockets))
				for _, s := range sockets {
					ids = append(ids, s.Id())
				}
				srv.In(room).Emit("room-user-change", ids)
			})
			srv.In(room).Emit("presence-sync", users)

			respondWithAck(socket, ack, "join-room-ack", map[string]any{
				"status":     "ok",
				"user_count": len(users),
			}, nil)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("server-broadcast", func(datas ...any) {
			handleBroadcast(presence, socket, datas, false)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("server-volatile-broadcast", func(datas ...any) {
			handleBroadcast(presence, socket, datas, true)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnecting", func(...any) {
			for roomID, remaining := range presence.Leave(string(me)) {
				logrus.WithFields(logrus.Fields{
					"socket_id": me,
					"room_id":   roomID,
					"remaining": len(remaining),
				}).Info("Socket left room")
				if len(remaining) == 0 {
					continue
				}
				room := socketio.Room(roomID)
				_ = socket.Broadcast().To(room).Emit("room-user-change", presence.Sockets(roomID))
				_ = socket.Broadcast().To(room).Emit("presence-sync", remaining)
			}
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(...any) {
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

// parseJoinArgs reads the room id and the optional user profile of a
// join-room event.
func parseJoinArgs(args []any) (string, core.OnlineUser, error) {
	var user core.OnlineUser
	if len(args) == 0 {
		return "", user, fmt.Errorf("room id is required")
	}
	roomID, ok := args[0].(string)
	if !ok || roomID == "" {
		return "", user, fmt.Errorf("invalid room id")
	}
	if len(args) > 1 {
		if profile, ok := args[1].(map[string]any); ok {
			user.UserID, _ = profile["user_id"].(string)
			user.UserEmail, _ = profile["user_email"].(string)
			user.UserName, _ = profile["user_name"].(string)
		}
	}
	return roomID, user, nil
}

func handleBroadcast(presence *Presence, socket *socketio.Socket, datas []any, volatile bool) {
	roomID, payload, metadata, ack := parseBroadcastArgs(datas)
	if roomID == "" {
		err := fmt.Errorf("missing room id")
		respondWithAck(socket, ack, "broadcast-ack", makeBroadcastAckPayload(payload, err), err)
		return
	}

	var emitErr error
	if volatile {
		emitErr = socket.Volatile().Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", payload, metadata)
	} else {
		emitErr = socket.Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", payload, metadata)
		presence.touch(roomID)
	}
	if emitErr != nil {
		logrus.WithError(emitErr).WithField("room_id", roomID).Warn("Failed to relay update")
	}
	respondWithAck(socket, ack, "broadcast-ack", makeBroadcastAckPayload(payload, emitErr), emitErr)
}

// extractAck splits a trailing acknowledgement callback off the event
// arguments.
func extractAck(datas []any) (ackInvoker, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	ack := wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

// wrapAck adapts a client callback of any func signature. A one-argument
// callback receives the error or the payload; otherwise (err, payload).
func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}
	fn := reflect.ValueOf(candidate)
	if fn.Kind() != reflect.Func {
		return nil
	}

	typ := fn.Type()
	return func(err error, payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			var v any
			switch {
			case typ.NumIn() == 1 && err != nil:
				v = err
			case typ.NumIn() == 1:
				v = payload
			case i == 0:
				v = err
			case i == 1:
				v = payload
			}
			args[i] = coerceValue(v, typ.In(i))
		}
		fn.Call(args)
	}
}

func coerceValue(value any, target reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(target)
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(target):
		return rv
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target)
	case target.Kind() == reflect.Interface && target.NumMethod() == 0:
		return rv
	case target.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(target)
	}
	return reflect.Zero(target)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}
	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}

func parseBroadcastArgs(datas []any) (roomID string, payload, metadata any, ack ackInvoker) {
	ack, args := extractAck(datas)
	if len(args) < 3 {
		return "", nil, nil, ack
	}

	roomID, _ = args[0].(string)
	return roomID, args[1], args[2], ack
}

// makeBroadcastAckPayload echoes the client's message id so it can match
// acknowledgements to updates.
func makeBroadcastAckPayload(original any, ackErr error) map[string]any {
	response := map[string]any{"status": "ok"}
	if ackErr != nil {
		response["status"] = "error"
		response["error"] = ackErr.Error()
	}
	if msg, ok := original.(map[string]any); ok {
		if id, ok := msg["__collabMessageId"].(string); ok && id != "" {
			response["messageId"] = id
		}
	}
	return response
}
