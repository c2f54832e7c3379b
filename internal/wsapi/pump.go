package wsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/eventbus"
)

// inboundCommand is the wire shape of every command a client may send
// (spec.md §4.G's command table).
type inboundCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump drains the connection's outbound queue and writes each message
// to the socket, applying a per-send deadline, until done is closed or the
// queue closes (spec.md §5: "outbound socket writes ... must be concurrent
// with other requests"; "messages within a single connection must be
// delivered in send order" — the queue is a single channel, so draining it
// in a single goroutine preserves order). A ticker also sends periodic
// pings to detect a dead peer within the configured idle timeout.
func (s *Server) writePump(conn *websocket.Conn, sess *eventbus.Connection, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sess.Send():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(s.sendDeadline))
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.sendDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.sendDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump reads inbound frames and dispatches each as a command until the
// connection errors or closes. It owns the read deadline, extended on every
// pong, which enforces the idle timeout (spec.md §6: "socket ping interval
// and idle timeout").
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, id *auth.Identity, connID string, sess *eventbus.Connection) {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd inboundCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.hub.Send(connID, eventbus.NewEvent("error", map[string]string{"message": "malformed command"}))
			continue
		}

		if err := s.dispatch(ctx, id, connID, sess, cmd); err != nil {
			s.hub.Send(connID, eventbus.NewEvent("error", map[string]string{"message": err.Error()}))
		}
	}
}

// dispatch applies the authorisation rule and effect for one inbound
// command (spec.md §4.G's subscription authorisation table).
func (s *Server) dispatch(ctx context.Context, id *auth.Identity, connID string, sess *eventbus.Connection, cmd inboundCommand) error {
	switch cmd.Type {
	case "subscribe_vitals":
		var data struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		if !auth.Allow(auth.ActionRead, id, auth.Target{OwnerUserID: data.UserID}) {
			return errForbidden("cannot subscribe to another user's vitals")
		}
		s.hub.Join(sess, eventbus.VitalsRoom(data.UserID))
		return nil

	case "unsubscribe_vitals":
		var data struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		s.hub.Leave(sess, eventbus.VitalsRoom(data.UserID))
		return nil

	case "join_room":
		var data struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		if !eventbus.IsAllowedAdHocRoom(data.Room) {
			return errForbidden("room does not match the allow-list")
		}
		s.hub.Join(sess, data.Room)
		return nil

	case "leave_room":
		var data struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		s.hub.Leave(sess, data.Room)
		return nil

	case "acknowledge_alert":
		var data struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		alert, err := s.alerts.Acknowledge(ctx, id, data.ID)
		if err != nil {
			return err
		}
		ev := eventbus.NewEvent("alert_acknowledged", alert)
		s.hub.Broadcast(eventbus.RoomSupervisors, ev)
		s.hub.Send(connID, ev)
		return nil

	case "toggle_location_sharing":
		var data struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		if id.IsSupervisor() {
			return errForbidden("only an employee may toggle their own location sharing")
		}
		sess.SetLocationSharing(data.Enabled)
		s.hub.Broadcast(eventbus.RoomSupervisors, eventbus.NewEvent("location_sharing_changed", map[string]any{
			"user_id": id.UserID,
			"enabled": data.Enabled,
		}))
		return nil

	case "heartbeat":
		s.hub.Send(connID, eventbus.NewEvent("heartbeat_ack", nil))
		return nil

	default:
		return errForbidden("unrecognised command: " + cmd.Type)
	}
}

// errForbidden is a plain error for socket-command rejections; the socket
// wire format carries only {message}, not the full apperr taxonomy used by
// the HTTP facade (spec.md §4.I holds no business state, so it does not
// import apperr's HTTP-status mapping).
type errForbidden string

func (e errForbidden) Error() string { return string(e) }
