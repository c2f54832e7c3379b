package wsapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/eventbus"
)

func testServer(hub *eventbus.Hub) *Server {
	return &Server{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		hub:    hub,
	}
}

func inRoom(sess *eventbus.Connection, room string) bool {
	return slices.Contains(sess.Rooms(), room)
}

func drain(t *testing.T, sess *eventbus.Connection) eventbus.Event {
	t.Helper()
	select {
	case msg := <-sess.Send():
		var ev eventbus.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatalf("expected a queued event, found none")
		return eventbus.Event{}
	}
}

func TestDispatchJoinRoomRejectsOutsideAllowList(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "join_room",
		Data: json.RawMessage(`{"room":"not_allowed"}`),
	})
	if err == nil {
		t.Fatal("expected join_room to reject a room outside the allow-list")
	}
}

func TestDispatchJoinRoomAllowsListedPattern(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "join_room",
		Data: json.RawMessage(`{"room":"alerts_123"}`),
	})
	if err != nil {
		t.Fatalf("dispatch join_room: %v", err)
	}
	if !inRoom(sess, "alerts_123") {
		t.Fatal("expected connection to be in room alerts_123")
	}
}

func TestDispatchSubscribeVitalsEmployeeCannotTargetAnotherUser(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	other := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "subscribe_vitals",
		Data: json.RawMessage(`{"user_id":"` + other.String() + `"}`),
	})
	if err == nil {
		t.Fatal("expected an employee to be forbidden from subscribing to another user's vitals")
	}
}

func TestDispatchSubscribeVitalsSupervisorCanTargetAnyone(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	supervisorID := uuid.New()
	other := uuid.New()
	sess := hub.Register("c1", supervisorID, "sup@example.com", auth.RoleSupervisor)
	id := &auth.Identity{UserID: supervisorID, Email: "sup@example.com", Role: auth.RoleSupervisor}

	err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "subscribe_vitals",
		Data: json.RawMessage(`{"user_id":"` + other.String() + `"}`),
	})
	if err != nil {
		t.Fatalf("dispatch subscribe_vitals: %v", err)
	}
	if !inRoom(sess, eventbus.VitalsRoom(other)) {
		t.Fatal("expected supervisor connection to be in the target's vitals room")
	}
}

func TestDispatchToggleLocationSharingRejectsSupervisor(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "sup@example.com", auth.RoleSupervisor)
	id := &auth.Identity{UserID: userID, Email: "sup@example.com", Role: auth.RoleSupervisor}

	err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "toggle_location_sharing",
		Data: json.RawMessage(`{"enabled":true}`),
	})
	if err == nil {
		t.Fatal("expected toggle_location_sharing to reject a supervisor")
	}
}

func TestDispatchToggleLocationSharingFlipsFlag(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	if err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{
		Type: "toggle_location_sharing",
		Data: json.RawMessage(`{"enabled":true}`),
	}); err != nil {
		t.Fatalf("dispatch toggle_location_sharing: %v", err)
	}
	if !sess.LocationSharing() {
		t.Fatal("expected location sharing to be enabled")
	}
}

func TestDispatchHeartbeatAcksTheSender(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	if err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{Type: "heartbeat"}); err != nil {
		t.Fatalf("dispatch heartbeat: %v", err)
	}
	ev := drain(t, sess)
	if ev.Type != "heartbeat_ack" {
		t.Fatalf("Type = %q, want heartbeat_ack", ev.Type)
	}
}

func TestDispatchUnknownCommandIsRejected(t *testing.T) {
	hub := eventbus.NewHub(8, nil)
	s := testServer(hub)
	userID := uuid.New()
	sess := hub.Register("c1", userID, "a@example.com", auth.RoleEmployee)
	id := &auth.Identity{UserID: userID, Email: "a@example.com", Role: auth.RoleEmployee}

	if err := s.dispatch(context.Background(), id, "c1", sess, inboundCommand{Type: "not_a_command"}); err == nil {
		t.Fatal("expected an unrecognised command to return an error")
	}
}
