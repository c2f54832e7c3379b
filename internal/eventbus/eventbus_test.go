package eventbus

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIsAllowedAdHocRoom(t *testing.T) {
	tests := []struct {
		room string
		want bool
	}{
		{"alerts_123", true},
		{"vitals_abc", true},
		{"location_7", true},
		{"supervisors", false},
		{"employees", false},
		{"user_7", false},
		{"", false},
		{"alerts_", false},
	}

	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			if got := IsAllowedAdHocRoom(tt.room); got != tt.want {
				t.Errorf("IsAllowedAdHocRoom(%q) = %v, want %v", tt.room, got, tt.want)
			}
		})
	}
}

func TestRegisterAutoJoinsOwnAndRoleRoom(t *testing.T) {
	hub := NewHub(8, nil)
	userID := uuid.New()

	conn := hub.Register("c1", userID, "a@example.com", "employee")

	if hub.RoomSize(UserRoom(userID)) != 1 {
		t.Errorf("expected connection in own user room")
	}
	if hub.RoomSize(RoomEmployees) != 1 {
		t.Errorf("expected connection in employees room")
	}
	if hub.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount() = %d, want 1", hub.ConnectionCount())
	}
	_ = conn
}

func TestUnregisterClearsRoomMembership(t *testing.T) {
	hub := NewHub(8, nil)
	userID := uuid.New()
	hub.Register("c1", userID, "a@example.com", "supervisor")

	hub.Unregister("c1")

	if hub.RoomSize(RoomSupervisors) != 0 {
		t.Errorf("expected supervisors room empty after unregister")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", hub.ConnectionCount())
	}
}

func TestJoinLeaveRoom(t *testing.T) {
	hub := NewHub(8, nil)
	conn := hub.Register("c1", uuid.New(), "a@example.com", "employee")

	hub.Join(conn, "vitals_other")
	if hub.RoomSize("vitals_other") != 1 {
		t.Fatalf("expected joined room to have 1 member")
	}

	hub.Leave(conn, "vitals_other")
	if hub.RoomSize("vitals_other") != 0 {
		t.Fatalf("expected room empty after leave")
	}
}

func TestBroadcastDeliversToRoomMembers(t *testing.T) {
	hub := NewHub(8, nil)
	userA := uuid.New()
	connA := hub.Register("a", userA, "a@example.com", "employee")
	hub.Register("b", uuid.New(), "b@example.com", "employee")

	hub.Broadcast(UserRoom(userA), NewEvent("vital_update", map[string]string{"hello": "world"}))

	select {
	case msg := <-connA.Send():
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != "vital_update" {
			t.Errorf("event type = %q, want vital_update", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message delivered to room member")
	}
}

func TestBroadcastDropsOldestOnOverflow(t *testing.T) {
	hub := NewHub(1, nil) // queue size 1
	conn := hub.Register("a", uuid.New(), "a@example.com", "employee")
	room := UserRoom(conn.UserID)

	hub.Broadcast(room, NewEvent("first", nil))
	hub.Broadcast(room, NewEvent("second", nil))

	msg := <-conn.Send()
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "second" {
		t.Errorf("event type = %q, want second (oldest should have been dropped)", ev.Type)
	}
}

func TestBroadcastAllReachesEveryConnection(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Register("a", uuid.New(), "a@example.com", "employee")
	b := hub.Register("b", uuid.New(), "b@example.com", "supervisor")

	hub.BroadcastAll(NewEvent("system_message", "maintenance"))

	for _, conn := range []*Connection{a, b} {
		select {
		case <-conn.Send():
		case <-time.After(time.Second):
			t.Fatalf("connection %s never received broadcast", conn.ID)
		}
	}
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	hub := NewHub(16, nil)
	var conns []*Connection
	for i := 0; i < 20; i++ {
		conns = append(conns, hub.Register(uuid.NewString(), uuid.New(), "u@example.com", "employee"))
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			hub.Join(c, "alerts_shared")
			hub.Broadcast("alerts_shared", NewEvent("ping", nil))
			hub.Leave(c, "alerts_shared")
		}(c)
	}
	wg.Wait()

	if hub.RoomSize("alerts_shared") != 0 {
		t.Errorf("expected alerts_shared empty after all leave, got %d", hub.RoomSize("alerts_shared"))
	}
}

func TestBroadcastDuringUnregisterDoesNotPanic(t *testing.T) {
	hub := NewHub(4, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := uuid.NewString()
		conn := hub.Register(id, uuid.New(), "u@example.com", "employee")
		room := UserRoom(conn.UserID)

		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Unregister(id)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Broadcast(room, NewEvent("ping", nil))
				hub.Send(id, NewEvent("ping", nil))
			}
		}()
	}
	wg.Wait()
}

func TestDisconnectedConnectionDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(1, nil)
	slow := hub.Register("slow", uuid.New(), "slow@example.com", "supervisor")
	fast := hub.Register("fast", uuid.New(), "fast@example.com", "supervisor")

	// Fill slow's queue and never drain it; fast must still have a message
	// queued (its size-1 queue keeps only the latest broadcast).
	for i := 0; i < 5; i++ {
		hub.Broadcast(RoomSupervisors, NewEvent("tick", i))
	}

	select {
	case <-fast.Send():
	default:
		t.Fatal("expected fast connection to have a queued message")
	}
	_ = slow
}
