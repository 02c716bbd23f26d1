package websocket

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	if err := registry.RegisterConnection(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
	if err := registry.RegisterConnection(newTestConnection(t, "", "")); err != ErrConnectionNotAuthenticated {
		t.Errorf("Expected ErrConnectionNotAuthenticated, got %v", err)
	}
}

func TestRegistry_SessionScoping(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	a1 := newTestConnection(t, "alice", "s1")
	b1 := newTestConnection(t, "bob", "s1")
	a2 := newTestConnection(t, "alice", "s2")
	for _, c := range []*Connection{a1, b1, a2} {
		if err := registry.RegisterConnection(c); err != nil {
			t.Fatalf("RegisterConnection: %v", err)
		}
	}

	if got := len(registry.GetSessionConnections("s1")); got != 2 {
		t.Errorf("Expected 2 subscribers on s1, got %d", got)
	}
	if got := len(registry.GetSessionConnections("s2")); got != 1 {
		t.Errorf("Expected 1 subscriber on s2, got %d", got)
	}
	if conn, ok := registry.GetConnection("s2", "alice"); !ok || conn != a2 {
		t.Error("alice should be watching s2 with her second connection")
	}

	stats := registry.GetStats()
	if stats["total_connections"] != 3 || stats["watched_sessions"] != 2 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}

// FUNCTIONAL VALIDATION TEST: A reconnect replaces and closes the old socket
func TestRegistry_ReplacementClosesOld(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	old := newTestConnection(t, "alice", "s1")
	replacement := newTestConnection(t, "alice", "s1")
	registry.RegisterConnection(old)
	registry.RegisterConnection(replacement)

	select {
	case <-old.Done():
	case <-time.After(time.Second):
		t.Error("Replaced connection was not closed")
	}

	// Late cleanup of the old connection must not remove the replacement
	registry.UnregisterConnection(old)
	if conn, ok := registry.GetConnection("s1", "alice"); !ok || conn != replacement {
		t.Error("Replacement should stay registered")
	}

	registry.UnregisterConnection(replacement)
	registry.UnregisterConnection(replacement)
	if registry.GetStats()["watched_sessions"] != 0 {
		t.Error("Empty session map should be removed")
	}
}

func TestRegistry_Broadcast(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	alive := newTestConnection(t, "alice", "s1")
	dead := newTestConnection(t, "bob", "s1")
	other := newTestConnection(t, "carla", "s2")
	for _, c := range []*Connection{alive, dead, other} {
		registry.RegisterConnection(c)
	}
	dead.Close()

	if delivered := registry.Broadcast("s1", map[string]string{"type": "status_changed"}); delivered != 1 {
		t.Errorf("Expected delivery to 1 live subscriber, got %d", delivered)
	}
	if delivered := registry.Broadcast("missing", "x"); delivered != 0 {
		t.Errorf("Expected no delivery for unknown session, got %d", delivered)
	}
}

func TestRegistry_CloseSessionAndAll(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	a := newTestConnection(t, "alice", "s1")
	b := newTestConnection(t, "bob", "s2")
	registry.RegisterConnection(a)
	registry.RegisterConnection(b)

	if closed := registry.CloseSession("s1"); closed != 1 {
		t.Errorf("Expected 1 closed subscriber, got %d", closed)
	}
	select {
	case <-a.Done():
	default:
		t.Error("Subscriber of removed session should be closed")
	}

	registry.CloseAll()
	select {
	case <-b.Done():
	default:
		t.Error("CloseAll should close every subscriber")
	}
	if registry.GetStats()["total_connections"] != 0 {
		t.Error("Registry should be empty after CloseAll")
	}
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	conns := make([]*Connection, 20)
	for i := range conns {
		conns[i] = newTestConnection(t, string(rune('a'+i)), "s1")
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			registry.RegisterConnection(c)
			registry.GetSessionConnections("s1")
		}(c)
	}
	wg.Wait()

	if got := len(registry.GetSessionConnections("s1")); got != len(conns) {
		t.Errorf("Expected %d subscribers, got %d", len(conns), got)
	}
}
