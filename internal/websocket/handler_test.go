package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"simplepaes/internal/auth"
	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

type mockSessionReader struct {
	sessions map[string]*types.Session
	err      error
}

func (m *mockSessionReader) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session.Clone(), nil
}

type handlerFixture struct {
	registry *Registry
	reader   *mockSessionReader
	server   *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		registry: NewRegistry(zaptest.NewLogger(t)),
		reader: &mockSessionReader{sessions: map[string]*types.Session{
			"live":  {ID: "live", Name: "Algebra", Status: types.StatusLobby},
			"ended": {ID: "ended", Name: "Geometry", Status: types.StatusEnded},
		}},
	}
	handler := NewHandler(f.registry, f.reader, auth.NewAuthenticator(""), nil, zaptest.NewLogger(t))
	f.server = httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(f.server.Close)
	return f
}

func (f *handlerFixture) dial(sessionID, userID string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?session_id=" + sessionID
	header := http.Header{}
	if userID != "" {
		header.Set(auth.HeaderUserID, userID)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// FUNCTIONAL VALIDATION TEST: Subscribers receive a snapshot first, then broadcasts
func TestHandler_SnapshotThenEvents(t *testing.T) {
	f := newHandlerFixture(t)

	conn, _, err := f.dial("live", "alice")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot types.Event
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}
	if snapshot.Type != types.EventSnapshot || snapshot.Session == nil || snapshot.Session.Name != "Algebra" {
		t.Errorf("Unexpected snapshot: %+v", snapshot)
	}

	waitFor(t, func() bool { _, ok := f.registry.GetConnection("live", "alice"); return ok })
	f.registry.Broadcast("live", types.Event{Type: types.EventStatusChanged, SessionID: "live"})

	var event types.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON event: %v", err)
	}
	if event.Type != types.EventStatusChanged {
		t.Errorf("Expected status_changed, got %s", event.Type)
	}
}

func TestHandler_Rejections(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name      string
		sessionID string
		userID    string
		status    int
	}{
		{"missing session", "", "alice", http.StatusBadRequest},
		{"missing identity", "live", "", http.StatusUnauthorized},
		{"invalid identity", "live", "bad id!", http.StatusUnauthorized},
		{"unknown session", "nope", "alice", http.StatusNotFound},
		{"ended session", "ended", "alice", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := f.dial(tt.sessionID, tt.userID)
			if err == nil {
				t.Fatal("Expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %+v", tt.status, resp)
			}
		})
	}
}

func TestHandler_StoreFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.reader.err = errors.New("disk on fire")

	_, resp, err := f.dial("live", "alice")
	if err == nil || resp == nil || resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %v %+v", err, resp)
	}
}

// FUNCTIONAL VALIDATION TEST: Disconnect unregisters the subscriber
func TestHandler_DisconnectUnregisters(t *testing.T) {
	f := newHandlerFixture(t)

	conn, _, err := f.dial("live", "bob")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitFor(t, func() bool { _, ok := f.registry.GetConnection("live", "bob"); return ok })

	conn.Close()
	waitFor(t, func() bool { _, ok := f.registry.GetConnection("live", "bob"); return !ok })
}
