package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"simplepaes/internal/app"
	"simplepaes/internal/config"
	"simplepaes/pkg/client"
	"simplepaes/pkg/types"
)

// testConfig returns a config bound to an ephemeral local port
func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Lifecycle.PollInterval = 50 * time.Millisecond
	cfg.Database.Driver = driver
	if driver == config.DriverSQLite {
		cfg.Database.Path = filepath.Join(t.TempDir(), "sessions.db")
	}
	return cfg
}

// startServer runs a full application and returns its base URL
func startServer(t *testing.T, cfg *config.Config) (*app.Application, string) {
	t.Helper()
	application, err := app.NewApplication(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("Stop: %v", err)
		}
	})
	return application, "http://" + application.GetAddr()
}

// subscription collects the events of one websocket subscriber
type subscription struct {
	events chan types.Event
	done   chan error
	cancel context.CancelFunc
}

func subscribe(t *testing.T, c *client.Client, sessionID string) *subscription {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		events: make(chan types.Event, 64),
		done:   make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		sub.done <- c.Subscribe(ctx, sessionID, func(e types.Event) {
			select {
			case sub.events <- e:
			default:
			}
		})
	}()
	t.Cleanup(cancel)

	// The snapshot confirms the subscriber is registered
	snapshot := sub.next(t, types.EventSnapshot)
	if snapshot.Session == nil || snapshot.Session.ID != sessionID {
		t.Fatalf("Unexpected snapshot: %+v", snapshot)
	}
	return sub
}

// next waits for the next event of eventType, skipping others
func (s *subscription) next(t *testing.T, eventType string) types.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-s.events:
			if e.Type == eventType {
				return e
			}
		case err := <-s.done:
			t.Fatalf("Subscription ended while waiting for %s: %v", eventType, err)
		case <-deadline:
			t.Fatalf("Timed out waiting for %s", eventType)
		}
	}
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
