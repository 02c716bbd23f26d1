package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"simplepaes/internal/config"
	"simplepaes/internal/database"
	"simplepaes/internal/memstore"
	pkgdatabase "simplepaes/pkg/database"
	"simplepaes/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Lifecycle.PollInterval = 50 * time.Millisecond
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		application.Stop(ctx)
	})
	return application
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "oracle"
	if _, err := NewApplication(cfg, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected invalid configuration error")
	}
}

// TECHNICAL VALIDATION TEST: An unreachable redis fails startup instead of running silently alone
func TestNewApplication_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := NewApplication(cfg, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected redis connection error")
	}
}

type failingCloser struct {
	closed bool
	err    error
}

func (c *failingCloser) Close() error {
	c.closed = true
	return c.err
}

func TestCloseAfterFailure(t *testing.T) {
	cause := errors.New("redis unreachable")

	ok := &failingCloser{}
	if err := closeAfterFailure(ok, cause); err != cause || !ok.closed {
		t.Errorf("Expected the cause unchanged after a clean close, got %v (closed=%v)", err, ok.closed)
	}

	closeErr := errors.New("database is locked")
	bad := &failingCloser{err: closeErr}
	err := closeAfterFailure(bad, cause)
	if !bad.closed {
		t.Error("Expected the store to be closed")
	}
	if !errors.Is(err, cause) || !errors.Is(err, closeErr) {
		t.Errorf("Expected both the cause and the close error, got %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: The server answers health checks on its bound address
func TestApplication_StartServesHealth(t *testing.T) {
	application := startApp(t, testConfig(t))

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

// FUNCTIONAL VALIDATION TEST: Sessions created inside their lobby window open at once and ended ones are hidden
func TestApplication_CreateAndList(t *testing.T) {
	application := startApp(t, testConfig(t))

	start := time.Now().Add(time.Minute)
	created, err := application.SessionManager().CreateSession(context.Background(),
		types.UserRef{ID: "host1"}, types.NewSession{Name: "Soon", Level: "M1", ScheduledStartTime: &start})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// Inside the lobby window already; CreateSession applies it immediately
	if created.Status != types.StatusLobby {
		t.Fatalf("Expected lobby on creation, got %s", created.Status)
	}

	// Host-driven end, then list through HTTP
	application.SessionManager().SetStatus(context.Background(), created.ID, types.UserRef{ID: "host1"}, types.StatusEnded)

	resp, err := http.Get("http://" + application.GetAddr() + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Sessions []*types.Session `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Sessions) != 0 {
		t.Errorf("Ended session should be hidden, got %d sessions", len(body.Sessions))
	}
}

func TestApplication_StopIsClean(t *testing.T) {
	application, err := NewApplication(testConfig(t), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	addr := application.GetAddr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/health"); err == nil {
		t.Error("Server should not accept requests after Stop")
	}
}

func TestOpenStore(t *testing.T) {
	logger := zaptest.NewLogger(t)

	store, err := OpenStore(&config.DatabaseConfig{Driver: config.DriverMemory}, logger)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*memstore.Store); !ok {
		t.Errorf("Expected memstore, got %T", store)
	}
	store.Close()

	if _, err := OpenStore(&config.DatabaseConfig{Driver: "csv"}, logger); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

// FUNCTIONAL VALIDATION TEST: The sqlite store is migrated and keeps data across reopen
func TestOpenSQLite_PersistsAcrossReopen(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := &config.DatabaseConfig{
		Driver:  config.DriverSQLite,
		Path:    filepath.Join(t.TempDir(), "nested", "simplepaes.db"),
		Timeout: 30 * time.Second,
	}

	store, err := OpenStore(cfg, logger)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	manager, ok := store.(*database.Manager)
	if !ok {
		t.Fatalf("Expected sqlite manager, got %T", store)
	}
	if err := pkgdatabase.NewMigrationManager(manager.GetDB(), "").ValidateSchema(); err != nil {
		t.Errorf("Schema should be valid after open: %v", err)
	}

	ctx := context.Background()
	session := &types.Session{ID: "persist", Name: "Persist", HostID: "host1", Level: "M1",
		Status: types.StatusLobby, CreatedAt: time.Now().UTC()}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	store.Close()

	reopened, err := OpenStore(cfg, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetSession(ctx, "persist")
	if err != nil || got.Name != "Persist" {
		t.Errorf("Session not persisted: %+v %v", got, err)
	}
}
