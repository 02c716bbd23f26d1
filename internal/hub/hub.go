package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"simplepaes/internal/events"
	"simplepaes/internal/websocket"
	"simplepaes/pkg/types"
)

// Reconciler applies time-driven changes to the session set
type Reconciler interface {
	UpdateSessionStatuses(ctx context.Context) ([]types.Transition, error)
	PurgeEnded(ctx context.Context) ([]string, error)
}

// Hub drives status reconciliation and fans session events out to subscribers
// ARCHITECTURAL DISCOVERY: Central coordination point for all event flow. One goroutine
// owns the ticker and the local fan-out, so events reach a subscriber in publish order.
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channels prevent blocking managers during bursts
	eventChannel    chan types.Event // local events, relayed to the bus
	remoteChannel   chan types.Event // events from other instances, fan-out only
	shutdownChannel chan struct{}

	registry   *websocket.Registry
	reconciler Reconciler
	bus        events.Bus // nil when running a single instance
	interval   time.Duration
	origin     string
	logger     *zap.Logger

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewHub creates a hub; bus may be nil
func NewHub(registry *websocket.Registry, reconciler Reconciler, bus events.Bus, interval time.Duration, logger *zap.Logger) *Hub {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		eventChannel:  make(chan types.Event, 1000),
		remoteChannel: make(chan types.Event, 1000),
		registry:      registry,
		reconciler:    reconciler,
		bus:           bus,
		interval:      interval,
		origin:        uuid.New().String(),
		logger:        logger.Named("hub"),
	}
}

// Origin identifies this instance on the shared bus
func (h *Hub) Origin() string {
	return h.origin
}

// Start begins reconciliation and fan-out
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})

	h.logger.Info("starting hub",
		zap.Duration("interval", h.interval),
		zap.Bool("bus", h.bus != nil),
		zap.String("origin", h.origin))

	runCtx, cancel := context.WithCancel(ctx)
	shutdown := h.shutdownChannel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		h.run(runCtx, shutdown)
	}()

	if h.bus != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.subscribe(runCtx)
		}()
	}

	return nil
}

// Stop shuts the hub down and waits for its goroutines
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	// Publish may be called from the loop itself, so wait without the lock
	h.wg.Wait()
	h.logger.Info("hub stopped")
	return nil
}

// Publish implements interfaces.EventPublisher. Events are dropped when the hub
// is stopped or its queue is full; subscribers catch up on the next poll.
func (h *Hub) Publish(event types.Event) {
	if err := h.Enqueue(event); err != nil {
		h.logger.Warn("event dropped",
			zap.String("type", event.Type),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}

// Enqueue queues event for fan-out
func (h *Hub) Enqueue(event types.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	if event.Origin == "" {
		event.Origin = h.origin
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// TECHNICAL DISCOVERY: Non-blocking send prevents a stalled fan-out from
	// blocking session operations
	select {
	case h.eventChannel <- event:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the main hub loop
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.reconcile(ctx)

	for {
		select {
		case <-ticker.C:
			h.reconcile(ctx)

		case event := <-h.eventChannel:
			h.fanOut(event)
			h.relay(ctx, event)

		case event := <-h.remoteChannel:
			h.fanOut(event)

		case <-shutdown:
			h.drain(ctx)
			return

		case <-ctx.Done():
			return
		}
	}
}

// reconcile runs one status update and retention sweep. The reconciler
// publishes the resulting events back through Publish.
func (h *Hub) reconcile(ctx context.Context) {
	if h.reconciler == nil {
		return
	}

	transitions, err := h.reconciler.UpdateSessionStatuses(ctx)
	if err != nil {
		h.logger.Error("status update failed", zap.Error(err))
	}
	if len(transitions) > 0 {
		h.logger.Debug("status transitions applied", zap.Int("count", len(transitions)))
	}

	removed, err := h.reconciler.PurgeEnded(ctx)
	if err != nil {
		h.logger.Error("purge failed", zap.Error(err))
	}
	if len(removed) > 0 {
		h.logger.Info("ended sessions purged", zap.Int("count", len(removed)))
	}
}

// drain delivers events queued before shutdown
func (h *Hub) drain(ctx context.Context) {
	for {
		select {
		case event := <-h.eventChannel:
			h.fanOut(event)
			h.relay(ctx, event)
		default:
			return
		}
	}
}

// fanOut writes event to the local subscribers of its session
func (h *Hub) fanOut(event types.Event) {
	if h.registry == nil {
		return
	}
	delivered := h.registry.Broadcast(event.SessionID, event)
	if event.Type == types.EventSessionRemoved {
		h.registry.CloseSession(event.SessionID)
	}
	h.logger.Debug("event delivered",
		zap.String("type", event.Type),
		zap.String("session_id", event.SessionID),
		zap.Int("subscribers", delivered))
}

// relay forwards a locally produced event to the other instances
func (h *Hub) relay(ctx context.Context, event types.Event) {
	if h.bus == nil || event.Origin != h.origin {
		return
	}
	if err := h.bus.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to relay event",
			zap.String("type", event.Type),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}

// subscribe feeds events from other instances into the loop until ctx ends
func (h *Hub) subscribe(ctx context.Context) {
	err := h.bus.Subscribe(ctx, func(event types.Event) {
		// Our own events come back through the bus; they were already delivered
		if event.Origin == h.origin {
			return
		}
		select {
		case h.remoteChannel <- event:
		default:
			h.logger.Warn("remote event dropped",
				zap.String("type", event.Type),
				zap.String("session_id", event.SessionID))
		}
	})
	if err != nil && ctx.Err() == nil {
		h.logger.Error("event subscription ended", zap.Error(err))
	}
}
