package client

import (
	"context"
	"sync"
	"time"

	"simplepaes/pkg/types"
)

// DefaultPollInterval matches the lobby screen refresh rate
const DefaultPollInterval = 3 * time.Second

// Poller refreshes the session list on a fixed interval
// FUNCTIONAL DISCOVERY: Each tick first asks the server to reconcile statuses, then
// lists, so a screen left open never shows a lobby that should be active.
type Poller struct {
	client   *Client
	interval time.Duration
	level    string
	onUpdate func([]*types.Session, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller delivering each refresh to onUpdate
func NewPoller(client *Client, interval time.Duration, level string, onUpdate func([]*types.Session, error)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		level:    level,
		onUpdate: onUpdate,
	}
}

// Start begins polling; the first refresh happens immediately
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
	return nil
}

// Stop cancels polling and blocks until the polling goroutine exits
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done
	return nil
}

// Running reports whether the poller is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.refresh(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	// A failed reconcile still lists; the listing is what the screen needs
	_, updateErr := p.client.UpdateStatuses(ctx)
	sessions, err := p.client.ListSessions(ctx, p.level)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = updateErr
	}
	if p.onUpdate != nil {
		p.onUpdate(sessions, err)
	}
}
