// Package registry owns the set of live SSE clients: registration,
// lookup by id/name/channel/platform, per-client event queues and
// correlation handlers, heartbeat bookkeeping, and the idle-expiry sweep.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ssebridge/pkg/models"
)

const (
	// DefaultExpiryTimeout is how long a client may go without a
	// heartbeat before the sweeper removes it.
	DefaultExpiryTimeout = 60 * time.Second

	// DefaultSweepInterval is how often the sweeper scans for expired clients.
	DefaultSweepInterval = 30 * time.Second

	eventQueueBuffer = 256
)

// connection is the registry's private record for one client: the public
// models.Client plus the mutable state the registry and correlation layer
// need (subscriptions, queue, handlers). It is guarded by Registry.mu for
// membership operations and by its own mu for per-client mutation, mirroring
// the dual-lock shape of the originating codebase's ConnectionManager.
type connection struct {
	mu sync.Mutex

	client   models.Client
	channels map[string]bool

	events chan models.Event

	// handlers maps request_id -> completion callback, owned by this
	// client per the "cyclic handler ownership" design note: the
	// correlation layer only registers/removes entries here, it never
	// owns the map itself.
	handlers map[string]func(resp models.ResponseEnvelope)

	lastHeartbeat time.Time
}

// Registry is the sole mutator of the live client set.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*connection
	logger  *slog.Logger

	expiryTimeout time.Duration
	sweepInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty Registry. Call Start to run the expiry sweeper.
func New() *Registry {
	return &Registry{
		byID:          make(map[string]*connection),
		logger:        slog.Default().With("component", "registry"),
		expiryTimeout: DefaultExpiryTimeout,
		sweepInterval: DefaultSweepInterval,
	}
}

// Register allocates a new client_id and inserts it into the registry.
func (r *Registry) Register(name, platform, version string) *models.Client {
	id := uuid.NewString()
	now := time.Now()
	conn := &connection{
		client: models.Client{
			ClientID:    id,
			Name:        name,
			Platform:    platform,
			Version:     version,
			ConnectedAt: now,
			Alive:       true,
		},
		channels:      make(map[string]bool),
		events:        make(chan models.Event, eventQueueBuffer),
		handlers:      make(map[string]func(models.ResponseEnvelope)),
		lastHeartbeat: now,
	}

	r.mu.Lock()
	r.byID[id] = conn
	r.mu.Unlock()

	r.logger.Info("client registered", "client_id", id, "name", name, "platform", platform)
	client := conn.client
	return &client
}

// ReuseOrRegister implements the GET /connect reconnect semantics: if
// clientID names a known live client, its heartbeat is refreshed and its
// subscriptions are kept; otherwise a brand-new client is registered.
func (r *Registry) ReuseOrRegister(clientID, name, platform, version string) *models.Client {
	if clientID != "" {
		r.mu.RLock()
		conn, ok := r.byID[clientID]
		r.mu.RUnlock()
		if ok {
			conn.mu.Lock()
			conn.lastHeartbeat = time.Now()
			client := conn.client
			conn.mu.Unlock()
			return &client
		}
	}
	return r.Register(name, platform, version)
}

// Unregister removes a client; its stream exits on the next tick because
// Alive flips to false. Pending correlation handlers are resolved with
// success=false so waiting requests return at once.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	conn, ok := r.byID[clientID]
	if ok {
		delete(r.byID, clientID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.client.Alive = false
	pending := conn.handlers
	conn.handlers = make(map[string]func(models.ResponseEnvelope))
	conn.mu.Unlock()
	for requestID, handler := range pending {
		handler(models.ResponseEnvelope{RequestID: requestID, Success: false})
	}
	r.logger.Info("client unregistered", "client_id", clientID)
}

// LookupByID returns the client, or ok=false if unknown.
func (r *Registry) LookupByID(clientID string) (models.Client, bool) {
	r.mu.RLock()
	conn, ok := r.byID[clientID]
	r.mu.RUnlock()
	if !ok {
		return models.Client{}, false
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.client, true
}

// LookupByName returns the first client registered under name.
func (r *Registry) LookupByName(name string) (models.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.byID {
		conn.mu.Lock()
		match := conn.client.Name == name
		client := conn.client
		conn.mu.Unlock()
		if match {
			return client, true
		}
	}
	return models.Client{}, false
}

// ByChannel returns the ids of clients currently subscribed to channel.
func (r *Registry) ByChannel(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, conn := range r.byID {
		conn.mu.Lock()
		subscribed := conn.channels[channel]
		conn.mu.Unlock()
		if subscribed {
			ids = append(ids, id)
		}
	}
	return ids
}

// ByPlatform returns the ids of clients registered under platform.
func (r *Registry) ByPlatform(platform string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, conn := range r.byID {
		conn.mu.Lock()
		match := conn.client.Platform == platform
		conn.mu.Unlock()
		if match {
			ids = append(ids, id)
		}
	}
	return ids
}

// Subscribe adds channel to clientID's subscription set.
func (r *Registry) Subscribe(clientID string, channels []string) error {
	conn, ok := r.conn(clientID)
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}
	conn.mu.Lock()
	for _, ch := range channels {
		conn.channels[ch] = true
	}
	conn.mu.Unlock()
	return nil
}

// Unsubscribe removes channels from clientID's subscription set.
func (r *Registry) Unsubscribe(clientID string, channels []string) error {
	conn, ok := r.conn(clientID)
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}
	conn.mu.Lock()
	for _, ch := range channels {
		delete(conn.channels, ch)
	}
	conn.mu.Unlock()
	return nil
}

// Touch bumps a client's last-heartbeat timestamp; every command carrying
// X-Client-ID does this per §4.3.
func (r *Registry) Touch(clientID string) {
	conn, ok := r.conn(clientID)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.lastHeartbeat = time.Now()
	conn.mu.Unlock()
}

// Enqueue appends ev to clientID's event queue. Returns false if the
// client is unknown, dead, or its queue is full (TransientDelivery).
func (r *Registry) Enqueue(clientID string, ev models.Event) bool {
	conn, ok := r.conn(clientID)
	if !ok {
		return false
	}
	conn.mu.Lock()
	alive := conn.client.Alive
	conn.mu.Unlock()
	if !alive {
		return false
	}
	select {
	case conn.events <- ev:
		return true
	default:
		r.logger.Warn("event queue full, dropping event", "client_id", clientID, "event_type", ev.Type)
		return false
	}
}

// Broadcast enqueues ev to every client subscribed to channel.
func (r *Registry) Broadcast(channel string, ev models.Event) {
	for _, id := range r.ByChannel(channel) {
		r.Enqueue(id, ev)
	}
}

// BroadcastAll enqueues ev to every live client.
func (r *Registry) BroadcastAll(ev models.Event) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Enqueue(id, ev)
	}
}

// EventChannel returns the receive-only queue a stream generator reads
// from for clientID.
func (r *Registry) EventChannel(clientID string) (<-chan models.Event, bool) {
	conn, ok := r.conn(clientID)
	if !ok {
		return nil, false
	}
	return conn.events, true
}

// IsAlive reports whether clientID is still registered and alive.
func (r *Registry) IsAlive(clientID string) bool {
	client, ok := r.LookupByID(clientID)
	return ok && client.Alive
}

// RegisterHandler installs a one-shot completion callback for requestID on
// clientID, used by the correlation layer. Returns false if the client is
// unknown.
func (r *Registry) RegisterHandler(clientID, requestID string, handler func(models.ResponseEnvelope)) bool {
	conn, ok := r.conn(clientID)
	if !ok {
		return false
	}
	conn.mu.Lock()
	conn.handlers[requestID] = handler
	conn.mu.Unlock()
	return true
}

// PopHandler removes and returns requestID's handler from clientID, if any.
// Used by both the response path and the timeout path so double-resolution
// is structurally impossible: only one caller ever gets a non-nil handler.
func (r *Registry) PopHandler(clientID, requestID string) (func(models.ResponseEnvelope), bool) {
	conn, ok := r.conn(clientID)
	if !ok {
		return nil, false
	}
	conn.mu.Lock()
	handler, found := conn.handlers[requestID]
	if found {
		delete(conn.handlers, requestID)
	}
	conn.mu.Unlock()
	return handler, found
}

func (r *Registry) conn(clientID string) (*connection, bool) {
	r.mu.RLock()
	conn, ok := r.byID[clientID]
	r.mu.RUnlock()
	return conn, ok
}

// Start launches the idle-expiry sweeper. Idempotent.
func (r *Registry) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.sweepLoop(ctx)
	r.logger.Info("registry expiry sweeper started", "expiry_timeout", r.expiryTimeout, "sweep_interval", r.sweepInterval)
}

// Stop signals the sweeper to exit and waits for it to finish.
func (r *Registry) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpired()
		}
	}
}

func (r *Registry) sweepExpired() {
	now := time.Now()
	var expired []string

	r.mu.RLock()
	for id, conn := range r.byID {
		conn.mu.Lock()
		idle := now.Sub(conn.lastHeartbeat)
		conn.mu.Unlock()
		if idle > r.expiryTimeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.logger.Info("client expired, removing", "client_id", id)
		r.Unregister(id)
	}
}
