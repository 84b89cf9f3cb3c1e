package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// ErrHubClosed indicates the hub has shut down.
var ErrHubClosed = errors.New("connection hub closed")

// MetricsSnapshot is a value copy of the hub metrics.
type MetricsSnapshot struct {
	ActiveConnections        int     `json:"activeConnections"`
	AuthenticatedConnections int     `json:"authenticatedConnections"`
	Subscriptions            int     `json:"subscriptions"`
	BufferedUsers            int     `json:"bufferedUsers"`
	BufferedEvents           int     `json:"bufferedEvents"`
	MessagesSent             uint64  `json:"messagesSent"`
	SendFailures             uint64  `json:"sendFailures"`
	EventsBuffered           uint64  `json:"eventsBuffered"`
	HealthScore              float64 `json:"healthScore"`
}

// ConnectionHub owns the connection, subscription, and offline-buffer
// state. Maps are guarded by a single RWMutex; sends happen outside the
// lock against snapshotted transports so a slow client cannot stall
// registration.
type ConnectionHub struct {
	cfg      config.HubConfig
	validate TokenValidator

	mu            sync.RWMutex
	connections   map[string]*Connection
	userConns     map[string]map[string]bool
	subscriptions map[string]*models.Subscription
	connSubs      map[string][]string
	buffers       map[string]*offlineBuffer
	started       bool
	closed        bool

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup

	messagesSent   atomic.Uint64
	sendFailures   atomic.Uint64
	eventsBuffered atomic.Uint64
}

// NewConnectionHub validates the configuration and builds a hub. The
// validator decides Authenticate outcomes; nil accepts any non-empty
// token.
func NewConnectionHub(cfg config.HubConfig, validate TokenValidator) (*ConnectionHub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if validate == nil {
		validate = func(_ context.Context, _, token string) bool { return token != "" }
	}
	return &ConnectionHub{
		cfg:           cfg,
		validate:      validate,
		connections:   make(map[string]*Connection),
		userConns:     make(map[string]map[string]bool),
		subscriptions: make(map[string]*models.Subscription),
		connSubs:      make(map[string][]string),
		buffers:       make(map[string]*offlineBuffer),
		stopCh:        make(chan struct{}),
	}, nil
}

// Start launches the heartbeat, reaper, and buffer-cleaner loops.
func (h *ConnectionHub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		slog.Warn("Connection hub already started, ignoring duplicate Start call")
		return
	}
	h.started = true
	h.mu.Unlock()

	slog.Info("Starting connection hub",
		"heartbeat_interval", h.cfg.HeartbeatInterval,
		"buffer_capacity", h.cfg.BufferCapacity)

	h.loopWg.Add(3)
	go h.runHeartbeat(ctx)
	go h.runReaper(ctx)
	go h.runBufferCleaner(ctx)
}

// AddConnection registers a new, unauthenticated connection. Buffered
// events for the user stay held until Authenticate succeeds.
func (h *ConnectionHub) AddConnection(connectionID, userID string, transport Transport, metadata map[string]any) *Connection {
	now := time.Now()
	c := &Connection{
		ID:                connectionID,
		UserID:            userID,
		SubscribedEvents:  make(map[models.EventType]bool),
		LastPing:          now,
		ConnectionStarted: now,
		Metadata:          metadata,
		transport:         transport,
	}

	h.mu.Lock()
	h.connections[connectionID] = c
	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[string]bool)
	}
	h.userConns[userID][connectionID] = true
	total := len(h.connections)
	h.mu.Unlock()

	slog.Info("Connection added",
		"connection_id", connectionID, "user_id", userID, "total", total)
	return c
}

// Authenticate validates the token and, on success, marks the
// connection authenticated and flushes the user's offline buffer to it
// in original enqueue order.
func (h *ConnectionHub) Authenticate(ctx context.Context, connectionID, token string) bool {
	h.mu.RLock()
	c, ok := h.connections[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if !h.validate(ctx, c.UserID, token) {
		slog.Warn("Authentication failed", "connection_id", connectionID, "user_id", c.UserID)
		return false
	}

	h.mu.Lock()
	c.IsAuthenticated = true
	c.LastPing = time.Now()
	var backlog []*models.Event
	if buf, ok := h.buffers[c.UserID]; ok {
		backlog = buf.drain()
		delete(h.buffers, c.UserID)
	}
	h.mu.Unlock()

	slog.Info("Connection authenticated",
		"connection_id", connectionID, "user_id", c.UserID, "buffered_events", len(backlog))

	for _, e := range backlog {
		h.send(c, NewMessage(MessageEvent, e))
	}
	return true
}

// RemoveConnection drops a connection and its owned subscriptions.
func (h *ConnectionHub) RemoveConnection(connectionID string) {
	h.mu.Lock()
	c, ok := h.connections[connectionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, connectionID)
	if set, ok := h.userConns[c.UserID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(h.userConns, c.UserID)
		}
	}
	for _, subID := range h.connSubs[connectionID] {
		delete(h.subscriptions, subID)
	}
	delete(h.connSubs, connectionID)
	total := len(h.connections)
	h.mu.Unlock()

	_ = c.transport.Close()
	slog.Info("Connection removed",
		"connection_id", connectionID, "user_id", c.UserID, "total", total)
}

// Subscribe creates a subscription for the connection's user. Requires
// an authenticated connection.
func (h *ConnectionHub) Subscribe(connectionID string, eventTypes []models.EventType, filters []models.Filter) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.connections[connectionID]
	if !ok {
		return "", ErrConnectionNotFound
	}
	if !c.IsAuthenticated {
		return "", ErrNotAuthenticated
	}

	sub := models.NewSubscription(c.UserID, eventTypes, filters)
	h.subscriptions[sub.ID] = sub
	h.connSubs[connectionID] = append(h.connSubs[connectionID], sub.ID)
	for _, t := range eventTypes {
		c.SubscribedEvents[t] = true
	}
	return sub.ID, nil
}

// Unsubscribe removes event types from the connection and its owned
// subscriptions; subscriptions whose type set empties are deleted.
func (h *ConnectionHub) Unsubscribe(connectionID string, eventTypes []models.EventType) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.connections[connectionID]
	if !ok {
		return ErrConnectionNotFound
	}
	for _, t := range eventTypes {
		delete(c.SubscribedEvents, t)
	}

	now := time.Now()
	kept := h.connSubs[connectionID][:0]
	for _, subID := range h.connSubs[connectionID] {
		sub, ok := h.subscriptions[subID]
		if !ok {
			continue
		}
		sub.RemoveEventTypes(eventTypes)
		sub.LastActivity = now
		if len(sub.EventTypes) == 0 {
			delete(h.subscriptions, subID)
			continue
		}
		kept = append(kept, subID)
	}
	h.connSubs[connectionID] = kept
	return nil
}

// ProcessEvent matches the event against active subscriptions, fans out
// to each matched user's live authenticated connections, and buffers a
// copy for users with none. Called by the event bus.
func (h *ConnectionHub) ProcessEvent(ctx context.Context, e *models.Event) error {
	if e == nil {
		return errors.New("nil event")
	}

	now := time.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}

	matchedUsers := make(map[string]bool)
	for _, sub := range h.subscriptions {
		if sub.MatchesEvent(e) {
			matchedUsers[sub.UserID] = true
			sub.LastActivity = now
		}
	}

	var targets []*Connection
	for userID := range matchedUsers {
		live := h.liveConnectionsLocked(userID, now)
		if len(live) == 0 {
			h.bufferLocked(userID, e, now)
			continue
		}
		targets = append(targets, live...)
	}

	// Subscriptions live and die with connections, so an offline user
	// has none. The addressed user still gets a buffered copy to replay
	// on their next authenticated connection.
	if e.UserID != models.SystemUserID && !matchedUsers[e.UserID] &&
		len(h.liveConnectionsLocked(e.UserID, now)) == 0 {
		h.bufferLocked(e.UserID, e, now)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	msg := NewMessage(MessageEvent, e)
	for _, c := range targets {
		h.send(c, msg)
	}
	return nil
}

// bufferLocked appends an event to the user's offline buffer, creating
// it on first use. Caller holds the lock.
func (h *ConnectionHub) bufferLocked(userID string, e *models.Event, now time.Time) {
	buf, ok := h.buffers[userID]
	if !ok {
		buf = newOfflineBuffer(h.cfg.BufferCapacity)
		h.buffers[userID] = buf
	}
	buf.append(e, now)
	h.eventsBuffered.Add(1)
}

// liveConnectionsLocked returns the user's authenticated connections
// within the liveness timeout. Caller holds the lock.
func (h *ConnectionHub) liveConnectionsLocked(userID string, now time.Time) []*Connection {
	var live []*Connection
	for connID := range h.userConns[userID] {
		c, ok := h.connections[connID]
		if !ok || !c.IsAuthenticated {
			continue
		}
		if c.Alive(now, h.cfg.LivenessTimeout) {
			live = append(live, c)
		}
	}
	return live
}

// Broadcast sends a message to every authenticated connection passing
// the predicate (nil matches all).
func (h *ConnectionHub) Broadcast(msg *Message, predicate func(*Connection) bool) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		if !c.IsAuthenticated {
			continue
		}
		if predicate != nil && !predicate(c) {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, msg)
	}
}

// SendToUser sends a message to every live authenticated connection of
// the user, returning the delivery attempt count.
func (h *ConnectionHub) SendToUser(userID string, msg *Message) int {
	now := time.Now()
	h.mu.RLock()
	targets := h.liveConnectionsLocked(userID, now)
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, msg)
	}
	return len(targets)
}

// SendToConnection sends a message to a single connection.
func (h *ConnectionHub) SendToConnection(connectionID string, msg *Message) error {
	h.mu.RLock()
	c, ok := h.connections[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return h.send(c, msg)
}

// MarkAlive refreshes the connection's last-ping instant. The WebSocket
// adapter calls this on client ping/pong traffic.
func (h *ConnectionHub) MarkAlive(connectionID string) {
	h.mu.Lock()
	if c, ok := h.connections[connectionID]; ok {
		c.LastPing = time.Now()
	}
	h.mu.Unlock()
}

// send delivers one framed message, bounded by the write timeout.
// Fire-and-forget: failures are logged and counted, never propagated to
// other recipients.
func (h *ConnectionHub) send(c *Connection, msg *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
	defer cancel()

	if err := c.transport.Send(ctx, msg); err != nil {
		h.sendFailures.Add(1)
		slog.Warn("Failed to send to connection",
			"connection_id", c.ID, "message_type", msg.Type, "error", err)
		return err
	}
	h.messagesSent.Add(1)
	return nil
}

// Metrics returns a value snapshot of the hub state.
func (h *ConnectionHub) Metrics() MetricsSnapshot {
	h.mu.RLock()
	snap := MetricsSnapshot{
		ActiveConnections: len(h.connections),
		Subscriptions:     len(h.subscriptions),
		BufferedUsers:     len(h.buffers),
	}
	for _, c := range h.connections {
		if c.IsAuthenticated {
			snap.AuthenticatedConnections++
		}
	}
	for _, buf := range h.buffers {
		snap.BufferedEvents += buf.size()
	}
	h.mu.RUnlock()

	snap.MessagesSent = h.messagesSent.Load()
	snap.SendFailures = h.sendFailures.Load()
	snap.EventsBuffered = h.eventsBuffered.Load()

	score := 100.0
	attempts := snap.MessagesSent + snap.SendFailures
	if attempts > 0 {
		score -= float64(snap.SendFailures) / float64(attempts) * 60
	}
	if score < 0 {
		score = 0
	}
	snap.HealthScore = score
	return snap
}

// Shutdown stops the maintenance loops and closes every transport.
func (h *ConnectionHub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.stopOnce.Do(func() { close(h.stopCh) })
	h.loopWg.Wait()

	for _, c := range conns {
		_ = c.transport.Close()
	}
	slog.Info("Connection hub stopped", "closed_connections", len(conns))
}

// runHeartbeat broadcasts pings to authenticated connections.
func (h *ConnectionHub) runHeartbeat(ctx context.Context) {
	defer h.loopWg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(NewMessage(MessagePing, nil), nil)
		}
	}
}

// runReaper removes connections whose last ping is older than the reap
// threshold and prunes stale subscriptions.
func (h *ConnectionHub) runReaper(ctx context.Context) {
	defer h.loopWg.Done()

	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapOnce(time.Now())
		}
	}
}

func (h *ConnectionHub) reapOnce(now time.Time) {
	h.mu.RLock()
	var stale []string
	for id, c := range h.connections {
		if now.Sub(c.LastPing) > h.cfg.ReapAfter {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		slog.Info("Reaping stale connection", "connection_id", id)
		h.RemoveConnection(id)
	}

	h.mu.Lock()
	for subID, sub := range h.subscriptions {
		if sub.Stale(now, h.cfg.StaleSubscriptionAfter) {
			delete(h.subscriptions, subID)
			slog.Debug("Removed stale subscription", "subscription_id", subID, "user_id", sub.UserID)
		}
	}
	h.mu.Unlock()
}

// runBufferCleaner drops aged buffered events and empty buffers.
func (h *ConnectionHub) runBufferCleaner(ctx context.Context) {
	defer h.loopWg.Done()

	ticker := time.NewTicker(h.cfg.BufferCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanBuffersOnce(time.Now())
		}
	}
}

func (h *ConnectionHub) cleanBuffersOnce(now time.Time) {
	cutoff := now.Add(-h.cfg.BufferTTL)
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, buf := range h.buffers {
		dropped := buf.pruneOlderThan(cutoff)
		if dropped > 0 {
			slog.Debug("Dropped aged buffered events", "user_id", userID, "count", dropped)
		}
		if buf.size() == 0 {
			delete(h.buffers, userID)
		}
	}
}
