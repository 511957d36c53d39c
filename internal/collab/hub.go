// Package collab runs the realtime editing sessions: websocket clients join
// document rooms, push content and cursor updates, and see who else is there.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/internal/config"
	"github.com/collabdocs/collabdocs/internal/document/repository"
	"github.com/collabdocs/collabdocs/internal/presence"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/metrics"
	"github.com/collabdocs/collabdocs/pkg/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Publisher forwards room traffic to other instances.
type Publisher interface {
	Publish(ctx context.Context, msg BusMessage) error
}

// Hub owns the local room table. Presence (who is in a room) lives in the
// registry, which may be shared between instances; room membership of
// connections is always local.
type Hub struct {
	store    repository.Store
	presence presence.Registry
	bus      Publisher
	cfg      config.CollabConfig
	instance string

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub returns a Hub. bus may be nil for a single instance deployment.
func NewHub(store repository.Store, reg presence.Registry, bus Publisher, cfg config.CollabConfig) *Hub {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 20 * time.Second
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod * 3 / 2
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	return &Hub{
		store:    store,
		presence: reg,
		bus:      bus,
		cfg:      cfg,
		instance: uuid.NewString(),
		rooms:    make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]struct{}),
	}
}

// InstanceID identifies this hub on the bus.
func (h *Hub) InstanceID() string { return h.instance }

// Register tracks a new connection. conn may be nil when the caller drives
// the client directly.
func (h *Hub) Register(conn *websocket.Conn, who access.Identity) *Client {
	c := newClient(h, conn, who, middleware.NewMessageLimiter(h.cfg.MessageRPS, h.cfg.MessageBurst))
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.CollabConnections.Inc()
	logger.Debugw("client connected", "conn", c.id, "user", who.UserID)
	return c
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.close()
	}
}

func (h *Hub) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.cfg.StoreTimeout)
}

// Handle dispatches one inbound frame. Failures are reported to the sender
// only, as error events.
func (h *Hub) Handle(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		metrics.CollabEvents.WithLabelValues("invalid").Inc()
		c.enqueue(errorFrame(MsgInvalidMessage))
		return
	}
	switch env.Event {
	case EventJoin, EventLeave:
		id, err := documentIDOf(env.Data)
		if err != nil {
			break
		}
		metrics.CollabEvents.WithLabelValues(env.Event).Inc()
		if env.Event == EventJoin {
			h.join(ctx, c, id)
		} else {
			h.leave(ctx, c, id)
		}
		return
	case EventContentChange:
		var p ContentChange
		if err := json.Unmarshal(env.Data, &p); err != nil || p.DocumentID == "" {
			break
		}
		metrics.CollabEvents.WithLabelValues(env.Event).Inc()
		h.contentChange(ctx, c, p)
		return
	case EventCursorPosition:
		var p CursorPosition
		if err := json.Unmarshal(env.Data, &p); err != nil || p.DocumentID == "" {
			break
		}
		metrics.CollabEvents.WithLabelValues(env.Event).Inc()
		h.cursor(ctx, c, p)
		return
	}
	metrics.CollabEvents.WithLabelValues("invalid").Inc()
	c.enqueue(errorFrame(MsgInvalidMessage))
}

func (h *Hub) join(ctx context.Context, c *Client, docID string) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	doc, err := h.store.FindByID(sctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		c.enqueue(errorFrame(MsgDocumentNotFound))
		return
	}
	if err != nil {
		metrics.DocumentStoreErrors.WithLabelValues("find").Inc()
		logger.Errorw("join failed", "doc", docID, "user", c.who.UserID, "err", err)
		c.enqueue(errorFrame(MsgJoinFailed))
		return
	}
	if h.cfg.EnforceAccess {
		if d := access.Evaluate(doc, c.who, access.PermissionViewer); !d.Allowed {
			c.enqueue(errorFrame(d.Reason))
			return
		}
	}

	if prev := h.attach(c, docID); prev != "" && prev != docID {
		h.leavePresence(ctx, c, prev)
	}
	members, err := h.presence.Join(sctx, docID, c.who.UserID)
	if err != nil {
		logger.Errorw("presence join failed", "doc", docID, "user", c.who.UserID, "err", err)
		h.detach(c, docID)
		c.enqueue(errorFrame(MsgJoinFailed))
		return
	}
	c.enqueue(encode(EventJoined, Joined{Content: doc.Content, ActiveUsers: members}))
	h.broadcast(ctx, docID, c, encode(EventUserJoined, Presence{UserID: c.who.UserID, ActiveUsers: members}))
	logger.Debugw("joined document", "doc", docID, "user", c.who.UserID)
}

func (h *Hub) contentChange(ctx context.Context, c *Client, p ContentChange) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	if h.cfg.EnforceAccess {
		doc, err := h.store.FindByID(sctx, p.DocumentID)
		if errors.Is(err, repository.ErrNotFound) {
			c.enqueue(errorFrame(MsgDocumentNotFound))
			return
		}
		if err != nil {
			metrics.DocumentStoreErrors.WithLabelValues("find").Inc()
			c.enqueue(errorFrame(MsgUpdateFailed))
			return
		}
		if d := access.Evaluate(doc, c.who, access.PermissionEditor); !d.Allowed {
			c.enqueue(errorFrame(d.Reason))
			return
		}
	}
	if _, err := h.store.UpdateContent(sctx, p.DocumentID, p.Content); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.enqueue(errorFrame(MsgDocumentNotFound))
			return
		}
		metrics.DocumentStoreErrors.WithLabelValues("update_content").Inc()
		logger.Errorw("content update failed", "doc", p.DocumentID, "user", c.who.UserID, "err", err)
		c.enqueue(errorFrame(MsgUpdateFailed))
		return
	}
	h.broadcast(ctx, p.DocumentID, c, encode(EventContentUpdated, ContentUpdated{
		Content:        p.Content,
		UserID:         c.who.UserID,
		CursorPosition: p.CursorPosition,
	}))
}

// cursor is relayed as is. With access enforcement on, only members of the
// room may move a cursor in it.
func (h *Hub) cursor(ctx context.Context, c *Client, p CursorPosition) {
	if h.cfg.EnforceAccess && !h.inRoom(c, p.DocumentID) {
		c.enqueue(errorFrame(access.ReasonAccessDenied))
		return
	}
	h.broadcast(ctx, p.DocumentID, c, encode(EventCursorMoved, CursorMoved{UserID: c.who.UserID, Position: p.Position}))
}

func (h *Hub) leave(ctx context.Context, c *Client, docID string) {
	h.detach(c, docID)
	h.leavePresence(ctx, c, docID)
	logger.Debugw("left document", "doc", docID, "user", c.who.UserID)
}

func (h *Hub) leavePresence(ctx context.Context, c *Client, docID string) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	remaining, err := h.presence.Leave(sctx, docID, c.who.UserID)
	if err != nil {
		logger.Errorw("presence leave failed", "doc", docID, "user", c.who.UserID, "err", err)
		return
	}
	if len(remaining) > 0 {
		h.broadcast(ctx, docID, c, encode(EventUserLeft, Presence{UserID: c.who.UserID, ActiveUsers: remaining}))
	}
}

// disconnect unregisters c and tells every room it was in.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if c.room != "" {
		h.removeLocked(c, c.room)
	}
	h.mu.Unlock()
	metrics.CollabConnections.Dec()

	ctx, cancel := h.storeCtx(context.Background())
	defer cancel()
	affected, err := h.presence.OnDisconnect(ctx, c.who.UserID)
	if err != nil {
		logger.Errorw("presence cleanup failed", "user", c.who.UserID, "err", err)
		return
	}
	for docID, remaining := range affected {
		h.broadcast(ctx, docID, c, encode(EventUserLeft, Presence{UserID: c.who.UserID, ActiveUsers: remaining}))
	}
	logger.Debugw("client disconnected", "conn", c.id, "user", c.who.UserID)
}

// EvictDocument closes the room of a deleted document on every instance.
func (h *Hub) EvictDocument(ctx context.Context, docID string) {
	frame := encode(EventDocumentDeleted, DocumentDeleted{DocumentID: docID})
	h.evictLocal(docID, frame)
	if _, err := h.presence.Evict(ctx, docID); err != nil {
		logger.Errorw("presence evict failed", "doc", docID, "err", err)
	}
	h.publish(ctx, BusMessage{Kind: KindEvict, DocID: docID, Frame: frame})
}

// RevokeAccess re-checks every member of docID's room against the stored
// document and drops those who may no longer view it, on every instance.
// Dropped clients get an error frame; the rest see user-left.
func (h *Hub) RevokeAccess(ctx context.Context, docID string) {
	h.dropUnauthorized(ctx, docID)
	h.publish(ctx, BusMessage{Kind: KindRevoke, DocID: docID})
}

func (h *Hub) dropUnauthorized(ctx context.Context, docID string) {
	if !h.cfg.EnforceAccess {
		return
	}
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		members = append(members, c)
	}
	h.mu.RUnlock()
	if len(members) == 0 {
		return
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	doc, err := h.store.FindByID(sctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		// deletion evicts the room on its own
		return
	}
	if err != nil {
		metrics.DocumentStoreErrors.WithLabelValues("find").Inc()
		logger.Errorw("access recheck failed", "doc", docID, "err", err)
		return
	}
	dropped := make(map[string]*Client)
	for _, c := range members {
		d := access.Evaluate(doc, c.who, access.PermissionViewer)
		if d.Allowed {
			continue
		}
		h.detach(c, docID)
		c.enqueue(errorFrame(d.Reason))
		dropped[c.who.UserID] = c
	}
	for _, c := range dropped {
		h.leavePresence(ctx, c, docID)
		logger.Infow("access revoked", "doc", docID, "user", c.who.UserID)
	}
}

// Receive applies a message published by another instance.
func (h *Hub) Receive(msg BusMessage) {
	if msg.Origin == h.instance {
		return
	}
	switch msg.Kind {
	case KindEvict:
		h.evictLocal(msg.DocID, msg.Frame)
	case KindRevoke:
		h.dropUnauthorized(context.Background(), msg.DocID)
	default:
		h.deliver(msg.DocID, nil, msg.Frame)
	}
}

func (h *Hub) broadcast(ctx context.Context, docID string, except *Client, frame []byte) {
	h.deliver(docID, except, frame)
	h.publish(ctx, BusMessage{Kind: KindBroadcast, DocID: docID, Frame: frame})
}

func (h *Hub) publish(ctx context.Context, msg BusMessage) {
	if h.bus == nil {
		return
	}
	msg.Origin = h.instance
	if err := h.bus.Publish(ctx, msg); err != nil {
		logger.Warnw("bus publish failed", "doc", msg.DocID, "err", err)
	}
}

func (h *Hub) deliver(docID string, except *Client, frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) evictLocal(docID string, frame []byte) {
	h.mu.Lock()
	members := h.rooms[docID]
	delete(h.rooms, docID)
	for c := range members {
		c.room = ""
	}
	metrics.CollabRooms.Set(float64(len(h.rooms)))
	h.mu.Unlock()
	for c := range members {
		c.enqueue(frame)
	}
}

// attach moves c into docID and returns the room it was in before.
func (h *Hub) attach(c *Client, docID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := c.room
	if prev != "" && prev != docID {
		h.removeLocked(c, prev)
	}
	set, ok := h.rooms[docID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[docID] = set
	}
	set[c] = struct{}{}
	c.room = docID
	metrics.CollabRooms.Set(float64(len(h.rooms)))
	return prev
}

func (h *Hub) detach(c *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == docID {
		h.removeLocked(c, docID)
	}
}

func (h *Hub) removeLocked(c *Client, docID string) {
	if set, ok := h.rooms[docID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, docID)
		}
	}
	c.room = ""
	metrics.CollabRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) inRoom(c *Client, docID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room == docID
}

// Room returns the document c is joined to, or "".
func (h *Hub) Room(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}
