package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize       = 256
	DefaultIdleRoomTimeout = 5 * time.Second
)

// RoomResolver decides whether a user may subscribe to a room.
type RoomResolver interface {
	JoinableRoom(ctx context.Context, user types.User, roomId int) (types.Room, error)
}

type HubConfig struct {
	QueueSize       int
	DropPolicy      DropPolicy
	IdleRoomTimeout time.Duration
}

type userTopic struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// Hub tracks live connections and their topic subscriptions and fans events
// out to them. Room topics are served by one Room actor per loaded room; user
// topics are delivered under a per-user lock.
type Hub struct {
	log      logrus.FieldLogger
	resolver RoomResolver
	stats    stats.StatsProvider
	cfg      HubConfig

	mu       sync.RWMutex
	conns    map[string]*Conn
	users    map[int]*userTopic
	rooms    map[int]*Room
	shutdown bool
}

func NewHub(logger logrus.FieldLogger, resolver RoomResolver, su stats.StatsProvider, cfg HubConfig) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DropPolicy == "" {
		cfg.DropPolicy = DropNewest
	}
	if cfg.IdleRoomTimeout <= 0 {
		cfg.IdleRoomTimeout = DefaultIdleRoomTimeout
	}

	return &Hub{
		log:      logger,
		resolver: resolver,
		stats:    su,
		cfg:      cfg,
		conns:    make(map[string]*Conn),
		users:    make(map[int]*userTopic),
		rooms:    make(map[int]*Room),
	}
}

// SetResolver replaces the room resolver. It must be called before the hub
// serves connections.
func (h *Hub) SetResolver(resolver RoomResolver) {
	h.resolver = resolver
}

// Connect registers c and subscribes it to its user's topic. Connecting the
// same connection twice has no effect.
func (h *Hub) Connect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.id]; ok {
		return
	}
	h.conns[c.id] = c

	ut, ok := h.users[c.user.Id]
	if !ok {
		ut = &userTopic{conns: make(map[*Conn]struct{})}
		h.users[c.user.Id] = ut
	}
	ut.mu.Lock()
	ut.conns[c] = struct{}{}
	ut.mu.Unlock()

	h.stats.Incr(stats.NumActiveClients)
	c.log.Info("connection registered")
}

func (h *Hub) conn(connId string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connId]
	return c, ok
}

// JoinRoom subscribes the connection to the room topic. The room must exist
// and the user must own it or be a member. Joining again is a no-op.
func (h *Hub) JoinRoom(ctx context.Context, connId string, roomId int) error {
	c, ok := h.conn(connId)
	if !ok {
		return ErrUnknownConnection
	}

	if _, err := h.resolver.JoinableRoom(ctx, c.user, roomId); err != nil {
		return err
	}

	for {
		r, err := h.loadRoom(roomId)
		if err != nil {
			return err
		}

		req := &joinReq{conn: c, done: make(chan bool, 1)}
		select {
		case r.joinChan <- req:
		case <-r.done:
			// unloaded between lookup and send, load it again
			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case joined := <-req.done:
			if joined {
				c.log.WithField("room_id", roomId).Debug("joined room")
			}
			return nil
		case <-r.done:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LeaveRoom unsubscribes the connection from the room topic. It is a no-op
// if the connection never joined.
func (h *Hub) LeaveRoom(connId string, roomId int) {
	c, ok := h.conn(connId)
	if !ok {
		return
	}
	r := c.getRoom(roomId)
	if r == nil {
		return
	}

	req := &leaveReq{conn: c, done: make(chan struct{})}
	select {
	case r.leaveChan <- req:
	case <-r.done:
		return
	}
	select {
	case <-req.done:
	case <-r.done:
	}
}

// Disconnect drops every subscription of the connection and stops its
// writer. Other connections are never waited on.
func (h *Hub) Disconnect(connId string) {
	h.mu.Lock()
	c, ok := h.conns[connId]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connId)

	if ut, ok := h.users[c.user.Id]; ok {
		ut.mu.Lock()
		delete(ut.conns, c)
		empty := len(ut.conns) == 0
		ut.mu.Unlock()
		if empty {
			delete(h.users, c.user.Id)
		}
	}
	h.mu.Unlock()

	c.close()

	for _, r := range c.detachRooms() {
		select {
		case r.leaveChan <- &leaveReq{conn: c}:
		case <-r.done:
		}
	}

	h.stats.Decr(stats.NumActiveClients)
	c.log.Info("connection removed")
}

// Publish delivers event to every connection subscribed to topic. It never
// waits on a slow connection; events a connection cannot take are dropped.
func (h *Hub) Publish(topic types.Topic, event types.Event) {
	event.Topic = topic
	msg := eventMessage(event)

	switch topic.Kind {
	case types.TopicRoom:
		h.mu.RLock()
		r, ok := h.rooms[topic.Id]
		h.mu.RUnlock()
		if !ok {
			return
		}
		select {
		case r.publishChan <- msg:
		case <-r.done:
		}
	case types.TopicUser:
		h.mu.RLock()
		ut, ok := h.users[topic.Id]
		h.mu.RUnlock()
		if !ok {
			return
		}
		ut.mu.Lock()
		for c := range ut.conns {
			c.queueMessage(msg)
		}
		ut.mu.Unlock()
	default:
		h.log.WithField("topic", topic.String()).Warn("publish to unknown topic kind")
	}
}

func (h *Hub) loadRoom(roomId int) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		return nil, ErrShuttingDown
	}
	if r, ok := h.rooms[roomId]; ok {
		return r, nil
	}

	r := newRoom(roomId, h)
	h.rooms[roomId] = r
	h.stats.Incr(stats.NumActiveRooms)
	go r.start()

	return r, nil
}

// unloadRoom removes r from the registry if it is still the loaded instance.
func (h *Hub) unloadRoom(r *Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.rooms[r.id]; !ok || cur != r {
		return false
	}
	delete(h.rooms, r.id)
	h.stats.Decr(stats.NumActiveRooms)
	return true
}

// Shutdown stops every room actor and closes every connection.
func (h *Hub) Shutdown() {
	h.log.Info("shutting down hub")

	h.mu.Lock()
	h.shutdown = true
	rooms := make([]*Room, 0, len(h.rooms))
	for id, r := range h.rooms {
		rooms = append(rooms, r)
		delete(h.rooms, id)
	}
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		close(r.exit)
		<-r.done
		h.stats.Decr(stats.NumActiveRooms)
	}
	for _, c := range conns {
		c.close()
	}
}

// Subscribers reports how many connections are subscribed to topic.
func (h *Hub) Subscribers(topic types.Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch topic.Kind {
	case types.TopicUser:
		ut, ok := h.users[topic.Id]
		if !ok {
			return 0
		}
		ut.mu.Lock()
		defer ut.mu.Unlock()
		return len(ut.conns)
	case types.TopicRoom:
		n := 0
		for _, c := range h.conns {
			if c.getRoom(topic.Id) != nil {
				n++
			}
		}
		return n
	}
	return 0
}
