package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	commandTimeout = 10 * time.Second
)

// DropPolicy decides which event is lost when a connection's outbound queue
// is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "newest"
	DropOldest DropPolicy = "oldest"
)

// Conn is one live websocket session of a user. Outbound messages go through
// a bounded queue drained by Write; a full queue drops instead of blocking.
type Conn struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	log  logrus.FieldLogger
	user types.User

	send     chan *ServerMessage
	policy   DropPolicy
	sendLock sync.Mutex

	rooms     map[int]*Room
	detached  bool
	roomsLock sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConn wraps ws for user. ws may be nil for connections that are never
// pumped, such as in tests.
func NewConn(ws *websocket.Conn, user types.User, hub *Hub) *Conn {
	id, err := shortid.Generate()
	if err != nil {
		id = Now().Format("150405.000000000")
	}

	return &Conn{
		id:     id,
		ws:     ws,
		hub:    hub,
		log:    hub.log.WithFields(logrus.Fields{"conn_id": id, "user_id": user.Id}),
		user:   user,
		send:   make(chan *ServerMessage, hub.cfg.QueueSize),
		policy: hub.cfg.DropPolicy,
		rooms:  make(map[int]*Room),
		stop:   make(chan struct{}),
	}
}

func (c *Conn) Id() string       { return c.id }
func (c *Conn) User() types.User { return c.user }

func (c *Conn) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.WithError(err).Error("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read processes commands until the socket fails, then disconnects c.
// Commands are handled one at a time so a connection's responses follow
// the order of its commands.
func (c *Conn) Read(d *Dispatcher) {
	defer func() {
		c.ws.Close()
		c.hub.Disconnect(c.id)
		c.log.Debug("read exiting")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(appData string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("ws read")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.WithError(err).Debug("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}
		msg.Timestamp = Now()

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		resp := d.Dispatch(ctx, c, &msg)
		cancel()

		c.queueMessage(resp)
	}
}

// queueMessage enqueues msg without blocking. It reports whether msg was
// queued; on a full queue the drop policy decides what is lost.
func (c *Conn) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
	}

	if c.policy != DropOldest {
		c.dropped("queue full, dropping newest message")
		return false
	}

	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	for {
		select {
		case c.send <- msg:
			c.dropped("queue full, dropped oldest message")
			return true
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *Conn) dropped(reason string) {
	c.hub.stats.Incr(stats.EventsDropped)
	c.log.Warn(reason)
}

func (c *Conn) sendMessage(msgType int, msg []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.ws.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.WithError(err).Warn("write message")
		}
		return false
	}

	return true
}

func (c *Conn) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// addRoom records r as joined. It fails once the connection has been
// detached by Disconnect.
func (c *Conn) addRoom(r *Room) bool {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	if c.detached {
		return false
	}
	c.rooms[r.id] = r
	return true
}

func (c *Conn) delRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	if cur, ok := c.rooms[r.id]; ok && cur == r {
		delete(c.rooms, r.id)
	}
}

func (c *Conn) getRoom(id int) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()
	return c.rooms[id]
}

// detachRooms returns the joined rooms and refuses any later join.
func (c *Conn) detachRooms() []*Room {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.detached = true
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}
