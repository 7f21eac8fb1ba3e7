package server

import (
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

type joinReq struct {
	conn *Conn
	// done receives true if the connection was not yet subscribed.
	done chan bool
}

type leaveReq struct {
	conn *Conn
	// done is closed once the connection is unsubscribed. May be nil.
	done chan struct{}
}

// Room serves the room:<id> topic. All subscription changes and publishes
// for the room go through start's select loop, so every subscriber observes
// the same event order.
type Room struct {
	id          int
	hub         *Hub
	log         logrus.FieldLogger
	joinChan    chan *joinReq
	leaveChan   chan *leaveReq
	publishChan chan *ServerMessage
	conns       map[*Conn]struct{}
	userConns   map[int]int
	// killTimer unloads the room once it has been idle long enough
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(id int, hub *Hub) *Room {
	return &Room{
		id:          id,
		hub:         hub,
		log:         hub.log.WithField("room_id", id),
		joinChan:    make(chan *joinReq, 256),
		leaveChan:   make(chan *leaveReq, 256),
		publishChan: make(chan *ServerMessage, 256),
		conns:       make(map[*Conn]struct{}),
		userConns:   make(map[int]int),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *Room) start() {
	defer close(r.done)

	r.log.Debug("starting room")
	r.killTimer = time.NewTimer(r.hub.cfg.IdleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case req := <-r.joinChan:
			r.handleJoin(req)
		case req := <-r.leaveChan:
			r.handleLeave(req)
		case msg := <-r.publishChan:
			r.broadcast(msg, nil)
		case <-r.killTimer.C:
			if len(r.conns) == 0 && r.hub.unloadRoom(r) {
				r.log.Debug("room unloaded after idle timeout")
				return
			}
		case <-r.exit:
			r.handleExit()
			return
		}
	}
}

// handleJoin adds a connection to the room. Presence is per user: UserJoined
// goes out only for the user's first connection, to everyone but that
// connection.
func (r *Room) handleJoin(req *joinReq) {
	c := req.conn
	if _, ok := r.conns[c]; ok {
		req.done <- false
		return
	}

	if !c.addRoom(r) {
		req.done <- false
		return
	}
	r.killTimer.Stop()
	r.conns[c] = struct{}{}
	r.userConns[c.user.Id]++

	if r.userConns[c.user.Id] == 1 {
		user := c.user
		r.broadcast(eventMessage(types.Event{
			Type:      types.EventUserJoined,
			Topic:     types.RoomTopic(r.id),
			RoomId:    r.id,
			User:      &user,
			Timestamp: Now(),
		}), c)
	}

	req.done <- true
}

func (r *Room) handleLeave(req *leaveReq) {
	if req.done != nil {
		defer close(req.done)
	}

	c := req.conn
	if _, ok := r.conns[c]; !ok {
		return
	}

	delete(r.conns, c)
	c.delRoom(r)
	r.userConns[c.user.Id]--

	if r.userConns[c.user.Id] == 0 {
		delete(r.userConns, c.user.Id)
		user := c.user
		r.broadcast(eventMessage(types.Event{
			Type:      types.EventUserLeft,
			Topic:     types.RoomTopic(r.id),
			RoomId:    r.id,
			User:      &user,
			Timestamp: Now(),
		}), nil)
	}

	if len(r.conns) == 0 {
		r.log.Debug("no connections left, starting kill timer")
		r.killTimer.Reset(r.hub.cfg.IdleRoomTimeout)
	}
}

func (r *Room) handleExit() {
	r.log.Debug("room is exiting")
	for c := range r.conns {
		c.delRoom(r)
	}
	r.conns = nil
}

func (r *Room) broadcast(msg *ServerMessage, skip *Conn) {
	for c := range r.conns {
		if c == skip {
			continue
		}
		c.queueMessage(msg)
	}
}
