package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-classroom/internal/classroom"
	"github.com/sirupsen/logrus"
)

// Dispatcher turns client commands into classroom operations and hub
// subscription changes.
type Dispatcher struct {
	cls *classroom.Classroom
	hub *Hub
	log logrus.FieldLogger
}

func NewDispatcher(cls *classroom.Classroom, hub *Hub, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{cls: cls, hub: hub, log: logger}
}

// Dispatch runs msg on behalf of c and returns the response to queue back.
// Events caused by the command reach c through its subscriptions.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, msg *ClientMessage) *ServerMessage {
	user := c.user

	switch {
	case msg.Join != nil:
		if err := d.hub.JoinRoom(ctx, c.id, msg.Join.RoomId); err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, nil)

	case msg.Leave != nil:
		d.hub.LeaveRoom(c.id, msg.Leave.RoomId)
		return NoErrOK(msg.Id, nil)

	case msg.Publish != nil:
		m, err := d.cls.Rooms.PostPublicMessage(ctx, user, msg.Publish.RoomId, msg.Publish.Content)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrAccepted(msg.Id, m)

	case msg.Private != nil:
		p := msg.Private
		m, err := d.cls.Rooms.PostPrivateMessage(ctx, user, p.RoomId, p.ReceiverId, p.Content)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrAccepted(msg.Id, m)

	case msg.Question != nil:
		q := msg.Question
		if err := classroom.RequireTeacher(user); err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		spec, err := classroom.ParseQuestion(q.Kind, q.Title, q.Body, q.Options, q.Answer)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		question, err := d.cls.Questions.CreateQuestion(ctx, user, q.RoomId, spec)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, question.View(true))

	case msg.Answer != nil:
		a, err := d.cls.Questions.SubmitAnswer(ctx, user, msg.Answer.QuestionId, msg.Answer.Content)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, a)

	case msg.Attendance != nil:
		a := msg.Attendance
		att, err := d.cls.Attendance.CreateAttendance(ctx, user, a.RoomId, classroom.AttendanceParams{
			Title:       a.Title,
			Kind:        a.Kind,
			Secret:      a.Secret,
			ExpireAfter: time.Duration(a.ExpireMinutes) * time.Minute,
		})
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, att)

	case msg.Sign != nil:
		rec, err := d.cls.Attendance.Sign(ctx, user, msg.Sign.AttendanceId, msg.Sign.Secret)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, rec)

	case msg.Snapshot != nil:
		snap, err := d.cls.Rooms.Snapshot(ctx, user, msg.Snapshot.RoomId)
		if err != nil {
			return d.errResponse(c, msg.Id, err)
		}
		return NoErrOK(msg.Id, snap)
	}

	return ErrInvalidMessage(msg.Id)
}

func (d *Dispatcher) errResponse(c *Conn, id int, err error) *ServerMessage {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		c.log.WithError(err).WithField("msg_id", id).Error("command failed")
		return ErrInternalError(id)
	}

	c.log.WithError(err).WithField("msg_id", id).Debug("command rejected")
	return ErrResponse(id, code, err.Error())
}

// StatusCode maps an error from the classroom or the hub to the HTTP status
// reported to clients.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, classroom.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, classroom.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, classroom.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, classroom.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, classroom.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, classroom.ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrUnknownConnection), errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
