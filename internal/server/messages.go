package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a command sent by a connection. Exactly one of the
// command fields is expected to be set.
type ClientMessage struct {
	BaseMessage
	Join       *Join            `json:"join,omitempty"`
	Leave      *Leave           `json:"leave,omitempty"`
	Publish    *Publish         `json:"publish,omitempty"`
	Private    *Private         `json:"private,omitempty"`
	Question   *AskQuestion     `json:"question,omitempty"`
	Answer     *SubmitAnswer    `json:"answer,omitempty"`
	Attendance *OpenAttendance  `json:"attendance,omitempty"`
	Sign       *Sign            `json:"sign,omitempty"`
	Snapshot   *SnapshotRequest `json:"snapshot,omitempty"`
}

type Join struct {
	RoomId int `json:"room_id"`
}

type Leave struct {
	RoomId int `json:"room_id"`
}

type Publish struct {
	RoomId  int    `json:"room_id"`
	Content string `json:"content"`
}

type Private struct {
	RoomId     int    `json:"room_id"`
	ReceiverId int    `json:"receiver_id"`
	Content    string `json:"content"`
}

type AskQuestion struct {
	RoomId  int                `json:"room_id"`
	Title   string             `json:"title"`
	Body    string             `json:"body"`
	Kind    types.QuestionKind `json:"kind"`
	Options []string           `json:"options,omitempty"`
	Answer  string             `json:"answer,omitempty"`
}

type SubmitAnswer struct {
	QuestionId int    `json:"question_id"`
	Content    string `json:"content"`
}

type OpenAttendance struct {
	RoomId int                  `json:"room_id"`
	Title  string               `json:"title"`
	Kind   types.AttendanceKind `json:"kind"`
	Secret string               `json:"secret,omitempty"`
	// ExpireMinutes of zero leaves the attendance open indefinitely.
	ExpireMinutes int `json:"expire_minutes,omitempty"`
}

type Sign struct {
	AttendanceId int    `json:"attendance_id"`
	Secret       string `json:"secret,omitempty"`
}

type SnapshotRequest struct {
	RoomId int `json:"room_id"`
}

// ServerMessage is either a response to a command or a topic event.
type ServerMessage struct {
	BaseMessage
	Response *Response    `json:"response,omitempty"`
	Event    *types.Event `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func eventMessage(event types.Event) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event: &event,
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

func ErrResponse(id int, code int, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        message,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return ErrResponse(id, http.StatusInternalServerError, "internal server error")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := ErrResponse(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
