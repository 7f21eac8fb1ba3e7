package types

import "time"

type EventType string

const (
	EventUserJoined        EventType = "UserJoined"
	EventUserLeft          EventType = "UserLeft"
	EventMessagePosted     EventType = "MessagePosted"
	EventQuestionCreated   EventType = "QuestionCreated"
	EventAnswerSubmitted   EventType = "AnswerSubmitted"
	EventAttendanceCreated EventType = "AttendanceCreated"
	EventAttendanceSigned  EventType = "AttendanceSigned"
)

// Event is a topic-addressed notification. Only the payload field matching
// Type is set. Topic is filled in by the broadcaster at publish time.
type Event struct {
	Type       EventType         `json:"type"`
	Topic      Topic             `json:"topic"`
	RoomId     int               `json:"room_id,omitempty"`
	User       *User             `json:"user,omitempty"`
	Message    *Message          `json:"message,omitempty"`
	Question   *QuestionView     `json:"question,omitempty"`
	Answer     *Answer           `json:"answer,omitempty"`
	Attendance *Attendance       `json:"attendance,omitempty"`
	Record     *AttendanceRecord `json:"record,omitempty"`
	Timestamp  time.Time         `json:"ts"`
}
