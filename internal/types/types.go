package types

import (
	"time"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

func (u User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

type Room struct {
	Id        int       `json:"id"`
	Name      string    `json:"name"`
	OwnerId   int       `json:"owner_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Members   []User    `json:"members,omitempty"`
}

type MessageKind string

const (
	MessagePublic  MessageKind = "public"
	MessagePrivate MessageKind = "private"
)

// Message is append-only. ReceiverId is set iff Kind is MessagePrivate.
type Message struct {
	Id         int         `json:"id"`
	RoomId     int         `json:"room_id"`
	SenderId   int         `json:"sender_id"`
	ReceiverId *int        `json:"receiver_id,omitempty"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	SentAt     time.Time   `json:"sent_at"`
}

type Answer struct {
	Id          int       `json:"id"`
	QuestionId  int       `json:"question_id"`
	UserId      int       `json:"user_id"`
	Content     string    `json:"content"`
	Score       *float64  `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type AttendanceKind string

const (
	AttendanceOpen     AttendanceKind = "open"
	AttendancePassword AttendanceKind = "password"
)

type Attendance struct {
	Id        int            `json:"id"`
	RoomId    int            `json:"room_id"`
	Title     string         `json:"title"`
	Kind      AttendanceKind `json:"kind"`
	Secret    string         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Expired reports whether the attendance window is closed at now. An
// attendance without an expiry never expires.
func (a Attendance) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

type AttendanceRecord struct {
	Id           int       `json:"id"`
	AttendanceId int       `json:"attendance_id"`
	UserId       int       `json:"user_id"`
	SignedAt     time.Time `json:"signed_at"`
}
