package database

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by the Create methods guarded by a natural
	// key (answers and attendance records) when a row already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// ClassroomRepository is the durable store. CreateAnswer and
// CreateAttendanceRecord are atomic check-and-insert operations: of two
// concurrent calls for the same (entity, user) pair exactly one succeeds and
// the other returns ErrDuplicate.
type ClassroomRepository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (types.User, error)
	GetUser(ctx context.Context, id int) (types.User, error)
	GetTeacherByName(ctx context.Context, name string) (types.User, error)
	ListStudents(ctx context.Context) ([]types.User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error)
	GetRoom(ctx context.Context, id int) (types.Room, error)
	ListActiveRooms(ctx context.Context) ([]types.Room, error)
	ListRoomMembers(ctx context.Context, roomId int) ([]types.User, error)
	IsRoomMember(ctx context.Context, roomId, userId int) (bool, error)

	CreateMessage(ctx context.Context, msg types.Message) (types.Message, error)
	ListPublicMessages(ctx context.Context, roomId, limit int) ([]types.Message, error)
	ListPrivateMessages(ctx context.Context, roomId, userId, limit int) ([]types.Message, error)

	CreateQuestion(ctx context.Context, q types.Question) (types.Question, error)
	GetQuestion(ctx context.Context, id int) (types.Question, error)
	ListQuestions(ctx context.Context, roomId int) ([]types.Question, error)

	CreateAnswer(ctx context.Context, a types.Answer) (types.Answer, error)
	GetAnswer(ctx context.Context, questionId, userId int) (types.Answer, error)
	ListAnswers(ctx context.Context, questionId int) ([]types.Answer, error)

	CreateAttendance(ctx context.Context, a types.Attendance) (types.Attendance, error)
	GetAttendance(ctx context.Context, id int) (types.Attendance, error)
	ListOpenAttendances(ctx context.Context, roomId int, now time.Time) ([]types.Attendance, error)

	CreateAttendanceRecord(ctx context.Context, r types.AttendanceRecord) (types.AttendanceRecord, error)
	GetAttendanceRecord(ctx context.Context, attendanceId, userId int) (types.AttendanceRecord, error)
	ListAttendanceRecords(ctx context.Context, attendanceId int) ([]types.AttendanceRecord, error)
	ListUserRecords(ctx context.Context, roomId, userId int) ([]types.AttendanceRecord, error)
}

var (
	_ ClassroomRepository = (*PgClassroomRepository)(nil)
	_ ClassroomRepository = (*MemoryClassroomRepository)(nil)
)
