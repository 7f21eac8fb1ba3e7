package database

import (
	"context"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockClassroomRepository struct {
	mock.Mock
}

func (m *MockClassroomRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockClassroomRepository) CreateUser(ctx context.Context, params CreateUserParams) (types.User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockClassroomRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockClassroomRepository) GetTeacherByName(ctx context.Context, name string) (types.User, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockClassroomRepository) ListStudents(ctx context.Context) ([]types.User, error) {
	args := m.Called(ctx)
	if v, ok := args.Get(0).([]types.User); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockClassroomRepository) GetRoom(ctx context.Context, id int) (types.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockClassroomRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	if v, ok := args.Get(0).([]types.Room); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) ListRoomMembers(ctx context.Context, roomId int) ([]types.User, error) {
	args := m.Called(ctx, roomId)
	if v, ok := args.Get(0).([]types.User); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) IsRoomMember(ctx context.Context, roomId, userId int) (bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockClassroomRepository) CreateMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockClassroomRepository) ListPublicMessages(ctx context.Context, roomId, limit int) ([]types.Message, error) {
	args := m.Called(ctx, roomId, limit)
	if v, ok := args.Get(0).([]types.Message); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) ListPrivateMessages(ctx context.Context, roomId, userId, limit int) ([]types.Message, error) {
	args := m.Called(ctx, roomId, userId, limit)
	if v, ok := args.Get(0).([]types.Message); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) CreateQuestion(ctx context.Context, q types.Question) (types.Question, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(types.Question), args.Error(1)
}
func (m *MockClassroomRepository) GetQuestion(ctx context.Context, id int) (types.Question, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Question), args.Error(1)
}
func (m *MockClassroomRepository) ListQuestions(ctx context.Context, roomId int) ([]types.Question, error) {
	args := m.Called(ctx, roomId)
	if v, ok := args.Get(0).([]types.Question); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) CreateAnswer(ctx context.Context, a types.Answer) (types.Answer, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(types.Answer), args.Error(1)
}
func (m *MockClassroomRepository) GetAnswer(ctx context.Context, questionId, userId int) (types.Answer, error) {
	args := m.Called(ctx, questionId, userId)
	return args.Get(0).(types.Answer), args.Error(1)
}
func (m *MockClassroomRepository) ListAnswers(ctx context.Context, questionId int) ([]types.Answer, error) {
	args := m.Called(ctx, questionId)
	if v, ok := args.Get(0).([]types.Answer); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) CreateAttendance(ctx context.Context, a types.Attendance) (types.Attendance, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(types.Attendance), args.Error(1)
}
func (m *MockClassroomRepository) GetAttendance(ctx context.Context, id int) (types.Attendance, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Attendance), args.Error(1)
}
func (m *MockClassroomRepository) ListOpenAttendances(ctx context.Context, roomId int, now time.Time) ([]types.Attendance, error) {
	args := m.Called(ctx, roomId, now)
	if v, ok := args.Get(0).([]types.Attendance); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) CreateAttendanceRecord(ctx context.Context, r types.AttendanceRecord) (types.AttendanceRecord, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(types.AttendanceRecord), args.Error(1)
}
func (m *MockClassroomRepository) GetAttendanceRecord(ctx context.Context, attendanceId, userId int) (types.AttendanceRecord, error) {
	args := m.Called(ctx, attendanceId, userId)
	return args.Get(0).(types.AttendanceRecord), args.Error(1)
}
func (m *MockClassroomRepository) ListAttendanceRecords(ctx context.Context, attendanceId int) ([]types.AttendanceRecord, error) {
	args := m.Called(ctx, attendanceId)
	if v, ok := args.Get(0).([]types.AttendanceRecord); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClassroomRepository) ListUserRecords(ctx context.Context, roomId, userId int) ([]types.AttendanceRecord, error) {
	args := m.Called(ctx, roomId, userId)
	if v, ok := args.Get(0).([]types.AttendanceRecord); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

var _ ClassroomRepository = (*MockClassroomRepository)(nil)
