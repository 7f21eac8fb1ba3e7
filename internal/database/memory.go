package database

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
)

type answerKey struct{ questionId, userId int }

type recordKey struct{ attendanceId, userId int }

// MemoryClassroomRepository keeps everything in process memory. It is used
// for tests and for running the server without a database.
type MemoryClassroomRepository struct {
	mu sync.RWMutex

	users       []types.User
	rooms       []types.Room
	members     map[int][]int
	messages    []types.Message
	questions   []types.Question
	answers     []types.Answer
	answerIdx   map[answerKey]int
	attendances []types.Attendance
	records     []types.AttendanceRecord
	recordIdx   map[recordKey]int
}

func NewMemoryClassroomRepository() *MemoryClassroomRepository {
	return &MemoryClassroomRepository{
		members:   make(map[int][]int),
		answerIdx: make(map[answerKey]int),
		recordIdx: make(map[recordKey]int),
	}
}

func (m *MemoryClassroomRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryClassroomRepository) CreateUser(ctx context.Context, params CreateUserParams) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.Role == types.RoleTeacher {
		for _, u := range m.users {
			if u.IsTeacher() && u.Name == params.Name {
				return types.User{}, ErrDuplicate
			}
		}
	}

	u := types.User{
		Id:           len(m.users) + 1,
		Name:         params.Name,
		Role:         params.Role,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users = append(m.users, u)
	return u, nil
}

func (m *MemoryClassroomRepository) getUser(id int) (types.User, bool) {
	if id < 1 || id > len(m.users) {
		return types.User{}, false
	}
	return m.users[id-1], true
}

func (m *MemoryClassroomRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.getUser(id)
	if !ok {
		return types.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryClassroomRepository) GetTeacherByName(ctx context.Context, name string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.IsTeacher() && u.Name == name {
			return u, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (m *MemoryClassroomRepository) ListStudents(ctx context.Context) ([]types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.User
	for _, u := range m.users {
		if u.Role == types.RoleStudent {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.getUser(params.OwnerId); !ok {
		return types.Room{}, ErrNotFound
	}
	var memberIds []int
	for _, id := range params.MemberIds {
		if _, ok := m.getUser(id); !ok {
			return types.Room{}, ErrNotFound
		}
		if !slices.Contains(memberIds, id) {
			memberIds = append(memberIds, id)
		}
	}
	slices.Sort(memberIds)

	r := types.Room{
		Id:        len(m.rooms) + 1,
		Name:      params.Name,
		OwnerId:   params.OwnerId,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	m.rooms = append(m.rooms, r)
	m.members[r.Id] = memberIds

	r.Members = m.roomMembers(r.Id)
	return r, nil
}

func (m *MemoryClassroomRepository) roomMembers(roomId int) []types.User {
	var out []types.User
	for _, id := range m.members[roomId] {
		u, _ := m.getUser(id)
		out = append(out, u)
	}
	return out
}

func (m *MemoryClassroomRepository) GetRoom(ctx context.Context, id int) (types.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 1 || id > len(m.rooms) {
		return types.Room{}, ErrNotFound
	}
	return m.rooms[id-1], nil
}

// SetRoomActive toggles a room's active flag.
func (m *MemoryClassroomRepository) SetRoomActive(id int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 1 || id > len(m.rooms) {
		return ErrNotFound
	}
	m.rooms[id-1].Active = active
	return nil
}

func (m *MemoryClassroomRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Room
	for _, r := range m.rooms {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) ListRoomMembers(ctx context.Context, roomId int) ([]types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.roomMembers(roomId), nil
}

func (m *MemoryClassroomRepository) IsRoomMember(ctx context.Context, roomId, userId int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Contains(m.members[roomId], userId), nil
}

func (m *MemoryClassroomRepository) CreateMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.RoomId < 1 || msg.RoomId > len(m.rooms) {
		return types.Message{}, ErrNotFound
	}
	msg.Id = len(m.messages) + 1
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *MemoryClassroomRepository) listRecentMessages(limit int, match func(types.Message) bool) []types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Message
	for _, msg := range m.messages {
		if match(msg) {
			out = append(out, msg)
		}
	}

	limit = historyLimit(limit)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (m *MemoryClassroomRepository) ListPublicMessages(ctx context.Context, roomId, limit int) ([]types.Message, error) {
	return m.listRecentMessages(limit, func(msg types.Message) bool {
		return msg.RoomId == roomId && msg.Kind == types.MessagePublic
	}), nil
}

func (m *MemoryClassroomRepository) ListPrivateMessages(ctx context.Context, roomId, userId, limit int) ([]types.Message, error) {
	return m.listRecentMessages(limit, func(msg types.Message) bool {
		if msg.RoomId != roomId || msg.Kind != types.MessagePrivate {
			return false
		}
		return msg.SenderId == userId || (msg.ReceiverId != nil && *msg.ReceiverId == userId)
	}), nil
}

func (m *MemoryClassroomRepository) CreateQuestion(ctx context.Context, q types.Question) (types.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q.RoomId < 1 || q.RoomId > len(m.rooms) {
		return types.Question{}, ErrNotFound
	}
	q.Id = len(m.questions) + 1
	m.questions = append(m.questions, q)
	return q, nil
}

func (m *MemoryClassroomRepository) GetQuestion(ctx context.Context, id int) (types.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 1 || id > len(m.questions) {
		return types.Question{}, ErrNotFound
	}
	return m.questions[id-1], nil
}

func (m *MemoryClassroomRepository) ListQuestions(ctx context.Context, roomId int) ([]types.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Question
	for _, q := range m.questions {
		if q.RoomId == roomId {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) CreateAnswer(ctx context.Context, a types.Answer) (types.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.QuestionId < 1 || a.QuestionId > len(m.questions) {
		return types.Answer{}, ErrNotFound
	}
	key := answerKey{a.QuestionId, a.UserId}
	if _, ok := m.answerIdx[key]; ok {
		return types.Answer{}, ErrDuplicate
	}

	a.Id = len(m.answers) + 1
	m.answers = append(m.answers, a)
	m.answerIdx[key] = a.Id
	return a, nil
}

func (m *MemoryClassroomRepository) GetAnswer(ctx context.Context, questionId, userId int) (types.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.answerIdx[answerKey{questionId, userId}]
	if !ok {
		return types.Answer{}, ErrNotFound
	}
	return m.answers[id-1], nil
}

func (m *MemoryClassroomRepository) ListAnswers(ctx context.Context, questionId int) ([]types.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Answer
	for _, a := range m.answers {
		if a.QuestionId == questionId {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) CreateAttendance(ctx context.Context, a types.Attendance) (types.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.RoomId < 1 || a.RoomId > len(m.rooms) {
		return types.Attendance{}, ErrNotFound
	}
	a.Id = len(m.attendances) + 1
	m.attendances = append(m.attendances, a)
	return a, nil
}

func (m *MemoryClassroomRepository) GetAttendance(ctx context.Context, id int) (types.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 1 || id > len(m.attendances) {
		return types.Attendance{}, ErrNotFound
	}
	return m.attendances[id-1], nil
}

func (m *MemoryClassroomRepository) ListOpenAttendances(ctx context.Context, roomId int, now time.Time) ([]types.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Attendance
	for _, a := range m.attendances {
		if a.RoomId == roomId && !a.Expired(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) CreateAttendanceRecord(ctx context.Context, r types.AttendanceRecord) (types.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.AttendanceId < 1 || r.AttendanceId > len(m.attendances) {
		return types.AttendanceRecord{}, ErrNotFound
	}
	key := recordKey{r.AttendanceId, r.UserId}
	if _, ok := m.recordIdx[key]; ok {
		return types.AttendanceRecord{}, ErrDuplicate
	}

	r.Id = len(m.records) + 1
	m.records = append(m.records, r)
	m.recordIdx[key] = r.Id
	return r, nil
}

func (m *MemoryClassroomRepository) GetAttendanceRecord(ctx context.Context, attendanceId, userId int) (types.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.recordIdx[recordKey{attendanceId, userId}]
	if !ok {
		return types.AttendanceRecord{}, ErrNotFound
	}
	return m.records[id-1], nil
}

func (m *MemoryClassroomRepository) ListAttendanceRecords(ctx context.Context, attendanceId int) ([]types.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.AttendanceRecord
	for _, r := range m.records {
		if r.AttendanceId == attendanceId {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryClassroomRepository) ListUserRecords(ctx context.Context, roomId, userId int) ([]types.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.AttendanceRecord
	for _, r := range m.records {
		if r.UserId == userId && m.attendances[r.AttendanceId-1].RoomId == roomId {
			out = append(out, r)
		}
	}
	return out, nil
}
