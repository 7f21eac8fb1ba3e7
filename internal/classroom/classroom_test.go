package classroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/testutil"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	topic types.Topic
	event types.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(topic types.Topic, event types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.Topic = topic
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
}

func (p *recordingPublisher) onTopic(topic types.Topic) []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []types.Event
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e.event)
		}
	}
	return out
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type fixture struct {
	ctx     context.Context
	store   *database.MemoryClassroomRepository
	pub     *recordingPublisher
	clock   *FakeClock
	cls     *Classroom
	teacher types.User
	s1      types.User
	s2      types.User
	room    types.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		store: database.NewMemoryClassroomRepository(),
		pub:   &recordingPublisher{},
		clock: NewFakeClock(time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)),
	}
	f.cls = New(f.store, f.pub, testutil.TestLogger(t), WithClock(f.clock))

	var err error
	f.teacher, err = f.store.CreateUser(f.ctx, database.CreateUserParams{Name: "T", Role: types.RoleTeacher, PasswordHash: "x"})
	require.NoError(t, err)
	f.s1, err = f.store.CreateUser(f.ctx, database.CreateUserParams{Name: "S1", Role: types.RoleStudent})
	require.NoError(t, err)
	f.s2, err = f.store.CreateUser(f.ctx, database.CreateUserParams{Name: "S2", Role: types.RoleStudent})
	require.NoError(t, err)

	f.room, err = f.cls.Rooms.CreateRoom(f.ctx, f.teacher, "R")
	require.NoError(t, err)

	return f
}

func (f *fixture) choiceQuestion(t *testing.T) types.Question {
	t.Helper()
	spec, err := ParseQuestion(types.QuestionChoice, "2+2", "what is 2+2?", []string{"3", "4"}, "4")
	require.NoError(t, err)
	q, err := f.cls.Questions.CreateQuestion(f.ctx, f.teacher, f.room.Id, spec)
	require.NoError(t, err)
	return q
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)

	assert.Len(t, f.room.Members, 2, "expected all students to be added")
	assert.Equal(t, f.teacher.Id, f.room.OwnerId)
	assert.True(t, f.room.Active)

	_, err := f.cls.Rooms.CreateRoom(f.ctx, f.s1, "nope")
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = f.cls.Rooms.CreateRoom(f.ctx, f.teacher, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	rooms, err := f.cls.Rooms.ListActiveRooms(f.ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestJoinableRoom(t *testing.T) {
	f := newFixture(t)

	room, err := f.cls.JoinableRoom(f.ctx, f.s1, f.room.Id)
	require.NoError(t, err)
	assert.Equal(t, f.room.Id, room.Id)

	_, err = f.cls.JoinableRoom(f.ctx, f.teacher, f.room.Id)
	assert.NoError(t, err, "expected the owner to be able to join")

	_, err = f.cls.JoinableRoom(f.ctx, f.s1, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	late, err := f.store.CreateUser(f.ctx, database.CreateUserParams{Name: "late", Role: types.RoleStudent})
	require.NoError(t, err)
	_, err = f.cls.JoinableRoom(f.ctx, late, f.room.Id)
	assert.ErrorIs(t, err, ErrAuthorization)

	require.NoError(t, f.store.SetRoomActive(f.room.Id, false))
	_, err = f.cls.JoinableRoom(f.ctx, f.s1, f.room.Id)
	assert.ErrorIs(t, err, ErrNotFound, "expected inactive rooms to be hidden")
}

func TestQuestionScenario(t *testing.T) {
	f := newFixture(t)
	q := f.choiceQuestion(t)

	a1, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, "4")
	require.NoError(t, err)
	require.NotNil(t, a1.Score)
	assert.Equal(t, 100.0, *a1.Score)

	_, err = f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, "3")
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := f.store.GetAnswer(f.ctx, q.Id, f.s1.Id)
	require.NoError(t, err)
	assert.Equal(t, "4", stored.Content, "expected the first answer to be kept")
	assert.Equal(t, 100.0, *stored.Score)

	a2, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s2, q.Id, "3")
	require.NoError(t, err)
	require.NotNil(t, a2.Score)
	assert.Equal(t, 0.0, *a2.Score)

	answers, err := f.cls.Questions.ListAnswers(f.ctx, f.teacher, q.Id)
	require.NoError(t, err)
	assert.Len(t, answers, 2)

	_, err = f.cls.Questions.ListAnswers(f.ctx, f.s1, q.Id)
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestCreateQuestion(t *testing.T) {
	f := newFixture(t)

	spec, err := types.NewFreeformQuestion("essay", "describe photosynthesis")
	require.NoError(t, err)

	_, err = f.cls.Questions.CreateQuestion(f.ctx, f.s1, f.room.Id, spec)
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = f.cls.Questions.CreateQuestion(f.ctx, f.teacher, 99, spec)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.cls.Questions.CreateQuestion(f.ctx, f.teacher, f.room.Id, types.QuestionSpec{})
	assert.ErrorIs(t, err, ErrValidation)

	q := f.choiceQuestion(t)
	events := f.pub.onTopic(types.RoomTopic(f.room.Id))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventQuestionCreated, events[0].Type)
	require.NotNil(t, events[0].Question)
	assert.Equal(t, q.Id, events[0].Question.Id)
	assert.Empty(t, events[0].Question.Answer, "expected the correct answer to be withheld")
	assert.Equal(t, []string{"3", "4"}, events[0].Question.Options)
}

func TestParseQuestion(t *testing.T) {
	tcases := []struct {
		name    string
		kind    types.QuestionKind
		options []string
		answer  string
		err     error
	}{
		{name: "choice", kind: types.QuestionChoice, options: []string{"a"}, answer: "a"},
		{name: "freeform", kind: types.QuestionFreeform},
		{name: "choice without options", kind: types.QuestionChoice, answer: "a", err: types.ErrMissingOptions},
		{name: "choice without answer", kind: types.QuestionChoice, options: []string{"a"}, err: types.ErrMissingAnswer},
		{name: "freeform with options", kind: types.QuestionFreeform, options: []string{"a"}, err: ErrValidation},
		{name: "unknown kind", kind: "poll", err: types.ErrUnknownQuestion},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseQuestion(tc.kind, "title", "body", tc.options, tc.answer)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSubmitAnswer(t *testing.T) {
	f := newFixture(t)

	_, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s1, 42, "4")
	assert.ErrorIs(t, err, ErrNotFound)

	spec, err := types.NewFreeformQuestion("essay", "describe photosynthesis")
	require.NoError(t, err)
	q, err := f.cls.Questions.CreateQuestion(f.ctx, f.teacher, f.room.Id, spec)
	require.NoError(t, err)

	_, err = f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	a, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, "light becomes sugar")
	require.NoError(t, err)
	assert.Nil(t, a.Score, "expected freeform answers to be ungraded")

	events := f.pub.onTopic(types.UserTopic(f.teacher.Id))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventAnswerSubmitted, events[0].Type)
	assert.Equal(t, f.s1.Id, events[0].User.Id)
	assert.Equal(t, "light becomes sugar", events[0].Answer.Content)

	for _, e := range f.pub.all() {
		if e.event.Type == types.EventAnswerSubmitted {
			assert.Equal(t, types.TopicUser, e.topic.Kind, "expected answers never to reach the room topic")
		}
	}

	outsider, err := f.store.CreateUser(f.ctx, database.CreateUserParams{Name: "outsider", Role: types.RoleStudent})
	require.NoError(t, err)
	_, err = f.cls.Questions.SubmitAnswer(f.ctx, outsider, q.Id, "hi")
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestSubmitAnswer_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	q := f.choiceQuestion(t)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := "3"
			if i%2 == 0 {
				content = "4"
			}
			_, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, content)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	answers, err := f.store.ListAnswers(f.ctx, q.Id)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
	assert.Len(t, f.pub.onTopic(types.UserTopic(f.teacher.Id)), 1, "expected a single notification")
}

func TestAttendanceScenario(t *testing.T) {
	f := newFixture(t)

	att, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{
		Title:       "Roll Call",
		Kind:        types.AttendancePassword,
		Secret:      "abc123",
		ExpireAfter: time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, att.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(time.Minute), *att.ExpiresAt)

	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "abc123")
	require.NoError(t, err)

	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "abc123")
	assert.ErrorIs(t, err, ErrConflict)

	f.clock.Advance(61 * time.Second)
	_, err = f.cls.Attendance.Sign(f.ctx, f.s2, att.Id, "abc123")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = f.store.GetAttendanceRecord(f.ctx, att.Id, f.s2.Id)
	assert.ErrorIs(t, err, database.ErrNotFound, "expected no record after an expired sign")

	records, err := f.cls.Attendance.ListRecords(f.ctx, f.teacher, att.Id)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = f.cls.Attendance.ListRecords(f.ctx, f.s1, att.Id)
	assert.ErrorIs(t, err, ErrAuthorization)
}

// stallingRepository holds CreateAttendanceRecord open after the record is
// stored until release is closed.
type stallingRepository struct {
	*database.MemoryClassroomRepository
	stored  chan struct{}
	release chan struct{}
}

func (r *stallingRepository) CreateAttendanceRecord(ctx context.Context, rec types.AttendanceRecord) (types.AttendanceRecord, error) {
	rec, err := r.MemoryClassroomRepository.CreateAttendanceRecord(ctx, rec)
	close(r.stored)
	<-r.release
	return rec, err
}

func TestSign_PublishesInRoomOrder(t *testing.T) {
	f := newFixture(t)
	store := &stallingRepository{
		MemoryClassroomRepository: f.store,
		stored:                    make(chan struct{}),
		release:                   make(chan struct{}),
	}
	cls := New(store, f.pub, testutil.TestLogger(t), WithClock(f.clock))

	att, err := cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{Title: "Roll", Kind: types.AttendanceOpen})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := cls.Attendance.Sign(f.ctx, f.s1, att.Id, "")
		assert.NoError(t, err)
	}()

	<-store.stored
	go func() {
		defer wg.Done()
		_, err := cls.Rooms.PostPublicMessage(f.ctx, f.s2, f.room.Id, "late")
		assert.NoError(t, err)
	}()

	// give the message a chance to overtake the sign-in
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	var got []types.EventType
	for _, ev := range f.pub.onTopic(types.RoomTopic(f.room.Id)) {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []types.EventType{
		types.EventAttendanceCreated,
		types.EventAttendanceSigned,
		types.EventMessagePosted,
	}, got)
}

func TestCreateAttendance_Validation(t *testing.T) {
	f := newFixture(t)

	tcases := []struct {
		name   string
		user   types.User
		params AttendanceParams
		err    error
	}{
		{name: "student", user: f.s1, params: AttendanceParams{Title: "t", Kind: types.AttendanceOpen}, err: ErrAuthorization},
		{name: "password without secret", user: f.teacher, params: AttendanceParams{Title: "t", Kind: types.AttendancePassword}, err: ErrValidation},
		{name: "empty title", user: f.teacher, params: AttendanceParams{Kind: types.AttendanceOpen}, err: ErrValidation},
		{name: "negative expiry", user: f.teacher, params: AttendanceParams{Title: "t", Kind: types.AttendanceOpen, ExpireAfter: -time.Second}, err: ErrValidation},
		{name: "unknown kind", user: f.teacher, params: AttendanceParams{Title: "t", Kind: "qr"}, err: ErrValidation},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.cls.Attendance.CreateAttendance(f.ctx, tc.user, f.room.Id, tc.params)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, 77, AttendanceParams{Title: "t", Kind: types.AttendanceOpen})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAttendance_EventOmitsSecret(t *testing.T) {
	f := newFixture(t)

	att, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{
		Title: "t", Kind: types.AttendancePassword, Secret: "hunter2",
	})
	require.NoError(t, err)
	assert.Nil(t, att.ExpiresAt, "expected no expiry when none is given")

	events := f.pub.onTopic(types.RoomTopic(f.room.Id))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventAttendanceCreated, events[0].Type)
	assert.Empty(t, events[0].Attendance.Secret)
}

func TestSign(t *testing.T) {
	f := newFixture(t)

	_, err := f.cls.Attendance.Sign(f.ctx, f.s1, 5, "")
	assert.ErrorIs(t, err, ErrNotFound)

	att, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{
		Title: "t", Kind: types.AttendancePassword, Secret: "abc123", ExpireAfter: time.Minute,
	})
	require.NoError(t, err)

	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "wrong")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.store.GetAttendanceRecord(f.ctx, att.Id, f.s1.Id)
	assert.ErrorIs(t, err, database.ErrNotFound)

	rec, err := f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "abc123")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), rec.SignedAt)

	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "wrong")
	assert.ErrorIs(t, err, ErrConflict, "expected a duplicate to be reported before a bad secret")

	f.clock.Advance(time.Minute)
	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "abc123")
	assert.ErrorIs(t, err, ErrExpired, "expected expiry to be checked at exactly the expiry time and before duplicates")

	roomEvents := f.pub.onTopic(types.RoomTopic(f.room.Id))
	require.Len(t, roomEvents, 2)
	assert.Equal(t, types.EventAttendanceSigned, roomEvents[1].Type)
	assert.Equal(t, f.s1.Id, roomEvents[1].User.Id)

	ownerEvents := f.pub.onTopic(types.UserTopic(f.teacher.Id))
	require.Len(t, ownerEvents, 1)
	assert.Equal(t, types.EventAttendanceSigned, ownerEvents[0].Type)
}

func TestSign_OpenWithoutExpiry(t *testing.T) {
	f := newFixture(t)

	att, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{Title: "t", Kind: types.AttendanceOpen})
	require.NoError(t, err)

	f.clock.Advance(1000 * time.Hour)
	_, err = f.cls.Attendance.Sign(f.ctx, f.s2, att.Id, "ignored")
	assert.NoError(t, err)
}

func TestSign_Concurrent(t *testing.T) {
	f := newFixture(t)

	att, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{Title: "t", Kind: types.AttendanceOpen})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cls.Attendance.Sign(f.ctx, f.s1, att.Id, "")
			if err != nil {
				assert.ErrorIs(t, err, ErrConflict)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	records, err := f.store.ListAttendanceRecords(f.ctx, att.Id)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPostPublicMessage(t *testing.T) {
	f := newFixture(t)

	msg, err := f.cls.Rooms.PostPublicMessage(f.ctx, f.s1, f.room.Id, "hello")
	require.NoError(t, err)
	assert.Equal(t, types.MessagePublic, msg.Kind)
	assert.Nil(t, msg.ReceiverId)

	all := f.pub.all()
	require.Len(t, all, 1)
	assert.Equal(t, types.RoomTopic(f.room.Id), all[0].topic)
	assert.Equal(t, types.EventMessagePosted, all[0].event.Type)

	_, err = f.cls.Rooms.PostPublicMessage(f.ctx, f.s1, f.room.Id, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.cls.Rooms.PostPublicMessage(f.ctx, f.s1, 9, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostPrivateMessage(t *testing.T) {
	f := newFixture(t)

	msg, err := f.cls.Rooms.PostPrivateMessage(f.ctx, f.s1, f.room.Id, f.teacher.Id, "help")
	require.NoError(t, err)
	require.NotNil(t, msg.ReceiverId)
	assert.Equal(t, f.teacher.Id, *msg.ReceiverId)

	all := f.pub.all()
	require.Len(t, all, 2)
	topics := []types.Topic{all[0].topic, all[1].topic}
	assert.ElementsMatch(t, []types.Topic{types.UserTopic(f.teacher.Id), types.UserTopic(f.s1.Id)}, topics)
	assert.Empty(t, f.pub.onTopic(types.RoomTopic(f.room.Id)), "expected private messages never to reach the room topic")

	_, err = f.cls.Rooms.PostPrivateMessage(f.ctx, f.s1, f.room.Id, 1234, "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.cls.Rooms.PostPrivateMessage(f.ctx, f.s1, f.room.Id, f.s1.Id, "me")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)

	q := f.choiceQuestion(t)
	_, err := f.cls.Questions.SubmitAnswer(f.ctx, f.s1, q.Id, "4")
	require.NoError(t, err)

	_, err = f.cls.Rooms.PostPublicMessage(f.ctx, f.s2, f.room.Id, "public")
	require.NoError(t, err)
	_, err = f.cls.Rooms.PostPrivateMessage(f.ctx, f.s2, f.room.Id, f.teacher.Id, "to teacher")
	require.NoError(t, err)

	open, err := f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{Title: "open", Kind: types.AttendanceOpen})
	require.NoError(t, err)
	_, err = f.cls.Attendance.CreateAttendance(f.ctx, f.teacher, f.room.Id, AttendanceParams{Title: "short", Kind: types.AttendanceOpen, ExpireAfter: time.Second})
	require.NoError(t, err)
	_, err = f.cls.Attendance.Sign(f.ctx, f.s1, open.Id, "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	snap, err := f.cls.Rooms.Snapshot(f.ctx, f.s1, f.room.Id)
	require.NoError(t, err)
	assert.Len(t, snap.Members, 2)
	require.Len(t, snap.Messages, 1)
	assert.Empty(t, snap.PrivateMessages, "expected other users' private messages to be hidden")
	require.Len(t, snap.Questions, 1)
	assert.Empty(t, snap.Questions[0].Answer)
	require.Len(t, snap.Answers, 1)
	assert.Equal(t, "4", snap.Answers[0].Content)
	require.Len(t, snap.Attendances, 1, "expected expired attendances to be left out")
	assert.Equal(t, open.Id, snap.Attendances[0].Id)
	assert.Len(t, snap.Records, 1)

	snap, err = f.cls.Rooms.Snapshot(f.ctx, f.teacher, f.room.Id)
	require.NoError(t, err)
	assert.Equal(t, "4", snap.Questions[0].Answer, "expected the creator to see the correct answer")
	assert.Len(t, snap.PrivateMessages, 1)
	assert.Empty(t, snap.Answers)
}
