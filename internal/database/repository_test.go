package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseRepository runs the behaviour every ClassroomRepository must share.
func exerciseRepository(t *testing.T, repo ClassroomRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	teacher, err := repo.CreateUser(ctx, CreateUserParams{Name: "ms-frizzle", Role: types.RoleTeacher, PasswordHash: "hash"})
	require.NoError(t, err)
	alice, err := repo.CreateUser(ctx, CreateUserParams{Name: "alice", Role: types.RoleStudent})
	require.NoError(t, err)
	bob, err := repo.CreateUser(ctx, CreateUserParams{Name: "bob", Role: types.RoleStudent})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, CreateUserParams{Name: "ms-frizzle", Role: types.RoleTeacher, PasswordHash: "other"})
	assert.ErrorIs(t, err, ErrDuplicate, "expected teacher names to be unique")

	got, err := repo.GetTeacherByName(ctx, "ms-frizzle")
	require.NoError(t, err)
	assert.Equal(t, teacher.Id, got.Id)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = repo.GetTeacherByName(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	students, err := repo.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 2)

	room, err := repo.CreateRoom(ctx, CreateRoomParams{
		Name:      "biology",
		OwnerId:   teacher.Id,
		MemberIds: []int{alice.Id, bob.Id},
	})
	require.NoError(t, err)
	assert.True(t, room.Active)
	assert.Len(t, room.Members, 2)

	_, err = repo.GetRoom(ctx, room.Id+100)
	assert.ErrorIs(t, err, ErrNotFound)

	isMember, err := repo.IsRoomMember(ctx, room.Id, alice.Id)
	require.NoError(t, err)
	assert.True(t, isMember)
	isMember, err = repo.IsRoomMember(ctx, room.Id, teacher.Id)
	require.NoError(t, err)
	assert.False(t, isMember, "expected owner not to be listed as a member")

	rooms, err := repo.ListActiveRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.Id, rooms[0].Id)

	t.Run("messages", func(t *testing.T) {
		for _, content := range []string{"one", "two", "three"} {
			_, err := repo.CreateMessage(ctx, types.Message{
				RoomId: room.Id, SenderId: alice.Id, Content: content, Kind: types.MessagePublic, SentAt: now,
			})
			require.NoError(t, err)
		}
		receiver := bob.Id
		_, err := repo.CreateMessage(ctx, types.Message{
			RoomId: room.Id, SenderId: alice.Id, ReceiverId: &receiver, Content: "psst", Kind: types.MessagePrivate, SentAt: now,
		})
		require.NoError(t, err)

		public, err := repo.ListPublicMessages(ctx, room.Id, 2)
		require.NoError(t, err)
		require.Len(t, public, 2)
		assert.Equal(t, "two", public[0].Content, "expected the most recent messages in ascending order")
		assert.Equal(t, "three", public[1].Content)

		private, err := repo.ListPrivateMessages(ctx, room.Id, bob.Id, 0)
		require.NoError(t, err)
		require.Len(t, private, 1)
		require.NotNil(t, private[0].ReceiverId)
		assert.Equal(t, bob.Id, *private[0].ReceiverId)

		private, err = repo.ListPrivateMessages(ctx, room.Id, teacher.Id, 0)
		require.NoError(t, err)
		assert.Empty(t, private)
	})

	t.Run("questions and answers", func(t *testing.T) {
		spec, err := types.NewChoiceQuestion("2+2", "what is 2+2?", []string{"3", "4"}, "4")
		require.NoError(t, err)

		q, err := repo.CreateQuestion(ctx, types.Question{QuestionSpec: spec, RoomId: room.Id, CreatorId: teacher.Id, CreatedAt: now})
		require.NoError(t, err)

		stored, err := repo.GetQuestion(ctx, q.Id)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4"}, stored.Options())
		answer, ok := stored.Answer()
		assert.True(t, ok)
		assert.Equal(t, "4", answer)

		score := 100.0
		a, err := repo.CreateAnswer(ctx, types.Answer{QuestionId: q.Id, UserId: alice.Id, Content: "4", Score: &score, SubmittedAt: now})
		require.NoError(t, err)
		assert.NotZero(t, a.Id)

		_, err = repo.CreateAnswer(ctx, types.Answer{QuestionId: q.Id, UserId: alice.Id, Content: "3", SubmittedAt: now})
		assert.ErrorIs(t, err, ErrDuplicate)

		got, err := repo.GetAnswer(ctx, q.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, "4", got.Content)
		require.NotNil(t, got.Score)
		assert.Equal(t, 100.0, *got.Score)

		_, err = repo.GetAnswer(ctx, q.Id, bob.Id)
		assert.ErrorIs(t, err, ErrNotFound)

		answers, err := repo.ListAnswers(ctx, q.Id)
		require.NoError(t, err)
		assert.Len(t, answers, 1)
	})

	t.Run("attendance", func(t *testing.T) {
		expiry := now.Add(time.Minute)
		att, err := repo.CreateAttendance(ctx, types.Attendance{
			RoomId: room.Id, Title: "monday", Kind: types.AttendancePassword, Secret: "s3cret", CreatedAt: now, ExpiresAt: &expiry,
		})
		require.NoError(t, err)

		stored, err := repo.GetAttendance(ctx, att.Id)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", stored.Secret)
		require.NotNil(t, stored.ExpiresAt)
		assert.True(t, stored.ExpiresAt.Equal(expiry))

		open, err := repo.ListOpenAttendances(ctx, room.Id, now)
		require.NoError(t, err)
		assert.Len(t, open, 1)
		open, err = repo.ListOpenAttendances(ctx, room.Id, expiry)
		require.NoError(t, err)
		assert.Empty(t, open)

		_, err = repo.CreateAttendanceRecord(ctx, types.AttendanceRecord{AttendanceId: att.Id, UserId: bob.Id, SignedAt: now})
		require.NoError(t, err)
		_, err = repo.CreateAttendanceRecord(ctx, types.AttendanceRecord{AttendanceId: att.Id, UserId: bob.Id, SignedAt: now})
		assert.ErrorIs(t, err, ErrDuplicate)

		records, err := repo.ListAttendanceRecords(ctx, att.Id)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		records, err = repo.ListUserRecords(ctx, room.Id, bob.Id)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		_, err = repo.GetAttendanceRecord(ctx, att.Id, alice.Id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent records", func(t *testing.T) {
		att, err := repo.CreateAttendance(ctx, types.Attendance{RoomId: room.Id, Title: "race", Kind: types.AttendanceOpen, CreatedAt: now})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateAttendanceRecord(ctx, types.AttendanceRecord{AttendanceId: att.Id, UserId: alice.Id, SignedAt: now})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if assert.ErrorIs(t, err, ErrDuplicate) {
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, 9, conflicts)
	})
}

func TestMemoryClassroomRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryClassroomRepository())
}

func TestMemoryClassroomRepository_SetRoomActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryClassroomRepository()

	teacher, err := repo.CreateUser(ctx, CreateUserParams{Name: "t", Role: types.RoleTeacher})
	require.NoError(t, err)
	room, err := repo.CreateRoom(ctx, CreateRoomParams{Name: "r", OwnerId: teacher.Id})
	require.NoError(t, err)

	require.NoError(t, repo.SetRoomActive(room.Id, false))
	rooms, err := repo.ListActiveRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	assert.ErrorIs(t, repo.SetRoomActive(42, true), ErrNotFound)
}

func TestMemoryClassroomRepository_CreateRoomUnknownMember(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryClassroomRepository()

	teacher, err := repo.CreateUser(ctx, CreateUserParams{Name: "t", Role: types.RoleTeacher})
	require.NoError(t, err)

	_, err = repo.CreateRoom(ctx, CreateRoomParams{Name: "r", OwnerId: teacher.Id, MemberIds: []int{99}})
	assert.ErrorIs(t, err, ErrNotFound)
}
