package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

// Rooms manages rooms and plain messages.
type Rooms struct {
	*core
}

// CreateRoom creates a room owned by teacher with every known student as a
// member.
func (r *Rooms) CreateRoom(ctx context.Context, teacher types.User, name string) (types.Room, error) {
	if err := RequireTeacher(teacher); err != nil {
		return types.Room{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, fmt.Errorf("%w: room name is required", ErrValidation)
	}

	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return types.Room{}, storeErr(err, "list students")
	}
	memberIds := make([]int, 0, len(students))
	for _, s := range students {
		memberIds = append(memberIds, s.Id)
	}

	room, err := r.store.CreateRoom(ctx, database.CreateRoomParams{
		Name:      name,
		OwnerId:   teacher.Id,
		MemberIds: memberIds,
	})
	if err != nil {
		return types.Room{}, storeErr(err, "create room")
	}

	r.log.WithFields(logrus.Fields{
		"room_id": room.Id,
		"user_id": teacher.Id,
		"members": len(memberIds),
	}).Info("created room")

	return room, nil
}

func (r *Rooms) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := r.store.ListActiveRooms(ctx)
	if err != nil {
		return nil, storeErr(err, "list rooms")
	}
	return rooms, nil
}

func validContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// PostPublicMessage stores a message and publishes it to the room topic.
func (r *Rooms) PostPublicMessage(ctx context.Context, sender types.User, roomId int, content string) (types.Message, error) {
	if err := validContent(content); err != nil {
		return types.Message{}, err
	}
	room, err := r.getRoom(ctx, roomId)
	if err != nil {
		return types.Message{}, err
	}
	if err := r.requireParticipant(ctx, room, sender); err != nil {
		return types.Message{}, err
	}

	unlock := r.roomLocks.Lock(room.Id)
	defer unlock()

	msg, err := r.store.CreateMessage(ctx, types.Message{
		RoomId:   room.Id,
		SenderId: sender.Id,
		Content:  content,
		Kind:     types.MessagePublic,
		SentAt:   r.clock.Now(),
	})
	if err != nil {
		return types.Message{}, storeErr(err, "create message")
	}

	r.pub.Publish(types.RoomTopic(room.Id), types.Event{
		Type:      types.EventMessagePosted,
		RoomId:    room.Id,
		User:      &sender,
		Message:   &msg,
		Timestamp: msg.SentAt,
	})

	return msg, nil
}

// PostPrivateMessage stores a message between two participants of a room and
// publishes it to the receiver's and the sender's user topics only.
func (r *Rooms) PostPrivateMessage(ctx context.Context, sender types.User, roomId, receiverId int, content string) (types.Message, error) {
	if err := validContent(content); err != nil {
		return types.Message{}, err
	}
	if receiverId == sender.Id {
		return types.Message{}, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	room, err := r.getRoom(ctx, roomId)
	if err != nil {
		return types.Message{}, err
	}
	if err := r.requireParticipant(ctx, room, sender); err != nil {
		return types.Message{}, err
	}

	ok, err := r.isParticipant(ctx, room, receiverId)
	if err != nil {
		return types.Message{}, err
	}
	if !ok {
		return types.Message{}, fmt.Errorf("%w: receiver %d is not in room %d", ErrNotFound, receiverId, room.Id)
	}

	msg, err := r.store.CreateMessage(ctx, types.Message{
		RoomId:     room.Id,
		SenderId:   sender.Id,
		ReceiverId: &receiverId,
		Content:    content,
		Kind:       types.MessagePrivate,
		SentAt:     r.clock.Now(),
	})
	if err != nil {
		return types.Message{}, storeErr(err, "create message")
	}

	event := types.Event{
		Type:      types.EventMessagePosted,
		RoomId:    room.Id,
		User:      &sender,
		Message:   &msg,
		Timestamp: msg.SentAt,
	}
	r.pub.Publish(types.UserTopic(receiverId), event)
	r.pub.Publish(types.UserTopic(sender.Id), event)

	return msg, nil
}

// Snapshot is the state a client needs after (re)connecting to a room.
type Snapshot struct {
	Room            types.Room               `json:"room"`
	Members         []types.User             `json:"members"`
	Messages        []types.Message          `json:"messages"`
	PrivateMessages []types.Message          `json:"private_messages"`
	Questions       []types.QuestionView     `json:"questions"`
	Answers         []types.Answer           `json:"answers"`
	Attendances     []types.Attendance       `json:"attendances"`
	Records         []types.AttendanceRecord `json:"records"`
}

// Snapshot reads the room's history as seen by user. Correct answers are only
// included for questions the user created.
func (r *Rooms) Snapshot(ctx context.Context, user types.User, roomId int) (*Snapshot, error) {
	room, err := r.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if err := r.requireParticipant(ctx, room, user); err != nil {
		return nil, err
	}

	snap := &Snapshot{Room: room}

	if snap.Members, err = r.store.ListRoomMembers(ctx, room.Id); err != nil {
		return nil, storeErr(err, "list members")
	}
	if snap.Messages, err = r.store.ListPublicMessages(ctx, room.Id, database.DefaultHistoryLimit); err != nil {
		return nil, storeErr(err, "list messages")
	}
	if snap.PrivateMessages, err = r.store.ListPrivateMessages(ctx, room.Id, user.Id, database.DefaultHistoryLimit); err != nil {
		return nil, storeErr(err, "list private messages")
	}

	questions, err := r.store.ListQuestions(ctx, room.Id)
	if err != nil {
		return nil, storeErr(err, "list questions")
	}
	for _, q := range questions {
		snap.Questions = append(snap.Questions, q.View(q.CreatorId == user.Id))

		a, err := r.store.GetAnswer(ctx, q.Id, user.Id)
		switch {
		case err == nil:
			snap.Answers = append(snap.Answers, a)
		case !errors.Is(err, database.ErrNotFound):
			return nil, storeErr(err, "get answer")
		}
	}

	if snap.Attendances, err = r.store.ListOpenAttendances(ctx, room.Id, r.clock.Now()); err != nil {
		return nil, storeErr(err, "list attendances")
	}
	if snap.Records, err = r.store.ListUserRecords(ctx, room.Id, user.Id); err != nil {
		return nil, storeErr(err, "list records")
	}

	return snap, nil
}
