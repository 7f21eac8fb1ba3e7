package classroom

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

// Publisher fans an event out to the subscribers of a topic. Implementations
// must not block on slow subscribers.
type Publisher interface {
	Publish(topic types.Topic, event types.Event)
}

// Counter receives domain counters. *stats.StatsUpdater satisfies it.
type Counter interface {
	Incr(key string)
}

type nopCounter struct{}

func (nopCounter) Incr(string) {}

type core struct {
	store     database.ClassroomRepository
	pub       Publisher
	clock     Clock
	log       logrus.FieldLogger
	stats     Counter
	roomLocks *KeyedMutex[int]
}

// Classroom bundles the room service and the two engines over one store,
// publisher and clock. The engines share the per-room serialization section
// so that every event on a room topic is published in persist order.
type Classroom struct {
	Rooms      *Rooms
	Questions  *QuestionEngine
	Attendance *AttendanceEngine
}

type Option func(*core)

func WithClock(c Clock) Option {
	return func(co *core) { co.clock = c }
}

func WithStats(s Counter) Option {
	return func(co *core) { co.stats = s }
}

func New(store database.ClassroomRepository, pub Publisher, logger logrus.FieldLogger, opts ...Option) *Classroom {
	c := &core{
		store:     store,
		pub:       pub,
		clock:     RealClock{},
		log:       logger,
		stats:     nopCounter{},
		roomLocks: NewKeyedMutex[int](),
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Classroom{
		Rooms:      &Rooms{core: c},
		Questions:  &QuestionEngine{core: c, locks: NewKeyedMutex[int]()},
		Attendance: &AttendanceEngine{core: c, locks: NewKeyedMutex[int]()},
	}
}

func (c *core) getRoom(ctx context.Context, roomId int) (types.Room, error) {
	room, err := c.store.GetRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, storeErr(err, fmt.Sprintf("room %d", roomId))
	}
	if !room.Active {
		return types.Room{}, fmt.Errorf("%w: room %d is not active", ErrNotFound, roomId)
	}
	return room, nil
}

// isParticipant reports whether the user owns or is a member of the room.
func (c *core) isParticipant(ctx context.Context, room types.Room, userId int) (bool, error) {
	if room.OwnerId == userId {
		return true, nil
	}
	ok, err := c.store.IsRoomMember(ctx, room.Id, userId)
	if err != nil {
		return false, storeErr(err, "room membership")
	}
	return ok, nil
}

func (c *core) requireParticipant(ctx context.Context, room types.Room, user types.User) error {
	ok, err := c.isParticipant(ctx, room, user.Id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not in room %d", ErrAuthorization, user.Id, room.Id)
	}
	return nil
}

// RequireTeacher reports ErrAuthorization for non-teachers.
func RequireTeacher(user types.User) error {
	if !user.IsTeacher() {
		return fmt.Errorf("%w: teacher role required", ErrAuthorization)
	}
	return nil
}

// JoinableRoom resolves the room a user may subscribe to.
func (c *Classroom) JoinableRoom(ctx context.Context, user types.User, roomId int) (types.Room, error) {
	room, err := c.Rooms.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if err := c.Rooms.requireParticipant(ctx, room, user); err != nil {
		return types.Room{}, err
	}
	return room, nil
}
