package classroom

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

// AttendanceEngine opens attendance windows and records sign-ins. Expiry is
// checked lazily when a user signs; nothing announces it.
type AttendanceEngine struct {
	*core
	locks *KeyedMutex[int]
}

type AttendanceParams struct {
	Title  string
	Kind   types.AttendanceKind
	Secret string
	// ExpireAfter is relative to creation. Zero means the window never closes.
	ExpireAfter time.Duration
}

func (p AttendanceParams) validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: attendance title is required", ErrValidation)
	}
	if p.ExpireAfter < 0 {
		return fmt.Errorf("%w: expiry must not be negative", ErrValidation)
	}

	switch p.Kind {
	case types.AttendanceOpen:
	case types.AttendancePassword:
		if p.Secret == "" {
			return fmt.Errorf("%w: password attendance requires a secret", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown attendance kind %q", ErrValidation, p.Kind)
	}

	return nil
}

func (e *AttendanceEngine) CreateAttendance(ctx context.Context, creator types.User, roomId int, params AttendanceParams) (types.Attendance, error) {
	if err := RequireTeacher(creator); err != nil {
		return types.Attendance{}, err
	}
	if err := params.validate(); err != nil {
		return types.Attendance{}, err
	}
	room, err := e.getRoom(ctx, roomId)
	if err != nil {
		return types.Attendance{}, err
	}
	if err := e.requireParticipant(ctx, room, creator); err != nil {
		return types.Attendance{}, err
	}

	unlock := e.roomLocks.Lock(room.Id)
	defer unlock()

	now := e.clock.Now()
	att := types.Attendance{
		RoomId:    room.Id,
		Title:     params.Title,
		Kind:      params.Kind,
		CreatedAt: now,
	}
	if params.Kind == types.AttendancePassword {
		att.Secret = params.Secret
	}
	if params.ExpireAfter > 0 {
		expiry := now.Add(params.ExpireAfter)
		att.ExpiresAt = &expiry
	}

	att, err = e.store.CreateAttendance(ctx, att)
	if err != nil {
		return types.Attendance{}, storeErr(err, "create attendance")
	}

	announced := att
	announced.Secret = ""
	e.pub.Publish(types.RoomTopic(room.Id), types.Event{
		Type:       types.EventAttendanceCreated,
		RoomId:     room.Id,
		User:       &creator,
		Attendance: &announced,
		Timestamp:  now,
	})

	e.log.WithFields(logrus.Fields{
		"room_id":       room.Id,
		"attendance_id": att.Id,
		"kind":          att.Kind,
	}).Debug("created attendance")

	return att, nil
}

// Sign records user's presence. Checks run in a fixed order: unknown
// attendance, non-participant, expired window, duplicate sign-in, then wrong
// secret. The record is stored and announced inside the room's section.
func (e *AttendanceEngine) Sign(ctx context.Context, user types.User, attendanceId int, secret string) (types.AttendanceRecord, error) {
	att, err := e.store.GetAttendance(ctx, attendanceId)
	if err != nil {
		return types.AttendanceRecord{}, storeErr(err, fmt.Sprintf("attendance %d", attendanceId))
	}
	room, err := e.getRoom(ctx, att.RoomId)
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	if err := e.requireParticipant(ctx, room, user); err != nil {
		return types.AttendanceRecord{}, err
	}

	now := e.clock.Now()
	if att.Expired(now) {
		return types.AttendanceRecord{}, fmt.Errorf("%w: attendance %d closed at %s", ErrExpired, att.Id, att.ExpiresAt.Format(time.RFC3339))
	}

	// room section before the attendance lock, never the other way round
	unlockRoom := e.roomLocks.Lock(room.Id)
	defer unlockRoom()
	unlock := e.locks.Lock(att.Id)
	defer unlock()

	_, err = e.store.GetAttendanceRecord(ctx, att.Id, user.Id)
	switch {
	case err == nil:
		return types.AttendanceRecord{}, fmt.Errorf("%w: already signed attendance %d", ErrConflict, att.Id)
	case !errors.Is(err, database.ErrNotFound):
		return types.AttendanceRecord{}, storeErr(err, "get attendance record")
	}

	if att.Kind == types.AttendancePassword && subtle.ConstantTimeCompare([]byte(secret), []byte(att.Secret)) != 1 {
		return types.AttendanceRecord{}, fmt.Errorf("%w: wrong attendance secret", ErrValidation)
	}

	rec, err := e.store.CreateAttendanceRecord(ctx, types.AttendanceRecord{
		AttendanceId: att.Id,
		UserId:       user.Id,
		SignedAt:     now,
	})
	if err != nil {
		return types.AttendanceRecord{}, storeErr(err, "attendance record")
	}

	e.stats.Incr(stats.AttendanceSigned)

	event := types.Event{
		Type:      types.EventAttendanceSigned,
		RoomId:    room.Id,
		User:      &user,
		Record:    &rec,
		Timestamp: rec.SignedAt,
	}
	e.pub.Publish(types.RoomTopic(room.Id), event)
	e.pub.Publish(types.UserTopic(room.OwnerId), event)

	return rec, nil
}

// ListRecords returns the sign-ins of an attendance to the room's owner.
func (e *AttendanceEngine) ListRecords(ctx context.Context, teacher types.User, attendanceId int) ([]types.AttendanceRecord, error) {
	att, err := e.store.GetAttendance(ctx, attendanceId)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("attendance %d", attendanceId))
	}
	room, err := e.store.GetRoom(ctx, att.RoomId)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("room %d", att.RoomId))
	}
	if room.OwnerId != teacher.Id {
		return nil, fmt.Errorf("%w: not the owner of room %d", ErrAuthorization, room.Id)
	}

	records, err := e.store.ListAttendanceRecords(ctx, att.Id)
	if err != nil {
		return nil, storeErr(err, "list attendance records")
	}
	return records, nil
}
