package classroom

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

// QuestionEngine owns the question lifecycle and answer collection.
// Questions never close: answers are accepted for as long as the room exists.
type QuestionEngine struct {
	*core
	locks *KeyedMutex[int]
}

// ParseQuestion builds a question spec from loosely typed input, reporting
// malformed input as ErrValidation.
func ParseQuestion(kind types.QuestionKind, title, body string, options []string, answer string) (types.QuestionSpec, error) {
	if kind == types.QuestionFreeform && (len(options) > 0 || answer != "") {
		return types.QuestionSpec{}, fmt.Errorf("%w: freeform questions take no options or answer", ErrValidation)
	}

	spec, err := types.RestoreQuestionSpec(kind, title, body, options, answer)
	if err != nil {
		return types.QuestionSpec{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return spec, nil
}

// CreateQuestion persists a question in roomId and announces it to the room
// without its correct answer.
func (e *QuestionEngine) CreateQuestion(ctx context.Context, creator types.User, roomId int, spec types.QuestionSpec) (types.Question, error) {
	if err := RequireTeacher(creator); err != nil {
		return types.Question{}, err
	}
	if spec.Kind() == "" {
		return types.Question{}, fmt.Errorf("%w: %w", ErrValidation, types.ErrUnknownQuestion)
	}
	room, err := e.getRoom(ctx, roomId)
	if err != nil {
		return types.Question{}, err
	}
	if err := e.requireParticipant(ctx, room, creator); err != nil {
		return types.Question{}, err
	}

	unlock := e.roomLocks.Lock(room.Id)
	defer unlock()

	q, err := e.store.CreateQuestion(ctx, types.Question{
		QuestionSpec: spec,
		RoomId:       room.Id,
		CreatorId:    creator.Id,
		CreatedAt:    e.clock.Now(),
	})
	if err != nil {
		return types.Question{}, storeErr(err, "create question")
	}

	view := q.View(false)
	e.pub.Publish(types.RoomTopic(room.Id), types.Event{
		Type:      types.EventQuestionCreated,
		RoomId:    room.Id,
		User:      &creator,
		Question:  &view,
		Timestamp: q.CreatedAt,
	})

	e.log.WithFields(logrus.Fields{
		"room_id":     room.Id,
		"question_id": q.Id,
		"kind":        q.Kind(),
	}).Debug("created question")

	return q, nil
}

// SubmitAnswer records user's answer to a question. Only the first answer per
// user is kept; later ones fail with ErrConflict. Choice questions are scored
// immediately and the question's creator is notified on their user topic.
func (e *QuestionEngine) SubmitAnswer(ctx context.Context, user types.User, questionId int, content string) (types.Answer, error) {
	q, err := e.store.GetQuestion(ctx, questionId)
	if err != nil {
		return types.Answer{}, storeErr(err, fmt.Sprintf("question %d", questionId))
	}
	if err := validContent(content); err != nil {
		return types.Answer{}, err
	}
	room, err := e.getRoom(ctx, q.RoomId)
	if err != nil {
		return types.Answer{}, err
	}
	if err := e.requireParticipant(ctx, room, user); err != nil {
		return types.Answer{}, err
	}

	unlock := e.locks.Lock(q.Id)
	defer unlock()

	_, err = e.store.GetAnswer(ctx, q.Id, user.Id)
	switch {
	case err == nil:
		return types.Answer{}, fmt.Errorf("%w: question %d already answered", ErrConflict, q.Id)
	case !errors.Is(err, database.ErrNotFound):
		return types.Answer{}, storeErr(err, "get answer")
	}

	a, err := e.store.CreateAnswer(ctx, types.Answer{
		QuestionId:  q.Id,
		UserId:      user.Id,
		Content:     content,
		Score:       q.Score(content),
		SubmittedAt: e.clock.Now(),
	})
	if err != nil {
		return types.Answer{}, storeErr(err, "answer")
	}

	e.stats.Incr(stats.AnswersSubmitted)
	e.pub.Publish(types.UserTopic(q.CreatorId), types.Event{
		Type:      types.EventAnswerSubmitted,
		RoomId:    q.RoomId,
		User:      &user,
		Answer:    &a,
		Timestamp: a.SubmittedAt,
	})

	return a, nil
}

// ListAnswers returns every answer to a question. Only its creator may see them.
func (e *QuestionEngine) ListAnswers(ctx context.Context, teacher types.User, questionId int) ([]types.Answer, error) {
	q, err := e.store.GetQuestion(ctx, questionId)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("question %d", questionId))
	}
	if q.CreatorId != teacher.Id {
		return nil, fmt.Errorf("%w: not the creator of question %d", ErrAuthorization, q.Id)
	}

	answers, err := e.store.ListAnswers(ctx, q.Id)
	if err != nil {
		return nil, storeErr(err, "list answers")
	}
	return answers, nil
}
