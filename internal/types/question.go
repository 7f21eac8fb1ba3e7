package types

import (
	"errors"
	"slices"
	"strings"
	"time"
)

type QuestionKind string

const (
	QuestionFreeform QuestionKind = "freeform"
	QuestionChoice   QuestionKind = "choice"
)

var (
	ErrEmptyQuestion   = errors.New("question title and body are required")
	ErrMissingOptions  = errors.New("choice question requires at least one option")
	ErrMissingAnswer   = errors.New("choice question requires a correct answer")
	ErrUnknownQuestion = errors.New("unknown question kind")
)

// MaxScore is awarded for a choice answer that matches the stored answer.
const MaxScore = 100.0

// QuestionSpec is the content of a question: either freeform or choice.
// The zero value is not a valid question; build one with NewFreeformQuestion
// or NewChoiceQuestion.
type QuestionSpec struct {
	kind    QuestionKind
	title   string
	body    string
	options []string
	answer  string
}

func NewFreeformQuestion(title, body string) (QuestionSpec, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return QuestionSpec{}, ErrEmptyQuestion
	}

	return QuestionSpec{
		kind:  QuestionFreeform,
		title: title,
		body:  body,
	}, nil
}

func NewChoiceQuestion(title, body string, options []string, answer string) (QuestionSpec, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return QuestionSpec{}, ErrEmptyQuestion
	}
	if len(options) == 0 {
		return QuestionSpec{}, ErrMissingOptions
	}
	if answer == "" {
		return QuestionSpec{}, ErrMissingAnswer
	}

	return QuestionSpec{
		kind:    QuestionChoice,
		title:   title,
		body:    body,
		options: slices.Clone(options),
		answer:  answer,
	}, nil
}

// RestoreQuestionSpec rebuilds a spec from its stored columns.
func RestoreQuestionSpec(kind QuestionKind, title, body string, options []string, answer string) (QuestionSpec, error) {
	switch kind {
	case QuestionFreeform:
		return NewFreeformQuestion(title, body)
	case QuestionChoice:
		return NewChoiceQuestion(title, body, options, answer)
	default:
		return QuestionSpec{}, ErrUnknownQuestion
	}
}

func (q QuestionSpec) Kind() QuestionKind { return q.kind }
func (q QuestionSpec) Title() string      { return q.title }
func (q QuestionSpec) Body() string       { return q.body }

func (q QuestionSpec) Options() []string {
	return slices.Clone(q.options)
}

// Answer returns the correct answer of a choice question.
func (q QuestionSpec) Answer() (string, bool) {
	return q.answer, q.kind == QuestionChoice
}

// Score grades content. Choice questions score MaxScore on an exact match
// and zero otherwise; freeform questions are not graded and return nil.
func (q QuestionSpec) Score(content string) *float64 {
	if q.kind != QuestionChoice {
		return nil
	}

	score := 0.0
	if content == q.answer {
		score = MaxScore
	}
	return &score
}

type Question struct {
	QuestionSpec
	Id        int
	RoomId    int
	CreatorId int
	CreatedAt time.Time
}

// QuestionView is the wire form of a question. Answer is only filled in for
// the question's owner.
type QuestionView struct {
	Id        int          `json:"id"`
	RoomId    int          `json:"room_id"`
	CreatorId int          `json:"creator_id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Kind      QuestionKind `json:"kind"`
	Options   []string     `json:"options,omitempty"`
	Answer    string       `json:"answer,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (q Question) View(withAnswer bool) QuestionView {
	v := QuestionView{
		Id:        q.Id,
		RoomId:    q.RoomId,
		CreatorId: q.CreatorId,
		Title:     q.Title(),
		Body:      q.Body(),
		Kind:      q.Kind(),
		Options:   q.Options(),
		CreatedAt: q.CreatedAt,
	}
	if withAnswer {
		v.Answer, _ = q.QuestionSpec.Answer()
	}
	return v
}
