package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Repository decorates a ClassroomRepository with a read-through cache for
// questions and attendances, which never change once created. Every other
// method goes straight to the wrapped store.
type Repository struct {
	database.ClassroomRepository

	backend Backend
	ttl     time.Duration
	log     logrus.FieldLogger
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRepository(store database.ClassroomRepository, backend Backend, ttl time.Duration, logger logrus.FieldLogger) *Repository {
	return &Repository{
		ClassroomRepository: store,
		backend:             backend,
		ttl:                 ttl,
		log:                 logger,
		rnd:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type cachedQuestion struct {
	Id        int                `json:"id"`
	RoomId    int                `json:"room_id"`
	CreatorId int                `json:"creator_id"`
	Title     string             `json:"title"`
	Body      string             `json:"body"`
	Kind      types.QuestionKind `json:"kind"`
	Options   []string           `json:"options,omitempty"`
	Answer    string             `json:"answer,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

type cachedAttendance struct {
	Id        int                  `json:"id"`
	RoomId    int                  `json:"room_id"`
	Title     string               `json:"title"`
	Kind      types.AttendanceKind `json:"kind"`
	Secret    string               `json:"secret,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

func questionKey(id int) string   { return "question:" + strconv.Itoa(id) }
func attendanceKey(id int) string { return "attendance:" + strconv.Itoa(id) }

func (r *Repository) GetQuestion(ctx context.Context, id int) (types.Question, error) {
	v, err := readThrough(r, ctx, questionKey(id),
		func(ctx context.Context) (cachedQuestion, error) {
			q, err := r.ClassroomRepository.GetQuestion(ctx, id)
			if err != nil {
				return cachedQuestion{}, err
			}
			answer, _ := q.Answer()
			return cachedQuestion{
				Id:        q.Id,
				RoomId:    q.RoomId,
				CreatorId: q.CreatorId,
				Title:     q.Title(),
				Body:      q.Body(),
				Kind:      q.Kind(),
				Options:   q.Options(),
				Answer:    answer,
				CreatedAt: q.CreatedAt,
			}, nil
		})
	if err != nil {
		return types.Question{}, err
	}

	spec, err := types.RestoreQuestionSpec(v.Kind, v.Title, v.Body, v.Options, v.Answer)
	if err != nil {
		return types.Question{}, err
	}
	return types.Question{
		QuestionSpec: spec,
		Id:           v.Id,
		RoomId:       v.RoomId,
		CreatorId:    v.CreatorId,
		CreatedAt:    v.CreatedAt,
	}, nil
}

func (r *Repository) GetAttendance(ctx context.Context, id int) (types.Attendance, error) {
	v, err := readThrough(r, ctx, attendanceKey(id),
		func(ctx context.Context) (cachedAttendance, error) {
			a, err := r.ClassroomRepository.GetAttendance(ctx, id)
			if err != nil {
				return cachedAttendance{}, err
			}
			return cachedAttendance(a), nil
		})
	if err != nil {
		return types.Attendance{}, err
	}
	return types.Attendance(v), nil
}

// readThrough serves key from the backend, filling misses from load. Concurrent
// misses for one key share a single load. Backend failures are logged and
// treated as misses; load errors, including not found, are never cached.
func readThrough[T any](r *Repository, ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](r, ctx, key); ok {
		return v, nil
	}

	res, err, _ := r.sf.Do(key, func() (any, error) {
		if v, ok := lookup[T](r, ctx, key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(v)
		if err != nil {
			r.log.WithError(err).WithField("key", key).Warn("cache encode failed")
			return v, nil
		}
		if err := r.backend.Set(ctx, key, raw, r.ttlWithJitter()); err != nil {
			r.log.WithError(err).WithField("key", key).Warn("cache set failed")
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func lookup[T any](r *Repository, ctx context.Context, key string) (T, bool) {
	var v T

	raw, ok, err := r.backend.Get(ctx, key)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache get failed")
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("cache decode failed")
		return v, false
	}
	return v, true
}

func (r *Repository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10

	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
