package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/go-classroom/internal/types"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

const (
	selectUserQuery     = "SELECT id, name, role, COALESCE(password_hash, ''), created_at FROM users"
	selectRoomQuery     = "SELECT id, name, owner_id, active, created_at FROM rooms"
	selectMessageQuery  = "SELECT id, room_id, sender_id, receiver_id, content, kind, sent_at FROM messages"
	selectQuestionQuery = "SELECT id, room_id, creator_id, title, body, kind, options, COALESCE(answer, ''), created_at FROM questions"
	selectAnswerQuery   = "SELECT id, question_id, user_id, content, score, submitted_at FROM answers"
	selectAttendQuery   = "SELECT id, room_id, title, kind, COALESCE(secret, ''), created_at, expires_at FROM attendances"
	selectRecordQuery   = "SELECT id, attendance_id, user_id, signed_at FROM attendance_records"
)

type scanner interface {
	Scan(dest ...any) error
}

// translateErr maps driver errors onto the package's sentinel errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		}
	}

	return err
}

func scanUser(row scanner) (types.User, error) {
	var u types.User
	err := row.Scan(&u.Id, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func scanRoom(row scanner) (types.Room, error) {
	var r types.Room
	err := row.Scan(&r.Id, &r.Name, &r.OwnerId, &r.Active, &r.CreatedAt)
	return r, err
}

func scanMessage(row scanner) (types.Message, error) {
	var (
		m        types.Message
		receiver sql.NullInt64
	)
	if err := row.Scan(&m.Id, &m.RoomId, &m.SenderId, &receiver, &m.Content, &m.Kind, &m.SentAt); err != nil {
		return m, err
	}
	if receiver.Valid {
		id := int(receiver.Int64)
		m.ReceiverId = &id
	}
	return m, nil
}

func scanQuestion(row scanner) (types.Question, error) {
	var (
		q       types.Question
		title   string
		body    string
		kind    types.QuestionKind
		options []string
		answer  string
	)
	if err := row.Scan(&q.Id, &q.RoomId, &q.CreatorId, &title, &body, &kind, pq.Array(&options), &answer, &q.CreatedAt); err != nil {
		return q, err
	}

	spec, err := types.RestoreQuestionSpec(kind, title, body, options, answer)
	if err != nil {
		return q, fmt.Errorf("restore question %d: %w", q.Id, err)
	}
	q.QuestionSpec = spec
	return q, nil
}

func scanAnswer(row scanner) (types.Answer, error) {
	var (
		a     types.Answer
		score sql.NullFloat64
	)
	if err := row.Scan(&a.Id, &a.QuestionId, &a.UserId, &a.Content, &score, &a.SubmittedAt); err != nil {
		return a, err
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	return a, nil
}

func scanAttendance(row scanner) (types.Attendance, error) {
	var (
		a       types.Attendance
		expires sql.NullTime
	)
	if err := row.Scan(&a.Id, &a.RoomId, &a.Title, &a.Kind, &a.Secret, &a.CreatedAt, &expires); err != nil {
		return a, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		a.ExpiresAt = &t
	}
	return a, nil
}

func scanRecord(row scanner) (types.AttendanceRecord, error) {
	var r types.AttendanceRecord
	err := row.Scan(&r.Id, &r.AttendanceId, &r.UserId, &r.SignedAt)
	return r, err
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (db *PgClassroomRepository) CreateUser(ctx context.Context, params CreateUserParams) (types.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (name, role, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, role, COALESCE(password_hash, ''), created_at",
		params.Name,
		params.Role,
		nullString(params.PasswordHash),
		time.Now().UTC(),
	)

	u, err := scanUser(row)
	return u, translateErr(err)
}

func (db *PgClassroomRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, selectUserQuery+" WHERE id = $1", id))
	return u, translateErr(err)
}

func (db *PgClassroomRepository) GetTeacherByName(ctx context.Context, name string) (types.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		selectUserQuery+" WHERE name = $1 AND role = $2 LIMIT 1", name, types.RoleTeacher))
	return u, translateErr(err)
}

func (db *PgClassroomRepository) ListStudents(ctx context.Context) ([]types.User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUserQuery+" WHERE role = $1 ORDER BY id", types.RoleStudent)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

func (db *PgClassroomRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.Room{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	room, err := scanRoom(tx.QueryRowContext(ctx,
		"INSERT INTO rooms (name, owner_id, active, created_at) VALUES ($1, $2, TRUE, $3) "+
			"RETURNING id, name, owner_id, active, created_at",
		params.Name, params.OwnerId, now,
	))
	if err != nil {
		return types.Room{}, translateErr(err)
	}

	for _, userId := range params.MemberIds {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO room_members (room_id, user_id, joined_at) VALUES ($1, $2, $3) "+
				"ON CONFLICT (room_id, user_id) DO NOTHING",
			room.Id, userId, now,
		); err != nil {
			return types.Room{}, translateErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Room{}, err
	}

	room.Members, err = db.ListRoomMembers(ctx, room.Id)
	return room, err
}

func (db *PgClassroomRepository) GetRoom(ctx context.Context, id int) (types.Room, error) {
	r, err := scanRoom(db.conn.QueryRowContext(ctx, selectRoomQuery+" WHERE id = $1", id))
	return r, translateErr(err)
}

func (db *PgClassroomRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	rows, err := db.conn.QueryContext(ctx, selectRoomQuery+" WHERE active ORDER BY id")
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRoom)
}

func (db *PgClassroomRepository) ListRoomMembers(ctx context.Context, roomId int) ([]types.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT u.id, u.name, u.role, COALESCE(u.password_hash, ''), u.created_at FROM users u "+
			"JOIN room_members rm ON rm.user_id = u.id WHERE rm.room_id = $1 ORDER BY u.id",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

func (db *PgClassroomRepository) IsRoomMember(ctx context.Context, roomId, userId int) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)",
		roomId, userId,
	).Scan(&exists)
	return exists, err
}

func (db *PgClassroomRepository) CreateMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	var receiver sql.NullInt64
	if msg.ReceiverId != nil {
		receiver = sql.NullInt64{Int64: int64(*msg.ReceiverId), Valid: true}
	}

	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, sender_id, receiver_id, content, kind, sent_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.RoomId, msg.SenderId, receiver, msg.Content, msg.Kind, msg.SentAt,
	).Scan(&msg.Id)

	return msg, translateErr(err)
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// listRecentMessages returns the newest limit rows of query in ascending order.
func (db *PgClassroomRepository) listRecentMessages(ctx context.Context, query string, args ...any) ([]types.Message, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	msgs, err := collect(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (db *PgClassroomRepository) ListPublicMessages(ctx context.Context, roomId, limit int) ([]types.Message, error) {
	return db.listRecentMessages(ctx,
		selectMessageQuery+" WHERE room_id = $1 AND kind = $2 ORDER BY id DESC LIMIT $3",
		roomId, types.MessagePublic, historyLimit(limit),
	)
}

func (db *PgClassroomRepository) ListPrivateMessages(ctx context.Context, roomId, userId, limit int) ([]types.Message, error) {
	return db.listRecentMessages(ctx,
		selectMessageQuery+" WHERE room_id = $1 AND kind = $2 AND (sender_id = $3 OR receiver_id = $3) "+
			"ORDER BY id DESC LIMIT $4",
		roomId, types.MessagePrivate, userId, historyLimit(limit),
	)
}

func (db *PgClassroomRepository) CreateQuestion(ctx context.Context, q types.Question) (types.Question, error) {
	answer, _ := q.Answer()
	var options any
	if q.Kind() == types.QuestionChoice {
		options = pq.Array(q.Options())
	}

	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO questions (room_id, creator_id, title, body, kind, options, answer, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
		q.RoomId, q.CreatorId, q.Title(), q.Body(), q.Kind(), options, nullString(answer), q.CreatedAt,
	).Scan(&q.Id)

	return q, translateErr(err)
}

func (db *PgClassroomRepository) GetQuestion(ctx context.Context, id int) (types.Question, error) {
	q, err := scanQuestion(db.conn.QueryRowContext(ctx, selectQuestionQuery+" WHERE id = $1", id))
	return q, translateErr(err)
}

func (db *PgClassroomRepository) ListQuestions(ctx context.Context, roomId int) ([]types.Question, error) {
	rows, err := db.conn.QueryContext(ctx, selectQuestionQuery+" WHERE room_id = $1 ORDER BY id", roomId)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanQuestion)
}

func (db *PgClassroomRepository) CreateAnswer(ctx context.Context, a types.Answer) (types.Answer, error) {
	var score sql.NullFloat64
	if a.Score != nil {
		score = sql.NullFloat64{Float64: *a.Score, Valid: true}
	}

	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO answers (question_id, user_id, content, score, submitted_at) "+
			"VALUES ($1, $2, $3, $4, $5) ON CONFLICT (question_id, user_id) DO NOTHING RETURNING id",
		a.QuestionId, a.UserId, a.Content, score, a.SubmittedAt,
	).Scan(&a.Id)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrDuplicate
	}

	return a, translateErr(err)
}

func (db *PgClassroomRepository) GetAnswer(ctx context.Context, questionId, userId int) (types.Answer, error) {
	a, err := scanAnswer(db.conn.QueryRowContext(ctx,
		selectAnswerQuery+" WHERE question_id = $1 AND user_id = $2", questionId, userId))
	return a, translateErr(err)
}

func (db *PgClassroomRepository) ListAnswers(ctx context.Context, questionId int) ([]types.Answer, error) {
	rows, err := db.conn.QueryContext(ctx, selectAnswerQuery+" WHERE question_id = $1 ORDER BY id", questionId)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAnswer)
}

func (db *PgClassroomRepository) CreateAttendance(ctx context.Context, a types.Attendance) (types.Attendance, error) {
	var expires sql.NullTime
	if a.ExpiresAt != nil {
		expires = sql.NullTime{Time: *a.ExpiresAt, Valid: true}
	}

	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO attendances (room_id, title, kind, secret, created_at, expires_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		a.RoomId, a.Title, a.Kind, nullString(a.Secret), a.CreatedAt, expires,
	).Scan(&a.Id)

	return a, translateErr(err)
}

func (db *PgClassroomRepository) GetAttendance(ctx context.Context, id int) (types.Attendance, error) {
	a, err := scanAttendance(db.conn.QueryRowContext(ctx, selectAttendQuery+" WHERE id = $1", id))
	return a, translateErr(err)
}

func (db *PgClassroomRepository) ListOpenAttendances(ctx context.Context, roomId int, now time.Time) ([]types.Attendance, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectAttendQuery+" WHERE room_id = $1 AND (expires_at IS NULL OR expires_at > $2) ORDER BY id",
		roomId, now,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAttendance)
}

func (db *PgClassroomRepository) CreateAttendanceRecord(ctx context.Context, r types.AttendanceRecord) (types.AttendanceRecord, error) {
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO attendance_records (attendance_id, user_id, signed_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT (attendance_id, user_id) DO NOTHING RETURNING id",
		r.AttendanceId, r.UserId, r.SignedAt,
	).Scan(&r.Id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrDuplicate
	}

	return r, translateErr(err)
}

func (db *PgClassroomRepository) GetAttendanceRecord(ctx context.Context, attendanceId, userId int) (types.AttendanceRecord, error) {
	r, err := scanRecord(db.conn.QueryRowContext(ctx,
		selectRecordQuery+" WHERE attendance_id = $1 AND user_id = $2", attendanceId, userId))
	return r, translateErr(err)
}

func (db *PgClassroomRepository) ListAttendanceRecords(ctx context.Context, attendanceId int) ([]types.AttendanceRecord, error) {
	rows, err := db.conn.QueryContext(ctx, selectRecordQuery+" WHERE attendance_id = $1 ORDER BY id", attendanceId)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRecord)
}

func (db *PgClassroomRepository) ListUserRecords(ctx context.Context, roomId, userId int) ([]types.AttendanceRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT r.id, r.attendance_id, r.user_id, r.signed_at FROM attendance_records r "+
			"JOIN attendances a ON a.id = r.attendance_id WHERE a.room_id = $1 AND r.user_id = $2 ORDER BY r.id",
		roomId, userId,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRecord)
}
