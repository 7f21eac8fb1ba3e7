package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/server"
	"github.com/npezzotti/go-classroom/internal/types"
	"github.com/sirupsen/logrus"
)

const maxRosterSize = 500

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type AddStudentsRequest struct {
	Names []string `json:"names"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("json encode")
	}
}

func (s *App) writeError(w http.ResponseWriter, e *ApiError) {
	if e.StatusCode >= http.StatusInternalServerError {
		s.log.WithError(e).Error("request failed")
	}
	s.writeJson(w, e.StatusCode, e)
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil && id > 0
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// listStudents serves the roster students pick their name from.
func (s *App) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, students)
}

func (s *App) addStudents(w http.ResponseWriter, r *http.Request) {
	var req AddStudentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	names := make([]string, 0, len(req.Names))
	for _, name := range req.Names {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 || len(names) > maxRosterSize {
		s.writeError(w, NewBadRequestError())
		return
	}

	created := make([]types.User, 0, len(names))
	for _, name := range names {
		user, err := s.store.CreateUser(r.Context(), database.CreateUserParams{
			Name: name,
			Role: types.RoleStudent,
		})
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}
		created = append(created, user)
	}

	s.log.WithField("count", len(created)).Info("added students")
	s.writeJson(w, http.StatusCreated, created)
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	room, err := s.cls.Rooms.CreateRoom(r.Context(), user, req.Name)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *App) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.cls.Rooms.ListActiveRooms(r.Context())
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *App) roomSnapshot(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	roomId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	snap, err := s.cls.Rooms.Snapshot(r.Context(), user, roomId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, snap)
}

func (s *App) listAnswers(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	questionId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	answers, err := s.cls.Questions.ListAnswers(r.Context(), user, questionId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, answers)
}

func (s *App) listRecords(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	attendanceId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	records, err := s.cls.Attendance.ListRecords(r.Context(), user, attendanceId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, records)
}

func (s *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.log.WithError(err).Warn("error upgrading connection")
		return
	}

	conn := server.NewConn(ws, user, s.hub)
	s.hub.Connect(conn)
	s.log.WithFields(logrus.Fields{"conn_id": conn.Id(), "user_id": user.Id}).Debug("websocket connected")

	go conn.Write()
	go conn.Read(s.dispatcher)
}
