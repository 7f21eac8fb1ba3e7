package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-classroom/internal/classroom"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/server"
	"github.com/sirupsen/logrus"
)

const defaultSessionTTL = 24 * time.Hour

// App is the HTTP surface: session endpoints, read-only classroom views and
// the websocket entry point.
type App struct {
	log            logrus.FieldLogger
	store          database.ClassroomRepository
	cls            *classroom.Classroom
	hub            *server.Hub
	dispatcher     *server.Dispatcher
	srv            *http.Server
	upgrader       websocket.Upgrader
	signingKey     []byte
	sessionTTL     time.Duration
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger logrus.FieldLogger, store database.ClassroomRepository, cls *classroom.Classroom, hub *server.Hub, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		store:          store,
		cls:            cls,
		hub:            hub,
		dispatcher:     server.NewDispatcher(cls, hub, logger),
		signingKey:     cfg.SigningKey,
		sessionTTL:     config.TTLDuration(cfg.SessionTTL, defaultSessionTTL),
		allowedOrigins: cfg.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/teachers/register", s.registerTeacher)
	mux.HandleFunc("POST /api/teachers/login", s.loginTeacher)
	mux.HandleFunc("GET /api/students", s.listStudents)
	mux.HandleFunc("POST /api/students/session", s.studentSession)
	mux.Handle("POST /api/students", s.authMiddleware(s.teacherOnly(s.addStudents)))
	mux.Handle("GET /api/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.teacherOnly(s.createRoom)))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(s.roomSnapshot))
	mux.Handle("GET /api/questions/{id}/answers", s.authMiddleware(s.listAnswers))
	mux.Handle("GET /api/attendances/{id}/records", s.authMiddleware(s.listRecords))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.requestLogger(h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *App) Handler() http.Handler {
	return s.srv.Handler
}

func (s *App) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("starting server")
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
