package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/sirupsen/logrus"
)

func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.WithError(panicError).Error("panic")
				w.Header().Set("Connection", "close")
				s.writeError(w, NewInternalServerError(panicError))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through the app logger.
func (s *App) requestLogger(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.log.WithFields(logrus.Fields{
			"method":   p.Request.Method,
			"path":     p.URL.Path,
			"status":   p.StatusCode,
			"size":     p.Size,
			"duration": time.Since(p.TimeStamp),
		}).Debug("request")
	})
}

// authMiddleware resolves the session cookie to a user and stores it in the
// request context.
func (s *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(tokenCookieKey)
		if err != nil {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		userId, err := userIdFromToken(s.signingKey, tokenCookie.Value)
		if err != nil {
			s.log.WithError(err).Debug("rejected session token")
			s.writeError(w, NewUnauthorizedError())
			return
		}

		user, err := s.store.GetUser(r.Context(), userId)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				s.writeError(w, NewUnauthorizedError())
				return
			}
			s.writeError(w, NewInternalServerError(err))
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// teacherOnly must run inside authMiddleware.
func (s *App) teacherOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		if !user.IsTeacher() {
			s.writeError(w, NewForbiddenError())
			return
		}
		next(w, r)
	}
}
