package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-classroom/internal/server"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newStatusError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newStatusError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newStatusError(http.StatusNotFound)
}

func NewUnauthorizedError() *ApiError {
	return newStatusError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newStatusError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newStatusError(http.StatusConflict)
}

func NewInternalServerError(err error) *ApiError {
	e := newStatusError(http.StatusInternalServerError)
	e.Err = err
	return e
}

// errorFor converts a classroom error into its API form. Client errors carry
// the error text; internal errors only the status text.
func errorFor(err error) *ApiError {
	code := server.StatusCode(err)
	if code >= http.StatusInternalServerError {
		e := newStatusError(code)
		e.Err = err
		return e
	}

	return &ApiError{
		StatusCode: code,
		Message:    err.Error(),
		Err:        err,
	}
}
