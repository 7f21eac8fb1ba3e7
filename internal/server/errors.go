package server

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrShuttingDown      = errors.New("server is shutting down")
)
