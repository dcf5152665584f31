package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("remote unavailable")
	ErrRejected    = errors.New("rejected by remote")
	ErrStore       = errors.New("entity store failure")
	ErrConflict    = errors.New("version conflict")
)
