package server

import "errors"

var (
	errMissingUser   = errors.New("user_id is required")
	errNotBound      = errors.New("session not bound, send bootstrap first")
	errMissingCookie = errors.New("cookie is required")
	errUnknownAction = errors.New("unknown action")
)
