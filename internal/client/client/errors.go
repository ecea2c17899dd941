package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("not logged in or session expired")
	ErrRateLimited  = errors.New("too many login attempts, retry later")
	ErrLoginAborted = errors.New("login aborted")
)
