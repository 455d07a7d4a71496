package stride

import (
	"errors"
)

var (
	ErrUnknownAthlete = errors.New("athlete is not selected")
	ErrClosed         = errors.New("session is closed")
)
