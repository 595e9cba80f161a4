package app

import (
	"errors"
	"os"
)

// ErrLocked means another run holds the lock file.
var ErrLocked = errors.New("another instance is running")

type Lock struct {
	file *os.File
}
