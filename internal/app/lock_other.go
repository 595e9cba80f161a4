//go:build !linux && !darwin

package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// AcquireLock creates path exclusively. Without flock a crashed run leaves
// the file behind and it has to be removed by hand.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return &Lock{file: f}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	closeErr := f.Close()
	return errors.Join(closeErr, os.Remove(f.Name()))
}
