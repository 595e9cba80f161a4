package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrGateway    = errors.New("gateway error")
	ErrRegistry   = errors.New("registry error")
	ErrDiskUsage  = errors.New("disk usage error")
	ErrCopyFailed = errors.New("copy failed")
)

func wrapGateway(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}

func wrapRegistry(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRegistry, err)
}

func wrapDiskUsage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDiskUsage, err)
}

func wrapCopy(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCopyFailed, err)
}
