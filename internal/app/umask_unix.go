//go:build linux || darwin

package app

import "syscall"

// SetUmask installs mask for the process and returns the previous value.
func SetUmask(mask int) int {
	return syscall.Umask(mask)
}
