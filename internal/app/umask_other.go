//go:build !linux && !darwin

package app

// SetUmask is a no-op outside linux and darwin.
func SetUmask(mask int) int {
	return 0
}
