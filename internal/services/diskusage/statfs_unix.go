//go:build linux || darwin

package diskusage

import (
	"context"
	"fmt"
	"syscall"

	"seedwarden/internal/domain"
)

// Statfs asks the kernel directly instead of spawning df.
type Statfs struct{}

func (Statfs) Usage(ctx context.Context, dir string) (domain.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return domain.DiskUsage{}, fmt.Errorf("statfs %s: %w", dir, err)
	}
	used := uint64(stat.Blocks) - uint64(stat.Bfree)
	return domain.DiskUsage{
		Device:      dir,
		UsedPercent: usedPercent(used, uint64(stat.Bavail)),
	}, nil
}
