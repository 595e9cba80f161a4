//go:build !linux && !darwin

package diskusage

import (
	"context"

	"seedwarden/internal/domain"
)

type Statfs struct{}

func (Statfs) Usage(ctx context.Context, dir string) (domain.DiskUsage, error) {
	return domain.DiskUsage{}, domain.ErrUnsupported
}
