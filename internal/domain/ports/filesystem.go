package ports

import (
	"context"

	"seedwarden/internal/domain"
)

type FileMover interface {
	// Copy copies the selected files of t below destRoot. On error nothing
	// created by this call is left behind.
	Copy(ctx context.Context, t domain.Torrent, destRoot string) error
	// Relocate moves every top-level entry of srcDir into archiveDir and
	// returns how many entries were moved.
	Relocate(ctx context.Context, srcDir, archiveDir string) (int, error)
}

type DiskUsage interface {
	Usage(ctx context.Context, dir string) (domain.DiskUsage, error)
}

// ShowRouter maps a torrent name to a per-show copy destination.
type ShowRouter interface {
	Destination(torrentName string) (string, bool)
}
