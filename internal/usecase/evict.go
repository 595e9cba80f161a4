package usecase

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"seedwarden/internal/domain"
	"seedwarden/internal/domain/ports"
)

// EvictTorrents removes finished torrents, oldest completion first, while the
// filesystem behind DownloadDir has MinFreePercent or less free space.
// A negative MinFreePercent disables eviction.
type EvictTorrents struct {
	Gateway        ports.Gateway
	Usage          ports.DiskUsage
	Logger         *slog.Logger
	DownloadDir    string
	MinFreePercent int
}

// EvictionResult is what one eviction pass did. FreePercent is the last
// measurement taken, or -1 when none succeeded.
type EvictionResult struct {
	Removed     []domain.TorrentID
	FreePercent int
}

// Enabled reports whether a free space threshold is configured.
func (uc EvictTorrents) Enabled() bool {
	return uc.MinFreePercent >= 0
}

// Execute removes candidates until free space clears the threshold. A disk
// usage error aborts the eviction for this cycle and is returned; removal
// errors are logged and the next candidate is tried.
func (uc EvictTorrents) Execute(ctx context.Context, candidates []domain.EvictionCandidate) (EvictionResult, error) {
	result := EvictionResult{FreePercent: -1}
	if !uc.Enabled() {
		return result, nil
	}

	usage, err := uc.Usage.Usage(ctx, uc.DownloadDir)
	if err != nil {
		return result, wrapDiskUsage(err)
	}
	result.FreePercent = usage.FreePercent()
	if uc.spaceOK(usage) {
		return result, nil
	}

	queue := uc.eligible(candidates)
	uc.Logger.Warn("evict: low disk space",
		slog.String("device", usage.Device),
		slog.Int("freePercent", usage.FreePercent()),
		slog.Int("thresholdPercent", uc.MinFreePercent),
		slog.Int("candidates", len(queue)),
	)

	for _, c := range queue {
		if err := uc.Gateway.RemoveTorrent(ctx, c.ID, true); err != nil {
			uc.Logger.Warn("evict: remove failed",
				slog.Int64("id", int64(c.ID)),
				slog.String("name", c.Name),
				slog.String("error", wrapGateway(err).Error()),
			)
			continue
		}
		result.Removed = append(result.Removed, c.ID)
		uc.Logger.Info("evict: removed torrent",
			slog.Int64("id", int64(c.ID)),
			slog.String("name", c.Name),
			slog.String("size", humanize.Bytes(uint64(max(c.SizeBytes, 0)))),
			slog.String("finished", humanize.Time(c.DoneAt)),
		)

		usage, err = uc.Usage.Usage(ctx, uc.DownloadDir)
		if err != nil {
			result.FreePercent = -1
			return result, wrapDiskUsage(err)
		}
		result.FreePercent = usage.FreePercent()
		if uc.spaceOK(usage) {
			uc.Logger.Info("evict: disk space recovered",
				slog.Int("freePercent", usage.FreePercent()),
				slog.Int("removed", len(result.Removed)),
			)
			return result, nil
		}
	}

	uc.Logger.Warn("evict: candidates exhausted before threshold was met",
		slog.Int("freePercent", usage.FreePercent()),
		slog.Int("removed", len(result.Removed)),
	)
	return result, nil
}

func (uc EvictTorrents) spaceOK(usage domain.DiskUsage) bool {
	return usage.FreePercent() > uc.MinFreePercent
}

// eligible keeps candidates stored in DownloadDir and orders them by
// completion time, oldest first. Ties keep their listing order.
func (uc EvictTorrents) eligible(candidates []domain.EvictionCandidate) []domain.EvictionCandidate {
	dir := cleanDir(uc.DownloadDir)
	out := make([]domain.EvictionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if cleanDir(c.DownloadDir) != dir {
			continue
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b domain.EvictionCandidate) int {
		return a.DoneAt.Compare(b.DoneAt)
	})
	return out
}

func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	return filepath.Clean(dir)
}
