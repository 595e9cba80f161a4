package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"seedwarden/internal/domain"
	"seedwarden/internal/domain/ports"
)

// Reconcile runs one poll cycle against the daemon: copy-once for finished
// torrents, max seed time retirement, bulk start/stop, re-announces, registry
// pruning, eviction under disk pressure and archive relocation.
type Reconcile struct {
	Gateway  ports.Gateway
	Registry ports.Registry
	Mover    ports.FileMover
	Shows    ports.ShowRouter // optional
	Evict    EvictTorrents
	Logger   *slog.Logger
	Now      func() time.Time

	CopyTo       string
	MoveCopiedTo string
	// MaxSeedTime retires finished torrents after this long; negative disables.
	MaxSeedTime time.Duration
	// MaxAnnounceInterval triggers a re-announce for unfinished torrents whose
	// latest announce is older than this; zero disables.
	MaxAnnounceInterval time.Duration
	StartAll            bool
	StopAll             bool
}

// Run executes a single cycle. Failures of individual torrents and of the
// cycle-level steps are logged and counted in the report. The returned error
// is only set for conditions an operator has to resolve.
func (uc Reconcile) Run(ctx context.Context) (domain.CycleReport, error) {
	report := domain.CycleReport{FreePercent: -1}
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}

	torrents, err := uc.Gateway.ListTorrents(ctx)
	if err != nil {
		report.GatewayErrors++
		uc.Logger.Warn("reconcile: list torrents failed", slog.String("error", wrapGateway(err).Error()))
		return report, nil
	}
	report.Observed = len(torrents)

	live := make([]domain.TorrentUUID, 0, len(torrents))
	seen := make(map[domain.TorrentUUID]domain.TorrentID, len(torrents))
	var candidates []domain.EvictionCandidate

	for _, t := range torrents {
		id := t.UUID()
		if prev, dup := seen[id]; dup {
			uc.Logger.Warn("reconcile: duplicate torrent identity",
				slog.String("uuid", string(id)),
				slog.Int64("id", int64(t.ID)),
				slog.Int64("otherId", int64(prev)),
				slog.String("name", t.Name),
			)
		} else {
			live = append(live, id)
		}
		seen[id] = t.ID

		if t.Finished() {
			report.Finished++
			if c, ok := uc.reconcileFinished(ctx, t, now(), &report); ok {
				candidates = append(candidates, c)
			}
			continue
		}
		uc.reconcileActive(ctx, t, now(), &report)
	}

	pruned, err := uc.Registry.DeleteNotIn(ctx, live)
	if err != nil {
		report.RegistryErrors++
		uc.Logger.Warn("reconcile: prune registry failed", slog.String("error", wrapRegistry(err).Error()))
	} else {
		report.Pruned = pruned
		if pruned > 0 {
			uc.Logger.Info("reconcile: pruned stale registry entries", slog.Int64("count", pruned))
		}
	}

	if uc.Evict.Enabled() {
		result, err := uc.Evict.Execute(ctx, candidates)
		report.Evicted = len(result.Removed)
		report.FreePercent = result.FreePercent
		if err != nil {
			uc.Logger.Warn("reconcile: eviction skipped", slog.String("error", err.Error()))
		}
	}

	if uc.CopyTo != "" && uc.MoveCopiedTo != "" {
		moved, err := uc.Mover.Relocate(ctx, uc.CopyTo, uc.MoveCopiedTo)
		report.Relocated = moved
		if err != nil {
			if errors.Is(err, domain.ErrNameCollision) {
				return report, err
			}
			uc.Logger.Warn("reconcile: relocate copies failed",
				slog.String("from", uc.CopyTo),
				slog.String("to", uc.MoveCopiedTo),
				slog.String("error", err.Error()),
			)
		}
	}

	return report, nil
}

// reconcileFinished applies copy-once and max seed time to a finished torrent.
// It returns the torrent as an eviction candidate when it stays in the daemon.
func (uc Reconcile) reconcileFinished(ctx context.Context, t domain.Torrent, now time.Time, report *domain.CycleReport) (domain.EvictionCandidate, bool) {
	log := uc.Logger.With(slog.Int64("id", int64(t.ID)), slog.String("name", t.Name))

	entry, err := uc.loadEntry(ctx, t, now)
	if err != nil {
		report.RegistryErrors++
		log.Warn("reconcile: load registry entry failed", slog.String("error", err.Error()))
		return domain.EvictionCandidate{}, false
	}

	if uc.CopyTo != "" && !entry.Copied {
		dest := uc.destination(t)
		if err := uc.Mover.Copy(ctx, t, dest); err != nil {
			report.CopyFailures++
			log.Warn("reconcile: copy failed, will retry next cycle",
				slog.String("dest", dest),
				slog.String("error", wrapCopy(err).Error()),
			)
			return domain.EvictionCandidate{}, false
		}
		entry.Copied = true
		entry.CopiedAt = now
		entry.UpdatedAt = now
		if err := uc.Registry.Upsert(ctx, entry); err != nil {
			report.RegistryErrors++
			log.Warn("reconcile: record copy failed", slog.String("error", wrapRegistry(err).Error()))
			return domain.EvictionCandidate{}, false
		}
		report.Copied++
		log.Info("reconcile: copied torrent", slog.String("dest", dest))
	}

	if uc.MaxSeedTime >= 0 && now.Sub(t.DoneAt) >= uc.MaxSeedTime {
		if err := uc.Gateway.RemoveTorrent(ctx, t.ID, true); err != nil {
			report.GatewayErrors++
			log.Warn("reconcile: retire torrent failed", slog.String("error", wrapGateway(err).Error()))
			return domain.EvictionCandidate{}, false
		}
		report.Retired++
		log.Info("reconcile: retired torrent after max seed time",
			slog.String("finished", humanize.Time(t.DoneAt)),
		)
		return domain.EvictionCandidate{}, false
	}

	return domain.NewEvictionCandidate(t), true
}

// loadEntry returns the registry entry for t, creating it on first sight.
func (uc Reconcile) loadEntry(ctx context.Context, t domain.Torrent, now time.Time) (domain.RegistryEntry, error) {
	id := t.UUID()
	entry, err := uc.Registry.Get(ctx, id)
	switch {
	case err == nil:
		if entry.Name == t.Name {
			return entry, nil
		}
		entry.Name = t.Name
	case errors.Is(err, domain.ErrNotFound):
		entry = domain.RegistryEntry{UUID: id, Name: t.Name, CreatedAt: now}
	default:
		return domain.RegistryEntry{}, wrapRegistry(err)
	}

	entry.UpdatedAt = now
	if err := uc.Registry.Upsert(ctx, entry); err != nil {
		return domain.RegistryEntry{}, wrapRegistry(err)
	}
	return entry, nil
}

func (uc Reconcile) destination(t domain.Torrent) string {
	if uc.Shows != nil {
		if dest, ok := uc.Shows.Destination(t.Name); ok {
			return dest
		}
	}
	return uc.CopyTo
}

// reconcileActive handles bulk start/stop and re-announces for a torrent
// that has not finished downloading.
func (uc Reconcile) reconcileActive(ctx context.Context, t domain.Torrent, now time.Time, report *domain.CycleReport) {
	log := uc.Logger.With(slog.Int64("id", int64(t.ID)), slog.String("name", t.Name))
	status := t.Status

	switch {
	case uc.StartAll && status == domain.TorrentStopped:
		if err := uc.Gateway.StartTorrent(ctx, t.ID); err != nil {
			report.GatewayErrors++
			log.Warn("reconcile: start failed", slog.String("error", wrapGateway(err).Error()))
		} else {
			report.Started++
			status = domain.TorrentDownloading
			log.Info("reconcile: started torrent")
		}
	case uc.StopAll && status != domain.TorrentStopped:
		if err := uc.Gateway.StopTorrent(ctx, t.ID); err != nil {
			report.GatewayErrors++
			log.Warn("reconcile: stop failed", slog.String("error", wrapGateway(err).Error()))
		} else {
			report.Stopped++
			status = domain.TorrentStopped
			log.Info("reconcile: stopped torrent")
		}
	}

	if uc.MaxAnnounceInterval <= 0 || status == domain.TorrentStopped || len(t.Trackers) == 0 {
		return
	}
	last := t.LastAnnounce()
	if now.Sub(last) <= uc.MaxAnnounceInterval {
		return
	}
	if err := uc.Gateway.ReannounceTorrent(ctx, t.ID); err != nil {
		report.GatewayErrors++
		log.Warn("reconcile: reannounce failed", slog.String("error", wrapGateway(err).Error()))
		return
	}
	report.Reannounced++
	log.Info("reconcile: reannounced torrent", slog.Time("lastAnnounce", last))
}
