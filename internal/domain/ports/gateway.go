package ports

import (
	"context"

	"seedwarden/internal/domain"
)

// Gateway is the subset of the download daemon the controller drives.
// Every call may fail; callers treat failures as transient.
type Gateway interface {
	ListTorrents(ctx context.Context) ([]domain.Torrent, error)
	StartTorrent(ctx context.Context, id domain.TorrentID) error
	StopTorrent(ctx context.Context, id domain.TorrentID) error
	RemoveTorrent(ctx context.Context, id domain.TorrentID, deleteData bool) error
	ReannounceTorrent(ctx context.Context, id domain.TorrentID) error
}
