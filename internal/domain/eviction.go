package domain

import "time"

// EvictionCandidate is a snapshot of a finished torrent taken when the cycle
// collected it. DoneAt is the sort key and is not refreshed afterwards.
type EvictionCandidate struct {
	ID          TorrentID
	UUID        TorrentUUID
	Name        string
	DownloadDir string
	DoneAt      time.Time
	SizeBytes   int64
}

func NewEvictionCandidate(t Torrent) EvictionCandidate {
	return EvictionCandidate{
		ID:          t.ID,
		UUID:        t.UUID(),
		Name:        t.Name,
		DownloadDir: t.DownloadDir,
		DoneAt:      t.DoneAt,
		SizeBytes:   t.SizeBytes,
	}
}
