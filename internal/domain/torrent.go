package domain

import "time"

// TorrentID is the daemon's numeric handle. It is only valid for the current
// daemon process and must not be persisted.
type TorrentID int64

type TorrentFile struct {
	Path     string `json:"path"`
	Length   int64  `json:"length"`
	Selected bool   `json:"selected"`
}

type TrackerStat struct {
	Host           string    `json:"host"`
	LastAnnounceAt time.Time `json:"lastAnnounceAt"`
}

type Torrent struct {
	ID          TorrentID     `json:"id"`
	Hash        string        `json:"hash"`
	Name        string        `json:"name"`
	DownloadDir string        `json:"downloadDir"`
	AddedAt     time.Time     `json:"addedAt"`
	DoneAt      time.Time     `json:"doneAt"`
	Status      TorrentStatus `json:"status"`
	SizeBytes   int64         `json:"sizeBytes"`
	Files       []TorrentFile `json:"files"`
	Trackers    []TrackerStat `json:"trackers"`
}

// Finished reports whether the daemon recorded a completion time.
func (t Torrent) Finished() bool {
	return !t.DoneAt.IsZero()
}

// LastAnnounce returns the most recent announce across all trackers, or the
// zero time when the torrent has never announced.
func (t Torrent) LastAnnounce() time.Time {
	var last time.Time
	for _, tr := range t.Trackers {
		if tr.LastAnnounceAt.After(last) {
			last = tr.LastAnnounceAt
		}
	}
	return last
}

func (t Torrent) UUID() TorrentUUID {
	return NewTorrentUUID(t.Hash, t.AddedAt)
}
