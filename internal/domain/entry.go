package domain

import (
	"errors"
	"time"
)

// RegistryEntry is the durable bookkeeping kept for a finished torrent.
// Copied is only ever set after every selected file reached its destination.
type RegistryEntry struct {
	UUID      TorrentUUID `json:"uuid"`
	Name      string      `json:"name"`
	Copied    bool        `json:"copied"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	CopiedAt  time.Time   `json:"copiedAt,omitempty"`
}

func (e RegistryEntry) Validate() error {
	if e.UUID == "" {
		return errors.New("registry entry uuid is required")
	}
	if e.Copied && e.CopiedAt.IsZero() {
		return errors.New("copiedAt is required once copied")
	}
	return nil
}
