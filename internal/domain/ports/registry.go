package ports

import (
	"context"

	"seedwarden/internal/domain"
)

type Registry interface {
	// Get returns domain.ErrNotFound when no entry exists for uuid.
	Get(ctx context.Context, uuid domain.TorrentUUID) (domain.RegistryEntry, error)
	Upsert(ctx context.Context, entry domain.RegistryEntry) error
	// DeleteNotIn removes every entry whose uuid is not in keep and returns
	// the number of removed entries.
	DeleteNotIn(ctx context.Context, keep []domain.TorrentUUID) (int64, error)
}
