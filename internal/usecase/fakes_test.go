package usecase

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"seedwarden/internal/domain"
)

// fakeGateway implements ports.Gateway and records every mutating call.
type fakeGateway struct {
	torrents []domain.Torrent
	listErr  error

	removeErr     map[domain.TorrentID]error
	startErr      error
	stopErr       error
	reannounceErr error

	// onRemove runs after a successful removal; tests use it to free space.
	onRemove func(id domain.TorrentID)

	mu              sync.Mutex
	removeCalls     []domain.TorrentID
	removeDeleted   []bool
	startCalls      []domain.TorrentID
	stopCalls       []domain.TorrentID
	reannounceCalls []domain.TorrentID
}

func (f *fakeGateway) ListTorrents(ctx context.Context) ([]domain.Torrent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.torrents), nil
}

func (f *fakeGateway) StartTorrent(ctx context.Context, id domain.TorrentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, id)
	if f.startErr != nil {
		return f.startErr
	}
	f.setStatus(id, domain.TorrentDownloading)
	return nil
}

func (f *fakeGateway) StopTorrent(ctx context.Context, id domain.TorrentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, id)
	if f.stopErr != nil {
		return f.stopErr
	}
	f.setStatus(id, domain.TorrentStopped)
	return nil
}

func (f *fakeGateway) ReannounceTorrent(ctx context.Context, id domain.TorrentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reannounceCalls = append(f.reannounceCalls, id)
	return f.reannounceErr
}

func (f *fakeGateway) RemoveTorrent(ctx context.Context, id domain.TorrentID, deleteData bool) error {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, id)
	f.removeDeleted = append(f.removeDeleted, deleteData)
	if err := f.removeErr[id]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.torrents = slices.DeleteFunc(f.torrents, func(t domain.Torrent) bool { return t.ID == id })
	hook := f.onRemove
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return nil
}

func (f *fakeGateway) setStatus(id domain.TorrentID, status domain.TorrentStatus) {
	for i := range f.torrents {
		if f.torrents[i].ID == id {
			f.torrents[i].Status = status
		}
	}
}

// fakeRegistry is an in-memory ports.Registry.
type fakeRegistry struct {
	entries   map[domain.TorrentUUID]domain.RegistryEntry
	getErr    error
	upsertErr error
	deleteErr error

	upserts     int
	deleteCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{entries: make(map[domain.TorrentUUID]domain.RegistryEntry)}
}

func (f *fakeRegistry) Get(ctx context.Context, id domain.TorrentUUID) (domain.RegistryEntry, error) {
	if f.getErr != nil {
		return domain.RegistryEntry{}, f.getErr
	}
	e, ok := f.entries[id]
	if !ok {
		return domain.RegistryEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeRegistry) Upsert(ctx context.Context, entry domain.RegistryEntry) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.entries[entry.UUID] = entry
	return nil
}

func (f *fakeRegistry) DeleteNotIn(ctx context.Context, keep []domain.TorrentUUID) (int64, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var n int64
	for id := range f.entries {
		if !slices.Contains(keep, id) {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

type copyCall struct {
	id   domain.TorrentID
	dest string
}

// fakeMover implements ports.FileMover.
type fakeMover struct {
	copyErr     map[domain.TorrentID]error
	relocated   int
	relocateErr error

	copyCalls     []copyCall
	relocateCalls int
}

func (f *fakeMover) Copy(ctx context.Context, t domain.Torrent, destRoot string) error {
	f.copyCalls = append(f.copyCalls, copyCall{id: t.ID, dest: destRoot})
	return f.copyErr[t.ID]
}

func (f *fakeMover) Relocate(ctx context.Context, srcDir, archiveDir string) (int, error) {
	f.relocateCalls++
	return f.relocated, f.relocateErr
}

// fakeUsage returns readings in order and repeats the last one.
type fakeUsage struct {
	readings []domain.DiskUsage
	err      error
	errAfter int // fail from this call on when > 0

	calls int
	dirs  []string
}

func (f *fakeUsage) Usage(ctx context.Context, dir string) (domain.DiskUsage, error) {
	f.calls++
	f.dirs = append(f.dirs, dir)
	if f.err != nil && (f.errAfter == 0 || f.calls >= f.errAfter) {
		return domain.DiskUsage{}, f.err
	}
	if len(f.readings) == 0 {
		return domain.DiskUsage{Device: "/dev/sda1"}, nil
	}
	i := min(f.calls-1, len(f.readings)-1)
	return f.readings[i], nil
}

type fakeShows map[string]string

func (f fakeShows) Destination(name string) (string, bool) {
	dest, ok := f[name]
	return dest, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
