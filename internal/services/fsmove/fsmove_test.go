package fsmove

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"seedwarden/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func multiFileTorrent(downloadDir string) domain.Torrent {
	return domain.Torrent{
		ID:          1,
		Name:        "Album",
		DownloadDir: downloadDir,
		Files: []domain.TorrentFile{
			{Path: "Album/01.flac", Length: 5, Selected: true},
			{Path: "Album/02.flac", Length: 5, Selected: true},
			{Path: "Album/cover.jpg", Length: 3, Selected: false},
		},
	}
}

func TestCopySelectedFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(src, "Album/02.flac"), "two..")
	writeFile(t, filepath.Join(src, "Album/cover.jpg"), "img")

	m := New(discardLogger())
	if err := m.Copy(context.Background(), multiFileTorrent(src), dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "Album/01.flac")); got != "one.." {
		t.Fatalf("01.flac = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "Album/02.flac")); got != "two.." {
		t.Fatalf("02.flac = %q", got)
	}
	if exists(filepath.Join(dst, "Album/cover.jpg")) {
		t.Fatalf("unselected file was copied")
	}
	if exists(filepath.Join(dst, "Album/.01.flac.partial")) {
		t.Fatalf("partial file left behind")
	}
}

func TestCopyFileMode(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "file.bin"), "x")

	tor := domain.Torrent{DownloadDir: src, Files: []domain.TorrentFile{{Path: "file.bin", Length: 1, Selected: true}}}
	if err := New(discardLogger()).Copy(context.Background(), tor, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "file.bin"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&^fileMode != 0 {
		t.Fatalf("mode = %o, want at most %o", perm, fileMode)
	}
}

func TestCopyRollsBackOnFailure(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	// 02.flac is missing from the source, so the second file fails.

	err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst)
	if err == nil {
		t.Fatalf("expected error for missing source file")
	}
	if exists(filepath.Join(dst, "Album")) {
		t.Fatalf("directory from failed attempt left at destination")
	}
}

func TestFailedCopyLeavesNothingToArchive(t *testing.T) {
	src := t.TempDir()
	copyTo := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	tor := domain.Torrent{
		Name:        "Album",
		DownloadDir: src,
		Files: []domain.TorrentFile{
			{Path: "Album/01.flac", Length: 5, Selected: true},
			{Path: "Album/Disc2/02.flac", Length: 5, Selected: true},
		},
	}

	m := New(discardLogger())
	for attempt := 0; attempt <= maxCollisionPrefix+1; attempt++ {
		if err := m.Copy(context.Background(), tor, copyTo); err == nil {
			t.Fatalf("attempt %d: expected error for missing Disc2/02.flac", attempt)
		}
		moved, err := m.Relocate(context.Background(), copyTo, archive)
		if err != nil {
			t.Fatalf("attempt %d: Relocate: %v", attempt, err)
		}
		if moved != 0 {
			t.Fatalf("attempt %d: archived %d entries from a failed copy", attempt, moved)
		}
	}
	if exists(archive) {
		t.Fatalf("archive created for failed copies")
	}
}

func TestCopyRollbackKeepsPreexistingDirectories(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	if err := os.MkdirAll(filepath.Join(dst, "Album"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst); err == nil {
		t.Fatalf("expected error for missing 02.flac")
	}
	if !exists(filepath.Join(dst, "Album")) {
		t.Fatalf("rollback removed a directory this attempt did not create")
	}
	if exists(filepath.Join(dst, "Album/01.flac")) {
		t.Fatalf("file from failed attempt left at destination")
	}
}

func TestCopyTreatsIdenticalFileAsCopied(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(src, "Album/02.flac"), "two..")
	writeFile(t, filepath.Join(dst, "Album/01.flac"), "one..")

	if err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "Album/02.flac")); got != "two.." {
		t.Fatalf("02.flac = %q", got)
	}
}

func TestCopyRejectsSameSizeDifferentContent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "NEW01")
	writeFile(t, filepath.Join(src, "Album/02.flac"), "two..")
	writeFile(t, filepath.Join(dst, "Album/01.flac"), "OLD01")

	err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst)
	if !errors.Is(err, domain.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "Album/01.flac")); got != "OLD01" {
		t.Fatalf("existing file overwritten: %q", got)
	}
	if exists(filepath.Join(dst, "Album/02.flac")) {
		t.Fatalf("02.flac copied despite conflict")
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 200<<10)
	for i := range big {
		big[i] = byte(i)
	}
	other := append([]byte(nil), big...)
	other[len(other)-1] ^= 0xff

	writeFile(t, filepath.Join(dir, "a"), string(big))
	writeFile(t, filepath.Join(dir, "b"), string(big))
	writeFile(t, filepath.Join(dir, "c"), string(other))
	writeFile(t, filepath.Join(dir, "d"), string(big[:len(big)-1]))
	writeFile(t, filepath.Join(dir, "e"), "")
	writeFile(t, filepath.Join(dir, "f"), "")

	cases := []struct {
		a, b string
		want bool
	}{
		{"a", "b", true},
		{"a", "c", false},
		{"a", "d", false},
		{"e", "f", true},
		{"e", "a", false},
	}
	for _, c := range cases {
		got, err := sameContent(filepath.Join(dir, c.a), filepath.Join(dir, c.b))
		if err != nil {
			t.Fatalf("sameContent(%s, %s): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Errorf("sameContent(%s, %s) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestCopyRollbackKeepsPreexistingFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(dst, "Album/01.flac"), "one..")

	if err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst); err == nil {
		t.Fatalf("expected error for missing 02.flac")
	}
	if !exists(filepath.Join(dst, "Album/01.flac")) {
		t.Fatalf("rollback removed a file this attempt did not create")
	}
}

func TestCopyConflictingDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(src, "Album/02.flac"), "two..")
	writeFile(t, filepath.Join(dst, "Album/01.flac"), "different size")

	err := New(discardLogger()).Copy(context.Background(), multiFileTorrent(src), dst)
	if !errors.Is(err, domain.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "Album/01.flac")); got != "different size" {
		t.Fatalf("existing file overwritten: %q", got)
	}
}

func TestCopyRejectsEscapingPath(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	tor := domain.Torrent{DownloadDir: src, Files: []domain.TorrentFile{{Path: "../evil", Length: 1, Selected: true}}}

	if err := New(discardLogger()).Copy(context.Background(), tor, dst); err == nil {
		t.Fatalf("expected error for path escaping the root")
	}
}

func TestCopyHonoursCancellation(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(src, "Album/02.flac"), "two..")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(discardLogger()).Copy(ctx, multiFileTorrent(src), dst); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if exists(filepath.Join(dst, "Album")) {
		t.Fatalf("cancelled copy created files")
	}
}

func TestCleanRelative(t *testing.T) {
	cases := map[string]string{
		"a/b.mkv":      filepath.Join("a", "b.mkv"),
		"/a/b.mkv":     filepath.Join("a", "b.mkv"),
		"a/./b/../c":   filepath.Join("a", "c"),
		"/../x":        "x",
		"single.mkv":   "single.mkv",
		"dir//file.md": filepath.Join("dir", "file.md"),
	}
	for in, want := range cases {
		got, err := cleanRelative(in)
		if err != nil {
			t.Errorf("cleanRelative(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("cleanRelative(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", ".", "..", "../x", "a/../../x"} {
		if _, err := cleanRelative(bad); err == nil {
			t.Errorf("cleanRelative(%q) should fail", bad)
		}
	}
}

func TestRelocateMovesEntries(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")
	writeFile(t, filepath.Join(src, "Album/01.flac"), "one..")
	writeFile(t, filepath.Join(src, "movie.mkv"), "m")
	writeFile(t, filepath.Join(src, ".other.mkv.partial"), "p")

	moved, err := New(discardLogger()).Relocate(context.Background(), src, archive)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if readFile(t, filepath.Join(archive, "Album/01.flac")) != "one.." || !exists(filepath.Join(archive, "movie.mkv")) {
		t.Fatalf("archive content missing")
	}
	if !exists(filepath.Join(src, ".other.mkv.partial")) {
		t.Fatalf("partial file should stay in place")
	}
}

func TestRelocatePrefixesCollisions(t *testing.T) {
	src := t.TempDir()
	archive := t.TempDir()
	writeFile(t, filepath.Join(src, "movie.mkv"), "new")
	writeFile(t, filepath.Join(archive, "movie.mkv"), "old")
	writeFile(t, filepath.Join(archive, "1_movie.mkv"), "older")

	moved, err := New(discardLogger()).Relocate(context.Background(), src, archive)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}
	if got := readFile(t, filepath.Join(archive, "2_movie.mkv")); got != "new" {
		t.Fatalf("2_movie.mkv = %q", got)
	}
	if got := readFile(t, filepath.Join(archive, "movie.mkv")); got != "old" {
		t.Fatalf("existing archive file overwritten: %q", got)
	}
}

func TestRelocateCollisionExhausted(t *testing.T) {
	src := t.TempDir()
	archive := t.TempDir()
	writeFile(t, filepath.Join(src, "movie.mkv"), "new")
	writeFile(t, filepath.Join(archive, "movie.mkv"), "0")
	for n := 1; n <= maxCollisionPrefix; n++ {
		writeFile(t, filepath.Join(archive, strconv.Itoa(n)+"_movie.mkv"), "x")
	}

	_, err := New(discardLogger()).Relocate(context.Background(), src, archive)
	if !errors.Is(err, domain.ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision, got %v", err)
	}
	if !exists(filepath.Join(src, "movie.mkv")) {
		t.Fatalf("source moved despite collision")
	}
}

func TestRelocateMissingSource(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "archive")

	moved, err := New(discardLogger()).Relocate(context.Background(), filepath.Join(t.TempDir(), "nope"), archive)
	if err != nil || moved != 0 {
		t.Fatalf("moved=%d err=%v, want 0 and nil", moved, err)
	}
	if _, err := os.Stat(archive); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("archive dir created for empty source")
	}
}
