package fsmove

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"seedwarden/internal/domain"
	"seedwarden/internal/domain/ports"
)

const (
	fileMode      = 0o640
	dirMode       = 0o750
	partialSuffix = ".partial"
)

// Mover copies finished torrents out of the download directory and later
// relocates the copies into an archive.
type Mover struct {
	Logger *slog.Logger
}

var _ ports.FileMover = (*Mover)(nil)

func New(logger *slog.Logger) *Mover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mover{Logger: logger}
}

// Copy copies every selected file of t from its download directory to the
// same relative path under destRoot. Files appear under their final name only
// once fully written. On error every file and directory this call created is
// removed again.
func (m *Mover) Copy(ctx context.Context, t domain.Torrent, destRoot string) error {
	// created holds files and directories in creation order.
	var created []string
	files := 0
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			if err := os.Remove(created[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.Logger.Warn("fsmove: rollback failed", slog.String("path", created[i]), slog.String("error", err.Error()))
			}
		}
	}

	for _, f := range t.Files {
		if !f.Selected {
			continue
		}
		if err := ctx.Err(); err != nil {
			rollback()
			return err
		}

		rel, err := cleanRelative(f.Path)
		if err != nil {
			rollback()
			return err
		}
		src := filepath.Join(t.DownloadDir, rel)
		dst := filepath.Join(destRoot, rel)

		wrote, dirs, err := copyFile(src, dst)
		created = append(created, dirs...)
		if err != nil {
			rollback()
			return err
		}
		if wrote {
			created = append(created, dst)
			files++
		}
	}

	m.Logger.Debug("fsmove: copied torrent",
		slog.String("name", t.Name),
		slog.String("dest", destRoot),
		slog.Int("files", files),
	)
	return nil
}

// cleanRelative turns a daemon supplied file path into a path relative to the
// destination root. Paths escaping the root are rejected.
func cleanRelative(p string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(p))
	rel = strings.TrimLeft(rel, string(os.PathSeparator))
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path %q", p)
	}
	return rel, nil
}

// copyFile reports whether it created dst and which parent directories it
// made on the way. An existing regular file with the same content as src is
// taken as a copy finished before a crash.
func copyFile(src, dst string) (bool, []string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return false, nil, err
	}
	if !info.Mode().IsRegular() {
		return false, nil, fmt.Errorf("source %s is not a regular file", src)
	}

	if existing, err := os.Lstat(dst); err == nil {
		if existing.Mode().IsRegular() && existing.Size() == info.Size() {
			same, err := sameContent(src, dst)
			if err != nil {
				return false, nil, err
			}
			if same {
				return false, nil, nil
			}
		}
		return false, nil, fmt.Errorf("%w: %s", domain.ErrDestinationExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, nil, err
	}

	dirs, err := mkdirAll(filepath.Dir(dst))
	if err != nil {
		return false, dirs, err
	}

	partial := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+partialSuffix)
	if err := writePartial(src, partial); err != nil {
		_ = os.Remove(partial)
		return false, dirs, err
	}
	if err := publish(partial, dst); err != nil {
		_ = os.Remove(partial)
		return false, dirs, err
	}
	return true, dirs, nil
}

// mkdirAll creates dir and any missing parents, returning the directories it
// created from the outermost inwards.
func mkdirAll(dir string) ([]string, error) {
	var missing []string
	for p := dir; ; {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("%s is not a directory", p)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		missing = append(missing, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	var created []string
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], dirMode); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return created, err
		}
		created = append(created, missing[i])
	}
	return created, nil
}

func sameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, 64<<10)
	bufB := make([]byte, 64<<10)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA == doneB, nil
		}
	}
}

func writePartial(src, partial string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// publish moves a finished partial file to its final name without ever
// replacing an existing file.
func publish(partial, dst string) error {
	linkErr := os.Link(partial, dst)
	if linkErr == nil {
		return os.Remove(partial)
	}
	if errors.Is(linkErr, fs.ErrExist) {
		return fmt.Errorf("%w: %s", domain.ErrDestinationExists, dst)
	}
	// No hard link support: fall back to rename after checking the target.
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrDestinationExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(partial, dst)
}
