package fsmove

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"seedwarden/internal/domain"
)

const maxCollisionPrefix = 9

// Relocate moves every top-level entry of srcDir into archiveDir. A taken
// name is retried with a numeric prefix 1_ to 9_; when all are taken the
// move stops with domain.ErrNameCollision.
func (m *Mover) Relocate(ctx context.Context, srcDir, archiveDir string) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(archiveDir, dirMode); err != nil {
		return 0, err
	}

	moved := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		name := e.Name()
		if isPartial(name) {
			continue
		}

		dst, err := freeName(archiveDir, name)
		if err != nil {
			return moved, err
		}
		if err := os.Rename(filepath.Join(srcDir, name), dst); err != nil {
			return moved, err
		}
		moved++
		m.Logger.Info("fsmove: archived copy", slog.String("name", name), slog.String("dest", dst))
	}
	return moved, nil
}

func freeName(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	for n := 0; n <= maxCollisionPrefix; n++ {
		if n > 0 {
			candidate = filepath.Join(dir, strconv.Itoa(n)+"_"+name)
		}
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s in %s", domain.ErrNameCollision, name, dir)
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, partialSuffix)
}
