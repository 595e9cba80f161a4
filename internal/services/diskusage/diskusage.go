package diskusage

import (
	"fmt"
	"strings"

	"seedwarden/internal/domain/ports"
)

const (
	SourceDF     = "df"
	SourceStatfs = "statfs"
)

// New returns the usage reader configured by source. An empty source means df.
func New(source string) (ports.DiskUsage, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", SourceDF:
		return DF{}, nil
	case SourceStatfs:
		return Statfs{}, nil
	default:
		return nil, fmt.Errorf("unknown disk usage source %q", source)
	}
}

// usedPercent rounds up like df does, counting only space available to
// unprivileged users as free.
func usedPercent(used, avail uint64) int {
	total := used + avail
	if total == 0 {
		return 0
	}
	pct := (used*100 + total - 1) / total
	return int(pct)
}
