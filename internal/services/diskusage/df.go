package diskusage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"seedwarden/internal/domain"
)

// DF reads filesystem usage from the POSIX output of df(1).
type DF struct {
	// Binary defaults to "df" resolved through PATH.
	Binary string
}

func (d DF) Usage(ctx context.Context, dir string) (domain.DiskUsage, error) {
	bin := d.Binary
	if bin == "" {
		bin = "df"
	}
	// The trailing separator makes df follow a symlinked directory to the
	// filesystem it points at.
	target := strings.TrimRight(dir, string(os.PathSeparator)) + string(os.PathSeparator)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-P", target)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return domain.DiskUsage{}, fmt.Errorf("df %s: %w: %s", target, err, strings.TrimSpace(stderr.String()))
	}
	return ParseDFOutput(out)
}

// ParseDFOutput reads the first data line of `df -P`. The device may contain
// spaces, so columns are located relative to the capacity column.
func ParseDFOutput(out []byte) (domain.DiskUsage, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return domain.DiskUsage{}, fmt.Errorf("df: unexpected output %q", string(out))
	}
	fields := strings.Fields(lines[1])

	capIdx := -1
	for i, f := range fields {
		if strings.HasSuffix(f, "%") {
			capIdx = i
			break
		}
	}
	// device, total, used and available precede the capacity column.
	if capIdx < 4 {
		return domain.DiskUsage{}, fmt.Errorf("df: no capacity column in %q", lines[1])
	}

	used, err := strconv.Atoi(strings.TrimSuffix(fields[capIdx], "%"))
	if err != nil || used < 0 || used > 100 {
		return domain.DiskUsage{}, fmt.Errorf("df: bad capacity %q", fields[capIdx])
	}
	return domain.DiskUsage{
		Device:      strings.Join(fields[:capIdx-3], " "),
		UsedPercent: used,
	}, nil
}
