//go:build !windows

package vault

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func diskSpace(path string) (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("vault: failed to get disk stats: %w", err)
	}

	total := uint64(stat.Blocks) * uint64(stat.Bsize)
	free := uint64(stat.Bfree) * uint64(stat.Bsize)
	available := uint64(stat.Bavail) * uint64(stat.Bsize)

	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}

	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPct,
	}, nil
}
