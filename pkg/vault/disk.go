package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // Warn when disk is 90% full
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage used
}

// CheckDiskSpace returns disk space information for the data directory,
// or its nearest existing parent when it has not been created yet.
func (v *Vault) CheckDiskSpace() (*DiskSpaceInfo, error) {
	return diskSpace(existingAncestor(v.cfg.DataDir))
}

// HasSufficientDiskSpace checks if there's enough disk space for operations
func (v *Vault) HasSufficientDiskSpace() (bool, error) {
	info, err := v.CheckDiskSpace()
	if err != nil {
		return false, err
	}
	return info.Available >= MinDiskSpaceBytes, nil
}

// checkDiskSpaceForWrite verifies sufficient disk space before write operations
func (v *Vault) checkDiskSpaceForWrite(dataSize int) error {
	info, err := v.CheckDiskSpace()
	if err != nil {
		v.log.Warn().Err(err).Msg("failed to check disk space")
		return nil
	}

	// Need at least MinDiskSpaceBytes or 2x the data size, whichever is larger
	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}

	if info.UsedPct >= DiskWarningPercent {
		v.log.Warn().Int("used_pct", info.UsedPct).Msg("disk is nearly full, consider freeing space")
	}
	return nil
}

func existingAncestor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs
		}
		abs = parent
	}
}
