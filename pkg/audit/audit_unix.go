//go:build !windows

package audit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkDiskSpace refuses to append when the log directory is nearly full.
func (l *Logger) checkDiskSpace() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(l.path, &stat); err != nil {
		// Unknown free space does not block auditing.
		return nil
	}

	available := uint64(stat.Bavail) * uint64(stat.Bsize)
	if available < MinAuditDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinAuditDiskSpace)
	}
	return nil
}
