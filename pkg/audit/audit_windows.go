//go:build windows

package audit

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// checkDiskSpace refuses to append when the log volume is nearly full.
func (l *Logger) checkDiskSpace() error {
	dir, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return nil
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return nil
	}
	if available < MinAuditDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinAuditDiskSpace)
	}
	return nil
}
