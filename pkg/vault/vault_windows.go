//go:build windows

package vault

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func diskSpace(path string) (*DiskSpaceInfo, error) {
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to convert path: %w", err)
	}

	err = windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to get disk stats: %w", err)
	}

	usedPct := 0
	if totalBytes > 0 {
		usedPct = int(100 * (totalBytes - totalFreeBytes) / totalBytes)
	}

	return &DiskSpaceInfo{
		Total:     totalBytes,
		Free:      totalFreeBytes,
		Available: freeBytesAvailable,
		UsedPct:   usedPct,
	}, nil
}
