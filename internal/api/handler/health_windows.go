//go:build windows

package handler

import "golang.org/x/sys/windows"

// diskUsage returns usage of the volume holding path. Zero values mean
// the path could not be inspected.
func diskUsage(path string) DiskStats {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskStats{Path: path}
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return DiskStats{Path: path}
	}
	return newDiskStats(path, int64(totalBytes), int64(freeBytes))
}
