//go:build !windows

package handler

import "syscall"

// diskUsage returns usage of the filesystem holding path. Zero values mean
// the path could not be inspected.
func diskUsage(path string) DiskStats {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return DiskStats{Path: path}
	}

	total := int64(fs.Blocks) * int64(fs.Bsize)
	free := int64(fs.Bavail) * int64(fs.Bsize)
	return newDiskStats(path, total, free)
}
