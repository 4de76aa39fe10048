package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the suffixes SQLite appends for its write-ahead log and shared memory files.
var sqliteSidecars = []string{"-wal", "-shm"}

// DatabaseFiles returns dbPath followed by the WAL and shared-memory files SQLite keeps next to it.
func DatabaseFiles(dbPath string) []string {
	if dbPath == "" {
		return nil
	}
	files := []string{dbPath}
	for _, suffix := range sqliteSidecars {
		files = append(files, dbPath+suffix)
	}
	return files
}

// DiskUsageBytes sums the sizes of paths. Directories are walked; empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}
