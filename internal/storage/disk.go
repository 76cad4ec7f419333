package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskUsageBytes sums the size of the index, catalog and cache paths. Directories are
// walked; missing paths count as zero, and a path nested inside another listed path is
// only counted once.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range distinctRoots(paths) {
		n, err := pathSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	var size int64
	err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return size, err
}

func distinctRoots(paths []string) []string {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			cleaned = append(cleaned, filepath.Clean(p))
		}
	}
	var roots []string
	for i, p := range cleaned {
		nested := false
		for j, q := range cleaned {
			if i == j {
				continue
			}
			if (p == q && j < i) || strings.HasPrefix(p, q+string(os.PathSeparator)) {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, p)
		}
	}
	return roots
}
