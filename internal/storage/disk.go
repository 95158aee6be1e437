package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsageBytes sums the on-disk size of the given paths for system-info
// reporting. A path may be a file or a directory (summed recursively); empty
// or missing paths contribute nothing.
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
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
	}
	return total, nil
}
