package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindNewest walks dir and returns the most recently modified regular file,
// skipping files whose name ends in any of the given suffixes. Returns an
// empty string when the directory holds no candidates.
func FindNewest(dir string, skipSuffixes ...string) (string, error) {
	var (
		newest     string
		newestTime time.Time
	)

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		for _, suffix := range skipSuffixes {
			if strings.HasSuffix(info.Name(), suffix) {
				return nil
			}
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = path
			newestTime = info.ModTime()
		}
		return nil
	})

	return newest, err
}

// FindRecentAfter returns all regular files under dir modified after startTime.
func FindRecentAfter(dir string, startTime time.Time) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	return recentFiles, err
}
