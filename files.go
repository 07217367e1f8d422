package ltesim

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// CheckOutputFiles checks the file system to ensure that every named output
// file can be written: its directory must exist.  Empty names are skipped.
// All failures are reported together, so a run can be refused before it starts.
func CheckOutputFiles(names []string) error {
	errs := []error{}
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if directory == "" {
			continue
		}
		info, err := os.Stat(directory)
		if err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", name, err))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("output %s: %s not a directory", name, directory))
		}
	}
	return errors.Join(errs...)
}

// UseYAML reports whether a file name calls for yaml rather than json
func UseYAML(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
