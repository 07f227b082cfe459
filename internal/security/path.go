package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects paths that attempt directory traversal or embed
// NUL bytes. Absolute paths are allowed: config and database locations are
// operator-supplied and routinely absolute in deployments.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	cleanPath := filepath.Clean(path)
	for _, segment := range strings.Split(cleanPath, string(filepath.Separator)) {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ValidateFilePathStrict additionally refuses absolute paths. Used for
// values that must stay inside the working directory, such as migration
// script names.
func ValidateFilePathStrict(path string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed in production: %s", path)
	}
	return nil
}

// ValidateFilePathWithBase ensures path resolves inside baseDir. Relative
// paths are joined to the base first; absolute paths must already sit under
// it.
func ValidateFilePathWithBase(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	cleanBase := filepath.Clean(baseDir)
	var cleanPath string
	if filepath.IsAbs(path) {
		cleanPath = filepath.Clean(path)
	} else {
		cleanPath = filepath.Clean(filepath.Join(baseDir, path))
	}

	if cleanPath != cleanBase && !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
