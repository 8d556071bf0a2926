package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindConfig searches for FileName starting from startDir and walking up the
// directory tree.
//
// It returns the absolute path of the first savex.yaml found, or an error if
// no parent directory holds one.
//
// Example:
//
//	path, err := FindConfig(".")
//	if err != nil {
//	    // no config file, run on defaults and environment
//	}
func FindConfig(startDir string) (string, error) {
	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absPath
	for {
		candidate := filepath.Join(currentDir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", fmt.Errorf("%s not found in any parent directory", FileName)
		}
		currentDir = parentDir
	}
}
