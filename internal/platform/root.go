package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFile is the conventional configuration file name.
const ConfigFile = "mahina.yaml"

// FindRoot looks upwards from startDir for a project root, marked by a
// mahina.yaml file or a data directory holding the calendar template.
// It returns the absolute path of the first match.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, ConfigFile) || hasFile(dir, filepath.Join("data", "calendar.dat")) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("root not found")
}

// ResolveConfigPath returns the explicit path when given; otherwise the
// mahina.yaml of the enclosing project root, or "" when there is none.
func ResolveConfigPath(explicit, startDir string) string {
	if explicit != "" {
		return explicit
	}
	root, err := FindRoot(startDir)
	if err != nil {
		return ""
	}
	if p := filepath.Join(root, ConfigFile); hasFile(root, ConfigFile) {
		return p
	}
	return ""
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
