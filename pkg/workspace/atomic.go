package workspace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tempFilePrefix is the prefix of in-flight atomic write files.
const tempFilePrefix = ".mahina-tmp-"

// writeAtomic streams src into a temp file next to filename and renames it
// into place once synced. The tool chain reads these files by relative
// include, so a reader sees either the old content or the complete new one.
func writeAtomic(filename string, perm os.FileMode, src io.Reader) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(filename), err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(filename), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filepath.Base(filename), err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(filename), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(filename), err)
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename into %s: %w", filename, err)
	}
	return nil
}

// writeFileAtomic writes generated workspace content.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	return writeAtomic(filename, perm, bytes.NewReader(data))
}

// copyFile seeds dst from a catalog asset, keeping the asset's mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	return writeAtomic(dst, info.Mode().Perm(), in)
}
