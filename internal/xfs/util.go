package xfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ExpandTilde replaces a leading tilde (~) with the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}

// TempPrefix starts the name of every file created by SpoolTemp.
const TempPrefix = "whisper-"

// TempFile is a transient file owned by a single request.
type TempFile struct {
	path string
}

// SpoolTemp copies r into a new uniquely named file in dir (os.TempDir when empty)
// whose name ends in suffix. The caller must call Remove once done, typically via defer.
// On failure no file is left behind.
func SpoolTemp(dir, suffix string, r io.Reader) (*TempFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, TempPrefix+uuid.NewString()+suffix)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tf := &TempFile{path: path}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = tf.Remove()
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = tf.Remove()
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return tf, nil
}

// Path returns the location of the file on disk.
func (t *TempFile) Path() string {
	return t.path
}

// Remove deletes the file. Removing an already-deleted file is not an error.
func (t *TempFile) Remove() error {
	if t == nil || t.path == "" {
		return nil
	}

	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
