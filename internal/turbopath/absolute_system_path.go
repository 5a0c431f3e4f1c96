package turbopath

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AbsoluteSystemPath is an absolute path using OS-native separators.
type AbsoluteSystemPath string

// ToString returns the plain string form of this path.
func (p AbsoluteSystemPath) ToString() string {
	return string(p)
}

// Join appends path segments, returning a new AbsoluteSystemPath.
func (p AbsoluteSystemPath) Join(segments ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(append([]string{p.ToString()}, segments...)...))
}

// RelativeUnixPath calculates the forward-slash-normalized path of target
// relative to p, suitable as an AnchoredUnixPath key.
func (p AbsoluteSystemPath) RelativeUnixPath(target AbsoluteSystemPath) (AnchoredUnixPath, error) {
	rel, err := filepath.Rel(p.ToString(), target.ToString())
	if err != nil {
		return "", err
	}
	return AnchoredUnixPath(filepath.ToSlash(rel)), nil
}

// EnsureDir creates the directory (and any parents) for this path.
func (p AbsoluteSystemPath) EnsureDir() error {
	return os.MkdirAll(p.ToString(), 0775)
}

// FileExists reports whether this path exists on disk.
func (p AbsoluteSystemPath) FileExists() bool {
	_, err := os.Stat(p.ToString())
	return err == nil
}

// ReadFile reads the full contents of the file at this path.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return os.ReadFile(p.ToString())
}

// WriteFile writes data to the file at this path, creating it if
// necessary.
func (p AbsoluteSystemPath) WriteFile(data []byte, perm os.FileMode) error {
	return os.WriteFile(p.ToString(), data, perm)
}

// WriteFileAtomic writes data to a temp file alongside this path, then
// renames it into place, so a reader never observes a partially-written
// file (spec §4.5 "write the donefile atomically").
func (p AbsoluteSystemPath) WriteFileAtomic(data []byte, perm os.FileMode) error {
	if err := p.Dir().EnsureDir(); err != nil {
		return err
	}
	tmp := p.Join("..", p.Base()+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp.ToString(), data, perm); err != nil {
		return err
	}
	return os.Rename(tmp.ToString(), p.ToString())
}

// Base returns the final path element.
func (p AbsoluteSystemPath) Base() string {
	return filepath.Base(p.ToString())
}

// Dir returns the parent directory of this path.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(p.ToString()))
}
