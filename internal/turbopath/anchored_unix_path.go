package turbopath

import "path"

// AnchoredUnixPath is a path relative to some anchor (the repository
// root), always using forward-slash separators regardless of host OS.
// This is the key space used by the donefile format and the
// content-hash memo: both must be stable across platforms.
type AnchoredUnixPath string

// ToString returns the plain string form of this path.
func (p AnchoredUnixPath) ToString() string {
	return string(p)
}

// Join appends forward-slash path segments.
func (p AnchoredUnixPath) Join(segments ...string) AnchoredUnixPath {
	return AnchoredUnixPath(path.Join(append([]string{p.ToString()}, segments...)...))
}
