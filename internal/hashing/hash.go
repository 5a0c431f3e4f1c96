package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

// FileHash is one (path, content-hash) pair, sorted by path in a
// donefile's `files` list (spec §6).
type FileHash struct {
	Path turbopath.AnchoredUnixPath
	Hash string
}

// Memo is the in-memory file-hash cache shared across a single build
// (spec §4.5 step 2, §5 "shared resources"): the same path is hashed at
// most once per build no matter how many leaf tasks declare it as an
// input, via a per-path single-flight rather than a global lock around
// the whole map.
type Memo struct {
	group singleflight.Group

	mu     sync.RWMutex
	hashes map[string]string
}

// NewMemo constructs an empty file-hash memo. One Memo should be shared
// by every incremental check in a build and discarded at the
// incremental-check-to-execution transition (spec §3 "Lifecycles").
func NewMemo() *Memo {
	return &Memo{hashes: map[string]string{}}
}

// HashFile returns the SHA-256 content hash of the file at path,
// reading the file at most once regardless of how many concurrent
// callers request the same path.
func (m *Memo) HashFile(path turbopath.AbsoluteSystemPath) (string, error) {
	key := path.ToString()

	m.mu.RLock()
	if h, ok := m.hashes[key]; ok {
		m.mu.RUnlock()
		return h, nil
	}
	m.mu.RUnlock()

	result, err, _ := m.group.Do(key, func() (interface{}, error) {
		data, readErr := path.ReadFile()
		if readErr != nil {
			return "", errors.Wrapf(readErr, "hashing %s", path)
		}
		sum := sha256.Sum256(data)
		hexSum := hex.EncodeToString(sum[:])

		m.mu.Lock()
		m.hashes[key] = hexSum
		m.mu.Unlock()
		return hexSum, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// HashFiles hashes every path in paths (anchored to root) and returns
// the sorted-by-path (path, hash) list used both for the environment
// fingerprint input and the donefile's `files` field (spec §4.5 step 1-2).
func (m *Memo) HashFiles(root turbopath.AbsoluteSystemPath, paths turbopath.AnchoredUnixPathArray) ([]FileHash, error) {
	out := make([]FileHash, 0, len(paths))
	for _, p := range paths {
		abs := root.Join(p.ToString())
		h, err := m.HashFile(abs)
		if err != nil {
			return nil, err
		}
		out = append(out, FileHash{Path: p, Hash: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Fingerprint computes the environment fingerprint hash for a leaf task
// (spec §4.5 step 3): a stable, sorted concatenation of the task's
// command string, package name, task name, and any task-kind-specific
// extra state, then SHA-256'd down to a single comparable string. extra
// is already caller-normalized (e.g. sorted env-var pairs, a compiler's
// normalized options) -- this function only owns the concatenation and
// hashing, not the domain-specific normalization of any one extra field.
func Fingerprint(command string, packageName string, taskName string, extra []string) string {
	fields := append([]string{command, packageName, taskName}, extra...)
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	joined := strings.Join(sorted, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
