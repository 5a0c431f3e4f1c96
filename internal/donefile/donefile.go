// Package donefile implements the per-leaf-task persisted record the
// incremental check compares against (spec §3 "Donefile", §6
// "Donefile on-disk format"). It is a deliberately narrower sibling of
// the teacher's internal/runcache: no tarball, no remote cache, just
// the JSON record spec.md calls for, adapted from the same
// temp-file-then-rename durability pattern the teacher's cache writer
// uses.
package donefile

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/hashing"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

// Schema is the current donefile schema version. A reader encountering
// a different value treats the record as stale (spec §4.5 step 5).
const Schema = 1

// storeDir is the directory, relative to a package's directory, that
// holds that package's donefiles (spec §6).
const storeDir = "node_modules/.fluid-build-task-done"

// Record is the on-disk shape of a donefile (spec §6): the task's
// command string, its environment fingerprint, and the ordered
// (path, hash) list of its inputs at the time of the last successful
// run. Unknown fields are ignored by readers (forward compatibility).
type Record struct {
	Schema  int              `json:"schema"`
	Command string           `json:"command"`
	EnvHash string           `json:"envHash"`
	Files   []hashing.FileHash `json:"files"`
}

// Store reads and writes donefiles for a single package directory.
type Store struct {
	packageDir turbopath.AbsoluteSystemPath
}

// NewStore returns a Store rooted at the given package directory.
func NewStore(packageDir turbopath.AbsoluteSystemPath) *Store {
	return &Store{packageDir: packageDir}
}

// pathFor returns the on-disk path of the donefile for the given stable
// task identifier, forward-slash-normalized and safe as a filename
// (spec §6: "<package>/node_modules/.fluid-build-task-done/<task-identifier>.json").
func (s *Store) pathFor(taskIdentifier string) turbopath.AbsoluteSystemPath {
	safeName := filepath.Base(taskIdentifier) + ".json"
	return s.packageDir.Join(storeDir, safeName)
}

// Read loads the donefile for taskIdentifier. A non-existent donefile
// is reported via os.IsNotExist-compatible error wrapping; callers
// should treat any read/parse error as spec §4.5 step 4's "absent"
// case (cacheMiss), per the IncrementalCheckError classification in
// spec §7.
func (s *Store) Read(taskIdentifier string) (*Record, error) {
	path := s.pathFor(taskIdentifier)
	data, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "parsing donefile %s", path)
	}
	return &rec, nil
}

// lockPath returns the path of the lockfile guarding this store's
// directory against concurrent writers -- two tasks of the same
// package can finish and persist their donefiles at nearly the same
// moment, and the write-to-temp-then-rename dance alone doesn't
// serialize the directory's mkdir.
func (s *Store) lockPath() turbopath.AbsoluteSystemPath {
	return s.packageDir.Join(storeDir, ".lock")
}

// Write persists rec for taskIdentifier, atomically (spec §4.5: "write
// the donefile atomically (write-to-temp-then-rename)"). Donefiles are
// only ever written after a task's successful execution; the core
// never deletes them (cleanup is delegated, spec §4.5).
func (s *Store) Write(taskIdentifier string, rec *Record) error {
	rec.Schema = Schema
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding donefile")
	}

	path := s.pathFor(taskIdentifier)
	if err := path.Dir().EnsureDir(); err != nil {
		return errors.Wrapf(err, "creating donefile directory for %s", path)
	}

	lock, err := lockfile.New(s.lockPath().ToString())
	if err != nil {
		return errors.Wrap(err, "constructing donefile store lock")
	}
	if err := acquireWithRetry(lock, 10, 25*time.Millisecond); err != nil {
		return errors.Wrapf(err, "locking donefile store at %s", s.packageDir)
	}
	defer lock.Unlock()

	return path.WriteFileAtomic(data, 0644)
}

func acquireWithRetry(lock lockfile.Lockfile, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = lock.TryLock(); err == nil {
			return nil
		}
		time.Sleep(backoff)
	}
	return err
}

// Matches reports whether rec (the persisted donefile) still reflects
// the given live command/envHash/files triple (spec §4.5 step 5): equal
// schema, equal environment hash, and an identical ordered (path, hash)
// list. Any mismatch -- including a schema skew -- is a cacheMiss.
func (rec *Record) Matches(command string, envHash string, files []hashing.FileHash) bool {
	if rec.Schema != Schema {
		return false
	}
	if rec.Command != command || rec.EnvHash != envHash {
		return false
	}
	if len(rec.Files) != len(files) {
		return false
	}
	for i := range files {
		if rec.Files[i].Path != files[i].Path || rec.Files[i].Hash != files[i].Hash {
			return false
		}
	}
	return true
}
