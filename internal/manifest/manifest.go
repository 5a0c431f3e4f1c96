// Package manifest parses a package's manifest file (the NodeJS
// package.json-equivalent) into the plain data pkggraph.Package needs.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

// Manifest is the on-disk shape of a package manifest. Only the fields
// the build engine cares about are given struct tags; everything else
// round-trips through RawJSON so that a write-back (not currently
// exercised, but kept for parity with the teacher's own manifest type)
// wouldn't clobber fields this tool doesn't understand.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Private              bool              `json:"private"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	Workspaces           Workspaces        `json:"workspaces"`

	// Tasks is this package's own task-definition table (spec §4.1:
	// "a package's manifest (which may carry its own `tasks` table)"),
	// overlaid on top of the repo-wide default table during resolution.
	Tasks map[string]taskconfig.RawTaskDefinition `json:"tasks"`

	RawJSON map[string]interface{} `json:"-"`
}

// Workspaces accepts both the bare-array form ("workspaces": ["a", "b"])
// and the object form ("workspaces": {"packages": ["a", "b"]}) that
// different package managers use for the release-group glob list.
type Workspaces []string

func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && len(obj.Packages) > 0 {
		*w = obj.Packages
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*w = arr
	return nil
}

// Read loads and parses the manifest file at path.
func Read(path turbopath.AbsoluteSystemPath) (*Manifest, error) {
	raw, err := path.ReadFile()
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest at %s", path)
	}
	return Parse(raw)
}

// Parse decodes a manifest's raw bytes. Comments are tolerated (jsonc)
// since some repositories hand-maintain these files.
func Parse(data []byte) (*Manifest, error) {
	var rawFields map[string]interface{}
	if err := jsonc.Unmarshal(data, &rawFields); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}

	m := &Manifest{}
	if err := jsonc.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	m.RawJSON = rawFields
	if m.Name == "" {
		return nil, fmt.Errorf("manifest is missing a \"name\" field")
	}
	return m, nil
}

// ToPackage converts a parsed manifest into the graph-facing Package
// type, flattening the four dependency fields into one combined list as
// the task-graph layer never needs to distinguish dev/peer/optional
// dependencies from direct ones.
func (m *Manifest) ToPackage(dir turbopath.AbsoluteSystemPath) *pkggraph.Package {
	deps := make([]pkggraph.Dependency, 0, len(m.Dependencies)+len(m.DevDependencies)+len(m.OptionalDependencies)+len(m.PeerDependencies))
	seen := make(map[string]bool)
	add := func(set map[string]string) {
		for name, rng := range set {
			if seen[name] {
				continue
			}
			seen[name] = true
			deps = append(deps, pkggraph.Dependency{Name: name, Range: rng})
		}
	}
	add(m.Dependencies)
	add(m.DevDependencies)
	add(m.OptionalDependencies)
	add(m.PeerDependencies)

	return &pkggraph.Package{
		Name:         m.Name,
		Version:      m.Version,
		Dir:          dir,
		Scripts:      m.Scripts,
		Dependencies: deps,
		Private:      m.Private,
	}
}

// RegisterTaskOverlays adds this manifest's own "tasks" table to table as
// a package overlay for pkgName, entirely replacing the global
// definition for any task name it mentions (spec §4.1 step 2).
func (m *Manifest) RegisterTaskOverlays(table *taskconfig.Table, pkgName string) {
	for name, raw := range m.Tasks {
		raw := raw
		table.AddPackageOverlay(pkgName, name, raw.ToTaskDefinition())
	}
}
