package pkggraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

func TestApplySelectionIndependentPackages(t *testing.T) {
	a := &Package{Name: "a", Version: "1.0.0"}
	b := &Package{Name: "b", Version: "1.0.0", ReleaseGroup: "mono"}

	g, err := New(testLogger(), []*Package{a, b}, []*ReleaseGroup{{Name: "mono"}})
	require.NoError(t, err)

	g.ApplySelection(PackageSelectionCriteria{IndependentPackages: true})
	assert.True(t, g.Packages["a"].Matched)
	assert.False(t, g.Packages["b"].Matched)
}

func TestApplySelectionReleaseGroupRootsOnly(t *testing.T) {
	root := &Package{Name: "mono", Version: "1.0.0", ReleaseGroup: "mono", IsReleaseGroupRoot: true}
	child := &Package{Name: "child", Version: "1.0.0", ReleaseGroup: "mono"}

	g, err := New(testLogger(), []*Package{root, child}, []*ReleaseGroup{{Name: "mono"}})
	require.NoError(t, err)

	g.ApplySelection(PackageSelectionCriteria{ReleaseGroupRoots: []string{"mono"}})
	assert.True(t, g.Packages["mono"].Matched)
	assert.False(t, g.Packages["child"].Matched)
}

func TestApplySelectionScopeAndSkipScope(t *testing.T) {
	web := &Package{Name: "@acme/web", Version: "1.0.0"}
	api := &Package{Name: "@acme/api", Version: "1.0.0"}
	internal := &Package{Name: "@acme/internal-tools", Version: "1.0.0"}

	g, err := New(testLogger(), []*Package{web, api, internal}, nil)
	require.NoError(t, err)

	g.ApplySelection(PackageSelectionCriteria{
		IndependentPackages: true,
		Scope:     []string{"@acme/"},
		SkipScope: []string{"@acme/internal"},
	})
	assert.True(t, g.Packages["@acme/web"].Matched)
	assert.True(t, g.Packages["@acme/api"].Matched)
	assert.False(t, g.Packages["@acme/internal-tools"].Matched)
}

func TestApplySelectionChangedFiles(t *testing.T) {
	web := &Package{Name: "web", Version: "1.0.0", Dir: turbopath.AbsoluteSystemPath("/repo/packages/web")}
	api := &Package{Name: "api", Version: "1.0.0", Dir: turbopath.AbsoluteSystemPath("/repo/packages/api")}

	g, err := New(testLogger(), []*Package{web, api}, nil)
	require.NoError(t, err)

	g.ApplySelection(PackageSelectionCriteria{
		ChangedFiles: []string{"/repo/packages/web/src/index.ts"},
	})
	assert.True(t, g.Packages["web"].Matched)
	assert.False(t, g.Packages["api"].Matched)
}

func TestApplySelectionPrivacyFilter(t *testing.T) {
	pub := &Package{Name: "pub", Version: "1.0.0"}
	priv := &Package{Name: "priv", Version: "1.0.0", Private: true}

	g, err := New(testLogger(), []*Package{pub, priv}, nil)
	require.NoError(t, err)

	g.ApplySelection(PackageSelectionCriteria{IndependentPackages: true, Private: PrivacyOnlyPublic})
	assert.True(t, g.Packages["pub"].Matched)
	assert.False(t, g.Packages["priv"].Matched)
}
