package pkggraph

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func TestLevelsLeafAndDependent(t *testing.T) {
	leaf := &Package{Name: "leaf", Version: "1.0.0"}
	mid := &Package{Name: "mid", Version: "1.0.0", Dependencies: []Dependency{{Name: "leaf", Range: "^1.0.0"}}}
	top := &Package{Name: "top", Version: "1.0.0", Dependencies: []Dependency{{Name: "mid", Range: "^1.0.0"}}}

	g, err := New(testLogger(), []*Package{leaf, mid, top}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, g.Level("leaf"))
	assert.Equal(t, 1, g.Level("mid"))
	assert.Equal(t, 2, g.Level("top"))
	assert.Equal(t, []string{"leaf"}, g.DependenciesOf("mid"))
	assert.Equal(t, []string{"mid"}, g.DependentsOf("leaf"))
}

func TestWorkspaceRangeAlwaysSatisfied(t *testing.T) {
	leaf := &Package{Name: "leaf", Version: "0.0.1-does-not-matter"}
	consumer := &Package{Name: "consumer", Dependencies: []Dependency{{Name: "leaf", Range: "workspace:*"}}}

	g, err := New(testLogger(), []*Package{leaf, consumer}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"leaf"}, g.DependenciesOf("consumer"))
}

func TestUnsatisfiedRangeTreatedAsExternal(t *testing.T) {
	leaf := &Package{Name: "leaf", Version: "1.0.0"}
	consumer := &Package{Name: "consumer", Dependencies: []Dependency{{Name: "leaf", Range: "^2.0.0"}}}

	g, err := New(testLogger(), []*Package{leaf, consumer}, nil)
	require.NoError(t, err)

	assert.Empty(t, g.DependenciesOf("consumer"))
}

func TestCycleDetected(t *testing.T) {
	a := &Package{Name: "a", Dependencies: []Dependency{{Name: "b", Range: "*"}}}
	b := &Package{Name: "b", Dependencies: []Dependency{{Name: "a", Range: "*"}}}

	_, err := New(testLogger(), []*Package{a, b}, nil)
	require.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestMatchedPackagesIncludesTransitiveDependencies(t *testing.T) {
	leaf := &Package{Name: "leaf", Version: "1.0.0"}
	mid := &Package{Name: "mid", Version: "1.0.0", Dependencies: []Dependency{{Name: "leaf", Range: "^1.0.0"}}, Matched: true}
	unrelated := &Package{Name: "unrelated", Version: "1.0.0"}

	g, err := New(testLogger(), []*Package{leaf, mid, unrelated}, nil)
	require.NoError(t, err)

	matched := g.MatchedPackages()
	assert.True(t, matched.Contains("mid"))
	assert.True(t, matched.Contains("leaf"))
	assert.False(t, matched.Contains("unrelated"))
}
