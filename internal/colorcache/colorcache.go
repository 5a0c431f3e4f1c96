// Package colorcache assigns each package a stable terminal color for the
// lifetime of a build, so a task's prefixed output can be visually traced
// back to its owning package across an interleaved log stream.
package colorcache

import (
	"sync"

	"github.com/fatih/color"
)

type colorFn = func(format string, a ...interface{}) string

func terminalPackageColors() []colorFn {
	return []colorFn{color.CyanString, color.MagentaString, color.GreenString, color.YellowString, color.BlueString}
}

// ColorCache hands out one of a small rotating palette per key,
// remembering the assignment so repeated lookups for the same package
// stay stable.
type ColorCache struct {
	mu         sync.Mutex
	index      int
	termColors []colorFn
	cache      map[string]colorFn
}

// New creates an instance of ColorCache with helpers for adding colors to task outputs.
func New() *ColorCache {
	return &ColorCache{
		termColors: terminalPackageColors(),
		cache:      make(map[string]colorFn),
	}
}

func (c *ColorCache) colorForKey(key string) colorFn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.cache[key]; ok {
		return fn
	}
	fn := c.termColors[c.index%len(c.termColors)]
	c.index++
	c.cache[key] = fn
	return fn
}

// PrefixWithColor returns a string consisting of the provided prefix in a
// consistent color based on the cache key (typically a package name).
func (c *ColorCache) PrefixWithColor(cacheKey string, prefix string) string {
	return c.colorForKey(cacheKey)("%s: ", prefix)
}
