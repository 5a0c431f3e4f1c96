package colorcache

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrefixWithColorIsStablePerKey(t *testing.T) {
	c := New()
	first := c.PrefixWithColor("web", "build")
	second := c.PrefixWithColor("web", "build")
	assert.Equal(t, first, second)
}

func TestPrefixWithColorDiffersAcrossKeys(t *testing.T) {
	// Without a terminal fatih/color disables colors and every palette
	// entry renders the same plain text, so force colors on here.
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	c := New()
	web := c.colorForKey("web")
	docs := c.colorForKey("docs")
	assert.NotEqual(t, web("x"), docs("x"))
}
