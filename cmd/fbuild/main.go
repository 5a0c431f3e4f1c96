package main

import (
	"os"

	"github.com/fluidbuild/fbx/internal/cmd"
)

// version is overridden at release build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], version))
}
