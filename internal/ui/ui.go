// Package ui provides terminal color and prefixed-output helpers shared
// by the executor's per-task log streaming and the summary report.
package ui

import (
	"io"
	"os"
	"regexp"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"
)

const ansiEscapeStr = "\x1b[[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\x07)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))"

// IsTTY is true when stdout appears to be a tty.
var IsTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// IsCI is true when we appear to be running in a non-interactive context.
var IsCI = !IsTTY || os.Getenv("CI") != ""

var gray = color.New(color.Faint)
var bold = color.New(color.Bold)

var ERROR_PREFIX = color.New(color.Bold, color.FgRed, color.ReverseVideo).Sprint(" ERROR ")
var WARNING_PREFIX = color.New(color.Bold, color.FgYellow, color.ReverseVideo).Sprint(" WARNING ")

// InfoPrefix is a colored string for info level log messages.
var InfoPrefix = color.New(color.Bold, color.FgWhite, color.ReverseVideo).Sprint(" INFO ")

var ansiRegex = regexp.MustCompile(ansiEscapeStr)

// Dim prints out dimmed text.
func Dim(str string) string {
	return gray.Sprint(str)
}

// Bold prints out bold text.
func Bold(str string) string {
	return bold.Sprint(str)
}

type stripAnsiWriter struct {
	wrappedWriter io.Writer
}

func (into *stripAnsiWriter) Write(p []byte) (int, error) {
	n, err := into.wrappedWriter.Write(ansiRegex.ReplaceAll(p, []byte{}))
	if err != nil {
		return n, err
	}
	// Write must return a non-nil error if it returns n < len(p); since
	// the wrapped write succeeded, report the pre-strip length.
	return len(p), nil
}

// Default returns the default colored ui.
func Default() *cli.ColoredUi {
	return BuildColoredUi(ColorModeUndefined)
}

// BuildColoredUi constructs a cli.ColoredUi honoring the given color mode.
func BuildColoredUi(colorMode ColorMode) *cli.ColoredUi {
	colorMode = applyColorMode(colorMode)

	var outWriter, errWriter io.Writer
	if colorMode == ColorModeSuppressed {
		outWriter = &stripAnsiWriter{wrappedWriter: os.Stdout}
		errWriter = &stripAnsiWriter{wrappedWriter: os.Stderr}
	} else {
		outWriter = os.Stdout
		errWriter = os.Stderr
	}

	return &cli.ColoredUi{
		Ui: &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      outWriter,
			ErrorWriter: errWriter,
		},
		OutputColor: cli.UiColorNone,
		InfoColor:   cli.UiColorNone,
		WarnColor:   cli.UiColor{Code: int(color.FgYellow), Bold: false},
		ErrorColor:  cli.UiColorRed,
	}
}

// BuildPrefixedUi wraps base in a cli.PrefixedUi, tagging every line
// written through it with prefix (typically a color-coded "pkg#task: ").
func BuildPrefixedUi(base cli.Ui, prefix string) *cli.PrefixedUi {
	return &cli.PrefixedUi{
		AskPrefix:       prefix,
		AskSecretPrefix: prefix,
		OutputPrefix:    prefix,
		InfoPrefix:      prefix,
		ErrorPrefix:     prefix,
		WarnPrefix:      prefix,
		Ui:              base,
	}
}

// StripAnsi removes ANSI escape sequences from s, used when persisting
// captured task output somewhere that won't interpret them (e.g. the
// failure tail in a summary).
func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
