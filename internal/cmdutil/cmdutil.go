// Package cmdutil holds functionality to run fbuild via cobra. That
// includes flag parsing and configuration of components common to all
// subcommands.
package cmdutil

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/pflag"

	"github.com/fluidbuild/fbx/internal/config"
	"github.com/fluidbuild/fbx/internal/scm"
	"github.com/fluidbuild/fbx/internal/turbopath"
	"github.com/fluidbuild/fbx/internal/ui"
)

// Helper is a struct used to hold configuration values passed via flag,
// env vars, config files, etc. It is not intended for direct use by
// fbuild commands, it drives the creation of CmdBase, which is then used
// by the commands themselves.
type Helper struct {
	// Version is the version of fbuild that is currently executing.
	Version string

	// for UI
	forceColor bool
	noColor    bool

	rawRepoRoot string
	configFile  string

	cleanupsMu sync.Mutex
	cleanups   []io.Closer
}

// RegisterCleanup saves a function to be run after fbuild execution,
// even if the command that runs returns an error.
func (h *Helper) RegisterCleanup(cleanup io.Closer) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	h.cleanups = append(h.cleanups, cleanup)
}

// Cleanup runs the registered cleanup handlers. It requires the flags to
// the root command so that it can construct a UI if necessary.
func (h *Helper) Cleanup(flags *pflag.FlagSet) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	var terminal cli.Ui
	for _, cleanup := range h.cleanups {
		if err := cleanup.Close(); err != nil {
			if terminal == nil {
				terminal = h.getUI(flags)
			}
			terminal.Warn(fmt.Sprintf("failed cleanup: %v", err))
		}
	}
}

func (h *Helper) getUI(flags *pflag.FlagSet) cli.Ui {
	colorMode := ui.GetColorModeFromEnv()
	if flags.Changed("no-color") && h.noColor {
		colorMode = ui.ColorModeSuppressed
	}
	if flags.Changed("color") && h.forceColor {
		colorMode = ui.ColorModeForced
	}
	return ui.BuildColoredUi(colorMode)
}

// AddFlags adds common flags for all fbuild commands to the given
// flagset and binds them to this instance of Helper.
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&h.forceColor, "color", false, "Force color usage in the terminal")
	flags.BoolVar(&h.noColor, "no-color", false, "Suppress color usage in the terminal")
	flags.StringVar(&h.rawRepoRoot, "cwd", "", "The directory in which to run fbuild")
	flags.StringVar(&h.configFile, "config", "", "Path to the fbuild config file, relative to --cwd")
}

// NewHelper returns a new helper instance to hold configuration values
// for the root fbuild command.
func NewHelper(version string) *Helper {
	return &Helper{Version: version}
}

// GetCmdBase returns a CmdBase instance configured with values from this
// helper.
func (h *Helper) GetCmdBase(flags *pflag.FlagSet) (*CmdBase, error) {
	// terminal is for color/no-color output
	terminal := h.getUI(flags)

	cwd, err := turbopath.GetCwd()
	if err != nil {
		return nil, err
	}
	repoRoot := turbopath.ResolveUnknownPath(cwd, h.rawRepoRoot)
	repoRoot, err = repoRoot.EvalSymlinks()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(repoRoot, h.configFile, flags)
	if err != nil {
		return nil, err
	}

	repoSCM, err := scm.FromInRepo(repoRoot)
	if err != nil && err != scm.ErrFallback {
		return nil, err
	}

	return &CmdBase{
		UI:       terminal,
		Logger:   cfg.Logger,
		RepoRoot: repoRoot,
		Config:   cfg,
		SCM:      repoSCM,
		Version:  h.Version,
	}, nil
}

// CmdBase encompasses configured components common to all fbuild
// commands.
type CmdBase struct {
	UI       cli.Ui
	Logger   hclog.Logger
	RepoRoot turbopath.AbsoluteSystemPath
	Config   *config.Config
	SCM      scm.SCM
	Version  string
}

// LogError prints an error to the UI.
func (b *CmdBase) LogError(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	b.Logger.Error("error", err)
	b.UI.Error(fmt.Sprintf("%s%s", ui.ERROR_PREFIX, color.RedString(" %v", err)))
}

// LogWarning logs an error and outputs it to the UI.
func (b *CmdBase) LogWarning(prefix string, err error) {
	b.Logger.Warn(prefix, "warning", err)

	if prefix != "" {
		prefix = " " + prefix + ": "
	}

	b.UI.Warn(fmt.Sprintf("%s%s%s", ui.WARNING_PREFIX, prefix, color.YellowString(" %v", err)))
}

// LogInfo logs a message and outputs it to the UI.
func (b *CmdBase) LogInfo(msg string) {
	b.Logger.Info(msg)
	b.UI.Info(fmt.Sprintf("%s%s", ui.InfoPrefix, color.WhiteString(" %v", msg)))
}

// Error wraps an underlying error with the process exit code it should
// produce. Commands that need to signal a specific exit code (spec §6)
// return one of these from their RunE.
type Error struct {
	ExitCode int
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
