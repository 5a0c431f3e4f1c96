// Package config loads the fully-resolved IFluidBuildConfig (spec §6):
// the global task table, the declarative-task registry, the known
// multi-command executables, and the workspace globs used to discover
// repo packages. File discovery and schema validation proper remain an
// external collaborator's job; this package defines and loads the
// struct shape the core consumes.
package config

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

// EnvPrefix is the prefix recognized for environment variable overrides
// (e.g. FBUILD_CONCURRENCY, FBUILD_LOGLEVEL).
const EnvPrefix = "FBUILD"

// DefaultConfigFile is the file name searched for in the repo root.
const DefaultConfigFile = "fbuild.config.json"

// DeclarativeTaskFile is the wire shape of one entry in the
// declarative-tasks table (spec §4.4): a non-script executable whose
// input/output globs are known ahead of time rather than discovered
// from a package's manifest scripts.
type DeclarativeTaskFile struct {
	Executable  string   `mapstructure:"executable"`
	DefaultArgs []string `mapstructure:"defaultArgs"`

	taskconfig.RawTaskDefinition `mapstructure:",squash"`
}

// File is the on-disk/env-bindable shape of the fluid-build config.
type File struct {
	// Concurrency bounds the executor's worker pool (default "10").
	// Accepts the same "N" / "N%" grammar as the --concurrency CLI flag;
	// a value that does not parse to at least 1 (including "0" and "")
	// falls back to 10 workers.
	Concurrency string `mapstructure:"concurrency"`

	// LogLevel is one of hclog's level names ("trace", "debug", "info",
	// "warn", "error"); empty disables logging output entirely.
	LogLevel string `mapstructure:"logLevel"`

	// CacheDir is reserved for a future pluggable content-addressed
	// store root (spec §1); the donefile store's location is fixed by
	// spec §6 and does not consult it today.
	CacheDir string `mapstructure:"cacheDir"`

	// TraceDir is where --trace writes its chrome://tracing file,
	// relative to the repo root unless absolute. Defaults to the user's
	// XDG cache directory so a trace survives outside the repo tree.
	TraceDir string `mapstructure:"traceDir"`

	// Packages lists the workspace globs (relative to the repo root)
	// searched for package manifests -- the "repo-packages listing"
	// half of IFluidBuildConfig.
	Packages []string `mapstructure:"packages"`

	// Tasks is the global task table (spec §3), keyed by task name.
	Tasks map[string]taskconfig.RawTaskDefinition `mapstructure:"tasks"`

	// PackageOverlay holds per-package task-table overrides, keyed
	// first by package name then by task name.
	PackageOverlay map[string]map[string]taskconfig.RawTaskDefinition `mapstructure:"packageOverlay"`

	// DeclarativeTasks is the registry of non-script executables
	// participating in the task graph (spec §4.4).
	DeclarativeTasks []DeclarativeTaskFile `mapstructure:"declarativeTasks"`

	// MultiCommandExecutables maps an executable name to the set of
	// subcommands it's known to have. It is decoded and copied onto
	// Config, but nothing else reads it: declarative-task registry keys
	// come from each entry's Executable plus DefaultArgs, and the build
	// graph looks them up by task name.
	MultiCommandExecutables map[string][]string `mapstructure:"multiCommandExecutables"`
}

// Config is the fully-resolved, in-memory form of File: task tables
// decoded into taskconfig.Table, everything else left as plain values.
type Config struct {
	Logger      hclog.Logger
	Concurrency string
	CacheDir    string
	TraceDir    turbopath.AbsoluteSystemPath
	Packages    []string
	Tasks       *taskconfig.Table

	// MultiCommandExecutables is carried through unchanged from File;
	// no declarative-task lookup consults it.
	MultiCommandExecutables map[string][]string
}

// Load reads the config file at repoRoot/fileName (DefaultConfigFile if
// fileName is empty), layering environment variables (FBUILD_* prefix)
// and any flags bound to fs over the file's values -- flags and env win
// over the file, matching the teacher's own flags > env > config >
// default precedence.
func Load(repoRoot turbopath.AbsoluteSystemPath, fileName string, fs *pflag.FlagSet) (*Config, error) {
	if fileName == "" {
		fileName = DefaultConfigFile
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("concurrency", "10")
	v.SetDefault("cacheDir", ".fbuild-cache")
	v.SetDefault("traceDir", filepath.Join(xdg.CacheHome, "fbuild", "trace"))

	path := repoRoot.Join(fileName)
	if path.FileExists() {
		raw, err := path.ReadFile()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		var asMap map[string]interface{}
		if err := jsonc.Unmarshal(raw, &asMap); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
		if err := v.MergeConfigMap(asMap); err != nil {
			return nil, errors.Wrapf(err, "merging %s", path)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrap(err, "binding flags")
		}
	}

	var file File
	decoderOpts := func(c *mapstructure.DecoderConfig) { c.ErrorUnused = false }
	if err := v.Unmarshal(&file, decoderOpts); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	table, err := buildTable(&file)
	if err != nil {
		return nil, err
	}

	level := hclog.NoLevel
	if file.LogLevel != "" {
		level = hclog.LevelFromString(file.LogLevel)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("logLevel %q is not a valid log level", file.LogLevel)
		}
	}
	// Nowhere unless logging is enabled, matching the teacher's own
	// "quiet by default, -v escalates" CLI convention.
	output := io.Writer(ioutil.Discard)
	color := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		color = hclog.AutoColor
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fbuild",
		Level:  level,
		Color:  color,
		Output: output,
	})

	return &Config{
		Logger:                  logger,
		Concurrency:             file.Concurrency,
		CacheDir:                file.CacheDir,
		TraceDir:                turbopath.ResolveUnknownPath(repoRoot, file.TraceDir),
		Packages:                file.Packages,
		Tasks:                   table,
		MultiCommandExecutables: file.MultiCommandExecutables,
	}, nil
}

func buildTable(file *File) (*taskconfig.Table, error) {
	table := taskconfig.NewTable()
	seedDefaultDeclaratives(table)
	for name, raw := range file.Tasks {
		raw := raw
		if err := table.AddGlobal(name, raw.ToTaskDefinition()); err != nil {
			return nil, err
		}
	}
	for pkg, tasks := range file.PackageOverlay {
		for name, raw := range tasks {
			raw := raw
			table.AddPackageOverlay(pkg, name, raw.ToTaskDefinition())
		}
	}
	for _, dt := range file.DeclarativeTasks {
		key := declarativeKey(dt.Executable, dt.DefaultArgs)
		table.Declarative[key] = &taskconfig.DeclarativeTask{
			Executable:     dt.Executable,
			DefaultArgs:    dt.DefaultArgs,
			TaskDefinition: *dt.RawTaskDefinition.ToTaskDefinition(),
		}
	}
	return table, nil
}

// declarativeKey builds the registry key a task name must match to be
// routed to a declarative executable: the bare executable name, or
// "executable subcommand" for a known multi-command tool (spec §4.4
// step 1).
func declarativeKey(executable string, defaultArgs []string) string {
	if len(defaultArgs) > 0 {
		return executable + " " + strings.Join(defaultArgs, " ")
	}
	return executable
}

// seedDefaultDeclaratives registers the two declarative tasks every
// fbuild config starts with out of the box: tsc (a single-command
// TypeScript compiler) and "biome check" (a subcommand of a
// multi-command formatter/linter), as examples of non-script
// executables (spec §4.1 step 5, §4.4). A config file's own
// declarativeTasks entries are layered in afterward and win on key
// collision, so a repo can override either default by redeclaring the
// same key; a seeded default cannot be removed.
func seedDefaultDeclaratives(table *taskconfig.Table) {
	cache := true
	table.Declarative[declarativeKey("tsc", nil)] = &taskconfig.DeclarativeTask{
		Executable: "tsc",
		TaskDefinition: taskconfig.TaskDefinition{
			Inputs:  []string{"tsconfig.json", "src/**/*.ts", "src/**/*.tsx"},
			Outputs: []string{"dist/**"},
			Cache:   cache,
		},
	}
	table.Declarative[declarativeKey("biome", []string{"check"})] = &taskconfig.DeclarativeTask{
		Executable:  "biome",
		DefaultArgs: []string{"check"},
		TaskDefinition: taskconfig.TaskDefinition{
			Inputs: []string{"**/*.{js,jsx,ts,tsx,json}", "biome.json"},
			Cache:  cache,
		},
	}
}
