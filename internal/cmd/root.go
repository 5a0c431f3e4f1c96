// Package cmd holds the root cobra command for fbuild.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fluidbuild/fbx/internal/buildgraph"
	"github.com/fluidbuild/fbx/internal/chrometracing"
	"github.com/fluidbuild/fbx/internal/cmdutil"
	"github.com/fluidbuild/fbx/internal/env"
	"github.com/fluidbuild/fbx/internal/executor"
	"github.com/fluidbuild/fbx/internal/hashing"
	"github.com/fluidbuild/fbx/internal/manifest"
	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/turbopath"
	"github.com/fluidbuild/fbx/internal/ui"
	"github.com/fluidbuild/fbx/internal/util"
)

// Exit codes the core reports to callers (spec §6).
const (
	ExitSuccess             = 0
	ExitTaskFailed          = -1
	ExitNoPackageMatched    = -4
	ExitGraphConstructError = -11
)

type selectionOpts struct {
	independent       bool
	releaseGroups     []string
	releaseGroupRoots []string
	directories       []string
	changedSince      string
	changedRemote     string
	scope             []string
	skipScope         []string
	private           bool
	public            bool
}

func (o *selectionOpts) addFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&o.independent, "independent", false, "Include every standalone (non-release-group) package")
	flags.StringSliceVar(&o.releaseGroups, "release-group", nil, "Include every child package of the named release group")
	flags.StringSliceVar(&o.releaseGroupRoots, "release-group-root", nil, "Include only the root package of the named release group")
	flags.StringSliceVar(&o.directories, "directory", nil, "Include the package rooted at the given path")
	flags.StringVar(&o.changedSince, "changed-since-branch", "", "Include every package with a file changed vs. the named branch")
	flags.StringVar(&o.changedRemote, "remote", "origin", "Remote to diff against for --changed-since-branch")
	flags.StringSliceVar(&o.scope, "scope", nil, "Restrict selection to packages whose name has one of these prefixes")
	flags.StringSliceVar(&o.skipScope, "skip-scope", nil, "Exclude packages whose name has one of these prefixes")
	flags.BoolVar(&o.private, "private", false, "Restrict selection to private packages")
	flags.BoolVar(&o.public, "public", false, "Restrict selection to public (non-private) packages")
}

// RunWithArgs runs fbuild with the specified arguments. The arguments
// should not include the binary being invoked.
func RunWithArgs(args []string, version string) int {
	helper := cmdutil.NewHelper(version)
	root := getCmd(helper)
	defer helper.Cleanup(root.Flags())
	root.SetArgs(args)

	exitCode := 0
	if err := root.Execute(); err != nil {
		if coded, ok := err.(*cmdutil.Error); ok {
			exitCode = coded.ExitCode
		} else {
			exitCode = ExitTaskFailed
		}
	}
	return exitCode
}

func getCmd(helper *cmdutil.Helper) *cobra.Command {
	opts := &selectionOpts{}
	var concurrency string
	var trace bool
	var quiet bool
	var dryRun bool
	var graphOutput string

	cmd := &cobra.Command{
		Use:           "fbuild [tasks...]",
		Short:         "Run tasks across a monorepo's packages with dependency-aware scheduling and incremental skipping",
		Version:       helper.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitGraphConstructError, Err: err}
			}
			if concurrency != "" {
				base.Config.Concurrency = concurrency
			}
			if trace {
				if err := base.Config.TraceDir.EnsureDir(); err != nil {
					return &cmdutil.Error{ExitCode: ExitGraphConstructError, Err: err}
				}
				os.Setenv("CHROMETRACING_DIR", base.Config.TraceDir.ToString())
				chrometracing.EnableTracing()
				defer func() {
					if closeErr := chrometracing.Close(); closeErr == nil {
						base.LogInfo(fmt.Sprintf("wrote trace to %s", chrometracing.Path()))
					}
				}()
			}
			if len(args) == 0 {
				return &cmdutil.Error{ExitCode: ExitGraphConstructError, Err: fmt.Errorf("no target task names given")}
			}
			code := run(base, opts, args, quiet, dryRun, graphOutput)
			if code != ExitSuccess {
				return &cmdutil.Error{ExitCode: code, Err: fmt.Errorf("fbuild exited with code %d", code)}
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	flags := cmd.PersistentFlags()
	helper.AddFlags(flags)
	opts.addFlags(flags)
	flags.StringVar(&concurrency, "concurrency", "", "Override the configured worker concurrency")
	flags.BoolVar(&trace, "trace", false, "Write a chrome://tracing trace of this run")
	flags.BoolVar(&quiet, "quiet", false, "Suppress live, package-prefixed task output")
	flags.BoolVar(&dryRun, "dry-run", false, "Classify every task without running any of them")
	flags.StringVar(&graphOutput, "graph", "", "Write a Graphviz dot rendering of the task graph to the given path (or stdout if \"-\") instead of running")
	return cmd
}

func run(base *cmdutil.CmdBase, opts *selectionOpts, targetTasks []string, quiet bool, dryRun bool, graphOutput string) int {
	spin := ui.NewSpinner(os.Stderr)
	if ui.IsTTY {
		spin.Start("discovering packages")
	}
	graph, err := manifest.DiscoverAll(base.Logger, base.RepoRoot, base.Config.Packages, base.Config.Tasks)
	if err != nil {
		if ui.IsTTY {
			spin.Stop("")
		}
		base.LogError("discovering packages: %v", err)
		return ExitGraphConstructError
	}

	criteria, err := resolveSelectionCriteria(base, opts)
	if err != nil {
		if ui.IsTTY {
			spin.Stop("")
		}
		base.LogError("resolving package selection: %v", err)
		return ExitGraphConstructError
	}
	graph.ApplySelection(criteria)

	matchedSet := graph.MatchedPackages()
	if matchedSet.Cardinality() == 0 {
		if ui.IsTTY {
			spin.Stop("")
		}
		base.LogError("no package matched the given selection")
		return ExitNoPackageMatched
	}
	matched := make([]string, 0, matchedSet.Cardinality())
	for _, name := range matchedSet.ToSlice() {
		matched = append(matched, name.(string))
	}

	buildCtx := buildgraph.NewContext(graph, base.Config.Tasks, base.Logger)
	built, err := buildCtx.Build(matched, targetTasks)
	if ui.IsTTY {
		spin.Stop(fmt.Sprintf("resolved %d packages", len(matched)))
	}
	if err != nil {
		base.LogError("building task graph: %v", err)
		return ExitGraphConstructError
	}

	if graphOutput != "" {
		dot := built.RenderDOT()
		if graphOutput == "-" {
			fmt.Fprintln(os.Stdout, dot)
			return ExitSuccess
		}
		if err := turbopath.ResolveUnknownPath(base.RepoRoot, graphOutput).WriteFile([]byte(dot), 0644); err != nil {
			base.LogError("writing graph file: %v", err)
			return ExitGraphConstructError
		}
		return ExitSuccess
	}

	concurrency := 10
	if n, parseErr := parseConcurrency(base.Config.Concurrency); parseErr == nil {
		concurrency = n
	}

	osEnv := env.GetEnvMap()
	exec := executor.New(built, hashing.NewMemo(), executor.Options{
		Concurrency: concurrency,
		Logger:      base.Logger,
		RepoRoot:    base.RepoRoot,
		Quiet:       quiet,
		DryRun:      dryRun,
		PackageDir: func(pkg string) turbopath.AbsoluteSystemPath {
			if p, ok := graph.Packages[pkg]; ok {
				return p.Dir
			}
			return base.RepoRoot
		},
		Env: func(pkg, task string) []string {
			def, resolveErr := base.Config.Tasks.Resolve(pkg, task)
			if resolveErr != nil {
				return nil
			}
			pairs := make([]string, 0, len(def.Env)+len(def.PassthroughEnv))
			for _, name := range def.Env {
				if v, ok := osEnv[name]; ok {
					pairs = append(pairs, name+"="+v)
				}
			}
			if resolved, wcErr := osEnv.FromWildcards(def.PassthroughEnv); wcErr == nil {
				pairs = append(pairs, resolved.ToHashable()...)
			}
			return pairs
		},
	})

	sum, err := exec.Run(context.Background())
	if err != nil {
		base.LogError("running build: %v", err)
		return ExitGraphConstructError
	}

	fmt.Fprint(os.Stdout, sum.Close(time.Now()))
	if sum.Failed() {
		return ExitTaskFailed
	}
	return ExitSuccess
}

func resolveSelectionCriteria(base *cmdutil.CmdBase, opts *selectionOpts) (pkggraph.PackageSelectionCriteria, error) {
	criteria := pkggraph.PackageSelectionCriteria{
		IndependentPackages: opts.independent,
		ReleaseGroups:       opts.releaseGroups,
		ReleaseGroupRoots:   opts.releaseGroupRoots,
		Scope:               opts.scope,
		SkipScope:           opts.skipScope,
	}
	for _, dir := range opts.directories {
		criteria.Directory = append(criteria.Directory, turbopath.ResolveUnknownPath(base.RepoRoot, dir).ToString())
	}
	switch {
	case opts.private:
		criteria.Private = pkggraph.PrivacyOnlyPrivate
	case opts.public:
		criteria.Private = pkggraph.PrivacyOnlyPublic
	default:
		criteria.Private = pkggraph.PrivacyEither
	}

	noExplicitCriteria := !opts.independent && len(opts.releaseGroups) == 0 && len(opts.releaseGroupRoots) == 0 &&
		len(opts.directories) == 0 && opts.changedSince == ""
	if opts.changedSince != "" {
		changed, err := base.SCM.ChangedFilesSince(opts.changedSince, opts.changedRemote)
		if err != nil {
			return criteria, err
		}
		for _, f := range changed {
			criteria.ChangedFiles = append(criteria.ChangedFiles, base.RepoRoot.Join(f).ToString())
		}
	}
	if noExplicitCriteria {
		// No selection flags given: the natural default is "everything",
		// matching fluid-build's bare invocation.
		criteria.All = true
	}
	return criteria, nil
}

func parseConcurrency(raw string) (int, error) {
	return util.ParseConcurrency(raw)
}
