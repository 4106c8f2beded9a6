package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/shell"

	"github.com/goar-build/goar/build"
	"github.com/goar-build/goar/internal/buildenv"
	"github.com/goar-build/goar/internal/manifest"
)

var (
	buildPackages   []string
	buildName       string
	buildTarget     string
	buildOutDir     string
	buildMode       string
	buildLdflags    string
	buildTrimpath   bool
	buildEnv        []string
	buildGoflags    string
	buildNoMetadata bool
	buildRerun      bool
	buildManifest   string
	buildJobs       int
	buildVerbose    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [library...]",
	Short: "Build Go packages into C archives",
	Long: `Build compiles Go packages into C archives or shared libraries and
stages them for a host build.

With --package it builds one library directly from the flags. Without it,
the manifest is read and the named libraries are built; no arguments build
every library. Manifest builds may run in parallel, but link directives
are buffered per library and printed in manifest order once all builds
succeed.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringArrayVarP(&buildPackages, "package", "p", nil, "Go package to compile (repeatable; skips the manifest)")
	flags.StringVarP(&buildName, "name", "n", "", "Library name for direct --package builds")
	flags.StringVar(&buildTarget, "target", "", "Target triple to cross compile for")
	flags.StringVarP(&buildOutDir, "out-dir", "o", "", "Directory artifacts are staged into (default $OUT_DIR)")
	flags.StringVar(&buildMode, "mode", "c-archive", "Build mode: c-archive or c-shared")
	flags.StringVar(&buildLdflags, "ldflags", "", "Flags for the Go linker")
	flags.BoolVar(&buildTrimpath, "trimpath", false, "Strip local path prefixes from the archive")
	flags.StringArrayVar(&buildEnv, "env", nil, "KEY=VALUE override for the go tool (repeatable, later wins)")
	flags.StringVar(&buildGoflags, "goflags", "", "Extra go build flags, shell-quoted")
	flags.BoolVar(&buildNoMetadata, "no-metadata", false, "Do not print cargo link directives")
	flags.BoolVar(&buildRerun, "rerun-if-changed", false, "Also print cargo rerun-if-changed directives")
	flags.StringVarP(&buildManifest, "manifest", "f", manifest.DefaultFile, "Manifest file for multi-library builds")
	flags.IntVarP(&buildJobs, "jobs", "j", 1, "Parallel library builds in manifest mode")
	flags.BoolVarP(&buildVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildVerbose {
		log.SetOutputLevel(log.Ldebug)
	}
	if len(buildPackages) > 0 {
		if len(args) > 0 {
			return fmt.Errorf("library arguments only apply to manifest builds")
		}
		if buildName == "" {
			return fmt.Errorf("--package requires --name")
		}
		return runDirectBuild(cmd.Context())
	}
	if buildName != "" {
		return fmt.Errorf("--name requires --package")
	}
	return runManifestBuild(cmd.Context(), args)
}

func runDirectBuild(ctx context.Context) error {
	env, err := parseEnvVars(buildEnv)
	if err != nil {
		return err
	}
	flags, err := splitGoflags(buildGoflags)
	if err != nil {
		return err
	}
	s := &buildSettings{
		name:     buildName,
		packages: buildPackages,
		target:   buildTarget,
		outDir:   buildOutDir,
		mode:     buildMode,
		ldflags:  buildLdflags,
		trimpath: buildTrimpath,
		flags:    flags,
		env:      env,
		rerun:    buildRerun,
		metadata: !buildNoMetadata,
		stdout:   os.Stdout,
	}
	return s.run(ctx)
}

func runManifestBuild(ctx context.Context, names []string) error {
	m, err := manifest.Load(buildManifest)
	if err != nil {
		return err
	}
	libs, err := selectLibraries(m, names, buildManifest)
	if err != nil {
		return err
	}
	return buildLibraries(ctx, libs, buildJobs)
}

// buildLibraries builds libs, up to jobs at a time. Each library's link
// directives go into its own buffer; they reach stdout in manifest order
// and only once every build succeeded, so parallelism and failures never
// corrupt the host build's directive channel.
func buildLibraries(ctx context.Context, libs []*manifest.Library, jobs int) error {
	if jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", jobs)
	}
	outputs := make([]bytes.Buffer, len(libs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, lib := range libs {
		g.Go(func() error {
			s, err := manifestSettings(lib)
			if err != nil {
				return err
			}
			s.stdout = &outputs[i]
			log.Debugf("building library %s", lib.Name)
			if err := s.run(gctx); err != nil {
				return fmt.Errorf("failed to build library %q: %w", lib.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range outputs {
		if _, err := outputs[i].WriteTo(os.Stdout); err != nil {
			return fmt.Errorf("failed to write directives: %w", err)
		}
	}
	return nil
}

func selectLibraries(m *manifest.Manifest, names []string, path string) ([]*manifest.Library, error) {
	if len(names) == 0 {
		libs := make([]*manifest.Library, len(m.Libraries))
		for i := range m.Libraries {
			libs[i] = &m.Libraries[i]
		}
		return libs, nil
	}
	libs := make([]*manifest.Library, 0, len(names))
	for _, name := range names {
		lib, ok := m.Library(name)
		if !ok {
			return nil, fmt.Errorf("no library %q in %s", name, path)
		}
		libs = append(libs, lib)
	}
	return libs, nil
}

// buildSettings carries one library's build configuration, whichever of
// the flag set or the manifest supplied it.
type buildSettings struct {
	name     string
	packages []string
	target   string
	outDir   string
	mode     string
	ldflags  string
	trimpath bool
	flags    []string
	env      []buildenv.Var
	rerun    bool
	metadata bool
	stdout   io.Writer
}

func manifestSettings(lib *manifest.Library) (*buildSettings, error) {
	flags, err := lib.SplitFlags()
	if err != nil {
		return nil, err
	}
	return &buildSettings{
		name:     lib.Name,
		packages: lib.AllPackages(),
		target:   lib.Target,
		outDir:   lib.OutDir,
		mode:     lib.Mode,
		ldflags:  lib.Ldflags,
		trimpath: lib.Trimpath != nil && *lib.Trimpath,
		flags:    flags,
		env:      lib.EnvVars(),
		rerun:    buildRerun,
		metadata: !buildNoMetadata,
	}, nil
}

func (s *buildSettings) run(ctx context.Context) error {
	b := build.New().
		Packages(s.packages...).
		OutDir(s.outDir).
		Ldflags(s.ldflags).
		Trimpath(s.trimpath).
		Flags(s.flags...).
		CargoMetadata(s.metadata).
		RerunIfChanged(s.rerun).
		Stdout(s.stdout)
	if s.target != "" {
		b.Target(s.target)
	}
	if s.mode != "" {
		mode, err := parseMode(s.mode)
		if err != nil {
			return err
		}
		b.Mode(mode)
	}
	for _, v := range s.env {
		b.Env(v.Key, v.Value)
	}
	return b.TryBuild(ctx, s.name)
}

func parseMode(s string) (build.Mode, error) {
	switch s {
	case "c-archive":
		return build.CArchive, nil
	case "c-shared":
		return build.CShared, nil
	}
	return "", fmt.Errorf("unknown build mode %q (want c-archive or c-shared)", s)
}

// parseEnvVars parses repeatable KEY=VALUE flags, keeping flag order.
func parseEnvVars(pairs []string) ([]buildenv.Var, error) {
	vars := make([]buildenv.Var, 0, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
		}
		vars = append(vars, buildenv.Var{Key: k, Value: v})
	}
	return vars, nil
}

func splitGoflags(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	fields, err := shell.Fields(s, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid --goflags %q: %w", s, err)
	}
	return fields, nil
}
