// Package build turns Go packages into C archives a cargo host build can
// link against. A Build value is configured fluently and consumed by one of
// the terminal calls, which run the full pipeline: resolve the target
// platform, compose an isolated child environment, run go build in an
// archive buildmode, stage the artifacts into the output directory, and
// print the link directives cargo reads from stdout.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goar-build/goar/cargo"
	"github.com/goar-build/goar/internal/buildenv"
	"github.com/goar-build/goar/internal/stage"
	"github.com/goar-build/goar/target"
	"github.com/goar-build/goar/x/gotool"
)

// Mode selects the buildmode handed to the go tool.
type Mode string

const (
	// CArchive builds a static archive plus its C header.
	CArchive Mode = "c-archive"
	// CShared builds a shared library plus its C header.
	CShared Mode = "c-shared"
)

// Build configures one compilation. Configure it with the fluent setters,
// then consume it with TryBuild or MustBuild. The terminal calls take the
// value by copy, so one call cannot observe another's mutations: concurrent
// builds with distinct names and output directories are safe, and a second
// call re-runs every stage from a fresh environment snapshot.
type Build struct {
	mode      Mode
	metadata  bool
	rerun     bool
	trimpath  bool
	changeDir string
	ldflags   string
	outDir    string
	triple    string
	packages  []string
	flags     []string
	envs      []buildenv.Var
	stdout    io.Writer
	stderr    io.Writer
	tool      *gotool.Go
	environ   func() []string
}

// New returns a Build with the defaults a cargo build script wants: a
// c-archive with link directives on stdout.
func New() *Build {
	return &Build{mode: CArchive, metadata: true}
}

// Mode selects between c-archive and c-shared output.
func (b *Build) Mode(mode Mode) *Build {
	b.mode = mode
	return b
}

// Package adds one package path, pattern or .go file to the build.
func (b *Build) Package(pkg string) *Build {
	b.packages = append(b.packages, pkg)
	return b
}

// Packages adds several packages; all of them go into one go build run.
func (b *Build) Packages(pkgs ...string) *Build {
	b.packages = append(b.packages, pkgs...)
	return b
}

// ChangeDir makes the go tool change into dir before building (-C).
func (b *Build) ChangeDir(dir string) *Build {
	b.changeDir = dir
	return b
}

// Ldflags passes flags through to the Go linker.
func (b *Build) Ldflags(flags string) *Build {
	b.ldflags = flags
	return b
}

// Trimpath strips local filesystem prefixes from the compiled archive.
func (b *Build) Trimpath(on bool) *Build {
	b.trimpath = on
	return b
}

// OutDir sets the directory artifacts are staged into. When unset, the
// ambient OUT_DIR is used; a build with neither fails before compiling.
func (b *Build) OutDir(dir string) *Build {
	b.outDir = dir
	return b
}

// Target sets the target triple explicitly, overriding ambient detection.
func (b *Build) Target(triple string) *Build {
	b.triple = triple
	return b
}

// Env adds one environment override for the go tool child process.
// Overrides win over every derived and forwarded variable, and a later
// assignment to the same key wins over an earlier one.
func (b *Build) Env(key, value string) *Build {
	b.envs = append(b.envs, buildenv.Var{Key: key, Value: value})
	return b
}

// Flags appends extra go build flags, passed verbatim before the packages.
func (b *Build) Flags(flags ...string) *Build {
	b.flags = append(b.flags, flags...)
	return b
}

// CargoMetadata controls whether link directives are printed after a
// successful build. It is on by default.
func (b *Build) CargoMetadata(emit bool) *Build {
	b.metadata = emit
	return b
}

// RerunIfChanged additionally prints rerun-if-changed directives for the
// package inputs, so the host build re-runs its script only when they
// change. It is off by default.
func (b *Build) RerunIfChanged(emit bool) *Build {
	b.rerun = emit
	return b
}

// Stdout redirects the directive channel, which defaults to os.Stdout.
func (b *Build) Stdout(w io.Writer) *Build {
	b.stdout = w
	return b
}

// Stderr redirects compiler diagnostics, which default to os.Stderr.
func (b *Build) Stderr(w io.Writer) *Build {
	b.stderr = w
	return b
}

// Tool selects the toolchain wrapper to build with, replacing the default
// "go" found on PATH.
func (b *Build) Tool(g *gotool.Go) *Build {
	b.tool = g
	return b
}

// MustBuild compiles the configured packages into a library called name and
// exits the process on failure, the fail-fast behavior a host build script
// wants. Use TryBuild to handle the error instead.
func (b Build) MustBuild(name string) {
	if err := b.TryBuild(context.Background(), name); err != nil {
		diag := b.stderr
		if diag == nil {
			diag = os.Stderr
		}
		fmt.Fprintf(diag, "\ngoar: %v\n", err)
		os.Exit(1)
	}
}

// TryBuild compiles the configured packages into a library called name,
// stages the archive and header into the output directory, and prints the
// link directives. Configuration problems surface before any subprocess is
// spawned. Failures are never partial: on error nothing is staged and no
// directive has been printed.
func (b Build) TryBuild(ctx context.Context, name string) error {
	if name == "" {
		return ErrNoName
	}
	if len(b.packages) == 0 {
		return ErrNoPackages
	}
	if b.mode == "" {
		b.mode = CArchive
	}

	environ := b.environ
	if environ == nil {
		environ = os.Environ
	}
	snap := buildenv.TakeFrom(environ())

	platform, err := buildenv.ResolveTarget(b.triple, snap)
	if err != nil {
		return err
	}

	outDir := b.outDir
	if outDir == "" {
		outDir = snap.OutDir
	}
	if outDir == "" {
		return ErrNoOutDir
	}

	tool := b.tool
	if tool == nil {
		if tool, err = gotool.New(); err != nil {
			return err
		}
	}
	if err := checkToolchain(ctx, tool, b.moduleDir()); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "goar-build-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	archive := filepath.Join(scratch, stage.ArchiveName(name, string(b.mode), platform))
	err = tool.Build(ctx, gotool.Invocation{
		Dir:       b.changeDir,
		BuildMode: string(b.mode),
		Output:    archive,
		Ldflags:   b.ldflags,
		Trimpath:  b.trimpath,
		Flags:     b.flags,
		Packages:  b.packages,
		Env:       buildenv.Compose(platform, snap, b.envs),
		Stderr:    b.stderr,
	})
	if err != nil {
		return err
	}

	if _, err := stage.Stage(archive, outDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ArtifactMissingError{Path: archive}
		}
		return &StageError{Path: outDir, Err: err}
	}

	if !b.metadata {
		return nil
	}
	return b.emitDirectives(name, outDir, platform)
}

func (b Build) emitDirectives(name, outDir string, platform target.Platform) error {
	out := b.stdout
	if out == nil {
		out = os.Stdout
	}
	em := cargo.NewEmitter(out)
	em.LinkSearch(outDir)
	if b.mode == CShared {
		em.LinkDynamic(name)
	} else {
		em.LinkStatic(name)
	}
	em.LinkSystemLibs(platform.GOOS)

	if b.rerun {
		for _, pkg := range b.packages {
			if p := pkgInputPath(b.changeDir, pkg); p != "" {
				em.RerunIfChanged(p)
			}
		}
		if mod := findModFile(b.moduleDir()); mod != "" {
			em.RerunIfChanged(mod)
			if sum := filepath.Join(filepath.Dir(mod), "go.sum"); fileExists(sum) {
				em.RerunIfChanged(sum)
			}
		}
	}

	if err := em.Err(); err != nil {
		return fmt.Errorf("failed to emit cargo directives: %w", err)
	}
	return nil
}

// moduleDir returns the directory whose go.mod governs the build, for the
// toolchain preflight and the rerun hints.
func (b Build) moduleDir() string {
	dir := pkgInputPath(b.changeDir, b.packages[0])
	if dir == "" {
		if b.changeDir != "" {
			return b.changeDir
		}
		return "."
	}
	if strings.HasSuffix(dir, ".go") {
		return filepath.Dir(dir)
	}
	return dir
}

// pkgInputPath maps a package argument to the file or directory it names,
// relative to the process working directory. Import paths with no
// filesystem location map to "".
func pkgInputPath(changeDir, pkg string) string {
	switch {
	case pkg == "":
		return ""
	case strings.HasSuffix(pkg, ".go"):
	case pkg == "." || pkg == ".." ||
		strings.HasPrefix(pkg, "./") || strings.HasPrefix(pkg, "../"):
	case filepath.IsAbs(pkg):
	default:
		return ""
	}
	p := strings.TrimSuffix(pkg, "...")
	if p = strings.TrimSuffix(p, "/"); p == "" {
		p = "."
	}
	if changeDir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(changeDir, p)
	}
	return filepath.Clean(p)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
