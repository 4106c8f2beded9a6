package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"

	"github.com/goar-build/goar/x/gotool"
)

// findModFile walks up from dir looking for a go.mod. It returns the empty
// string when none is found.
func findModFile(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "go.mod")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// requiredGoVersion reads the go directive from the module containing dir.
// It returns the empty string when the module or the directive is absent.
func requiredGoVersion(dir string) string {
	path := findModFile(dir)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil || f.Go == nil {
		return ""
	}
	return f.Go.Version
}

// checkToolchain verifies the installed go command satisfies the module's
// go directive before any compilation starts. Modules without a resolvable
// go.mod or a valid directive are built without the check.
func checkToolchain(ctx context.Context, g *gotool.Go, dir string) error {
	want := requiredGoVersion(dir)
	if want == "" || !semver.IsValid("v"+want) {
		return nil
	}
	have, err := g.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe go toolchain: %w", err)
	}
	// Release candidates and devel builds do not parse as semver; trust them.
	if !semver.IsValid("v" + have) {
		return nil
	}
	if semver.Compare("v"+have, "v"+want) < 0 {
		return fmt.Errorf("go %s is older than the go %s requirement of %s", have, want, findModFile(dir))
	}
	return nil
}
