// Package manifest loads goar.toml, the multi-library build manifest.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"mvdan.cc/sh/v3/shell"

	"github.com/goar-build/goar/internal/buildenv"
)

// DefaultFile is the manifest name looked up in the working directory.
const DefaultFile = "goar.toml"

// Defaults hold manifest-wide values merged under each library.
type Defaults struct {
	OutDir   string `toml:"out-dir"`
	Target   string `toml:"target"`
	Mode     string `toml:"mode"`
	Trimpath bool   `toml:"trimpath"`
	Ldflags  string `toml:"ldflags"`
}

// Library describes one archive to build.
type Library struct {
	Name     string            `toml:"name"`
	Package  string            `toml:"package"`
	Packages []string          `toml:"packages"`
	Mode     string            `toml:"mode"`
	OutDir   string            `toml:"out-dir"`
	Target   string            `toml:"target"`
	Ldflags  string            `toml:"ldflags"`
	Trimpath *bool             `toml:"trimpath"`
	Flags    string            `toml:"flags"`
	Env      map[string]string `toml:"env"`
}

// Manifest is a parsed goar.toml. Load fills every library's optional
// fields from the defaults, so callers never consult Defaults directly.
type Manifest struct {
	Defaults  Defaults  `toml:"defaults"`
	Libraries []Library `toml:"library"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	for i := range m.Libraries {
		l := &m.Libraries[i]
		if l.OutDir == "" {
			l.OutDir = m.Defaults.OutDir
		}
		if l.Target == "" {
			l.Target = m.Defaults.Target
		}
		if l.Mode == "" {
			l.Mode = m.Defaults.Mode
		}
		if l.Ldflags == "" {
			l.Ldflags = m.Defaults.Ldflags
		}
		if l.Trimpath == nil {
			v := m.Defaults.Trimpath
			l.Trimpath = &v
		}
	}
}

// validate rejects manifests that cannot build. Names must be unique
// because concurrent library builds stage into shared directories.
func (m *Manifest) validate() error {
	if len(m.Libraries) == 0 {
		return errors.New("no [[library]] tables")
	}
	seen := make(map[string]bool)
	for i := range m.Libraries {
		l := &m.Libraries[i]
		if l.Name == "" {
			return fmt.Errorf("library #%d has no name", i+1)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate library name %q", l.Name)
		}
		seen[l.Name] = true
		if len(l.AllPackages()) == 0 {
			return fmt.Errorf("library %q has no package", l.Name)
		}
	}
	return nil
}

// Library returns the library with the given name, if present.
func (m *Manifest) Library(name string) (*Library, bool) {
	for i := range m.Libraries {
		if m.Libraries[i].Name == name {
			return &m.Libraries[i], true
		}
	}
	return nil, false
}

// AllPackages returns the package list regardless of which key declared it.
func (l *Library) AllPackages() []string {
	if l.Package != "" {
		return append([]string{l.Package}, l.Packages...)
	}
	return l.Packages
}

// SplitFlags splits the flags string with shell quoting rules.
func (l *Library) SplitFlags() ([]string, error) {
	if l.Flags == "" {
		return nil, nil
	}
	fields, err := shell.Fields(l.Flags, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to split flags of library %q: %w", l.Name, err)
	}
	return fields, nil
}

// EnvVars returns the library's environment overrides in sorted key order.
// TOML tables carry no order, so the sort keeps rebuilds deterministic.
func (l *Library) EnvVars() []buildenv.Var {
	keys := make([]string, 0, len(l.Env))
	for k := range l.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vars := make([]buildenv.Var, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, buildenv.Var{Key: k, Value: l.Env[k]})
	}
	return vars
}

// InputDirs returns the directories whose sources feed the libraries,
// resolved against dir, where the manifest lives. Import-path packages with
// no filesystem location are skipped. The result is deduplicated and
// sorted; the watch loop feeds it to the filesystem watcher.
func InputDirs(dir string, libs []*Library) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, lib := range libs {
		for _, pkg := range lib.AllPackages() {
			p := inputDir(dir, pkg)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			dirs = append(dirs, p)
		}
	}
	sort.Strings(dirs)
	return dirs
}

func inputDir(dir, pkg string) string {
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
	if strings.HasSuffix(p, ".go") {
		p = filepath.Dir(p)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return filepath.Clean(p)
}
