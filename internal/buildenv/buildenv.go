// Package buildenv composes the isolated environment handed to go tool
// subprocesses.
package buildenv

import (
	"os"
	"sort"
	"strings"

	"github.com/goar-build/goar/target"
)

// Snapshot captures the ambient variables the orchestrator consults. It is
// read once at the start of a build call so later mutations of the process
// environment cannot make stages disagree with each other.
type Snapshot struct {
	Target  string // TARGET, the host build's full target triple
	CfgOS   string // CARGO_CFG_TARGET_OS
	CfgArch string // CARGO_CFG_TARGET_ARCH
	OutDir  string // OUT_DIR, the host build's designated output directory

	environ []string
}

// Take reads the ambient process environment into a Snapshot.
func Take() Snapshot { return TakeFrom(os.Environ()) }

// TakeFrom builds a Snapshot from an explicit environment listing.
func TakeFrom(environ []string) Snapshot {
	s := Snapshot{environ: environ}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "TARGET":
			s.Target = v
		case "CARGO_CFG_TARGET_OS":
			s.CfgOS = v
		case "CARGO_CFG_TARGET_ARCH":
			s.CfgArch = v
		case "OUT_DIR":
			s.OutDir = v
		}
	}
	return s
}

// ResolveTarget picks the build platform: the explicit triple when given,
// then the snapshot's TARGET triple, then its target OS/arch pair, then
// the host itself.
func ResolveTarget(triple string, snap Snapshot) (target.Platform, error) {
	switch {
	case triple != "":
		return target.Resolve(triple)
	case snap.Target != "":
		return target.Resolve(snap.Target)
	case snap.CfgOS != "" && snap.CfgArch != "":
		return target.ResolveCfg(snap.CfgOS, snap.CfgArch)
	}
	return target.Host(), nil
}

// Var is a single environment override. Overrides keep caller order, so a
// later assignment to the same key wins.
type Var struct {
	Key   string
	Value string
}

// passthroughKeys are ambient variables forwarded to the child verbatim:
// binary lookup plus the per-OS home and temp locations the go tool needs
// for its caches.
var passthroughKeys = []string{
	"PATH", "HOME", "USERPROFILE", "SystemRoot", "SystemDrive",
	"TEMP", "TMP", "TMPDIR",
}

// passthroughPrefixes forward every toolchain knob (GOFLAGS, GOCACHE,
// CGO_CFLAGS, ...). GOOS, GOARCH and CGO_ENABLED are re-derived below, and
// caller overrides still win over all of these.
var passthroughPrefixes = []string{"GO", "CGO_"}

// Compose builds the full child environment for a build targeting p.
// Precedence, lowest to highest: ambient passthrough, derived platform
// variables, caller overrides. The ambient process environment is never
// mutated, and the result is sorted so identical inputs compose to
// identical environments.
func Compose(p target.Platform, snap Snapshot, overrides []Var) []string {
	vars := make(map[string]string)
	for _, kv := range snap.environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if forwarded(k) {
			vars[k] = v
		}
	}

	vars["CGO_ENABLED"] = "1"
	vars["GOOS"] = p.GOOS
	vars["GOARCH"] = p.GOARCH
	if p.Cross {
		if p.CC != "" {
			vars["CC"] = p.CC
		}
		if p.CXX != "" {
			vars["CXX"] = p.CXX
		}
	}

	for _, o := range overrides {
		vars[o.Key] = o.Value
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func forwarded(key string) bool {
	for _, k := range passthroughKeys {
		if key == k {
			return true
		}
	}
	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
