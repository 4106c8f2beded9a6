package buildenv

import (
	"errors"
	"strings"
	"testing"

	"github.com/goar-build/goar/target"
)

func envMap(t *testing.T, env []string) map[string]string {
	t.Helper()
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			t.Fatalf("malformed env entry %q", kv)
		}
		m[k] = v
	}
	return m
}

var crossArm64 = target.Platform{
	Triple: "aarch64-unknown-linux-gnu",
	GOOS:   "linux",
	GOARCH: "arm64",
	CC:     "aarch64-linux-gnu-gcc",
	CXX:    "aarch64-linux-gnu-g++",
	Cross:  true,
}

func TestComposeDerivedVariables(t *testing.T) {
	snap := TakeFrom([]string{"PATH=/usr/bin"})

	t.Run("native", func(t *testing.T) {
		p := target.Platform{GOOS: "linux", GOARCH: "amd64"}
		m := envMap(t, Compose(p, snap, nil))
		if m["CGO_ENABLED"] != "1" {
			t.Errorf("CGO_ENABLED = %q, want %q", m["CGO_ENABLED"], "1")
		}
		if m["GOOS"] != "linux" || m["GOARCH"] != "amd64" {
			t.Errorf("GOOS/GOARCH = %q/%q, want linux/amd64", m["GOOS"], m["GOARCH"])
		}
		if _, ok := m["CC"]; ok {
			t.Error("CC set for a native build")
		}
	})

	t.Run("cross", func(t *testing.T) {
		m := envMap(t, Compose(crossArm64, snap, nil))
		if m["CC"] != "aarch64-linux-gnu-gcc" {
			t.Errorf("CC = %q, want %q", m["CC"], "aarch64-linux-gnu-gcc")
		}
		if m["CXX"] != "aarch64-linux-gnu-g++" {
			t.Errorf("CXX = %q, want %q", m["CXX"], "aarch64-linux-gnu-g++")
		}
	})

	t.Run("cross without conventional compiler", func(t *testing.T) {
		p := target.Platform{GOOS: "freebsd", GOARCH: "amd64", Cross: true}
		m := envMap(t, Compose(p, snap, nil))
		if _, ok := m["CC"]; ok {
			t.Error("CC set even though the target has no conventional compiler")
		}
	})
}

// TestComposeOverrideTotal verifies that a caller override beats every
// derived variable, including the platform pair and the cross compiler.
func TestComposeOverrideTotal(t *testing.T) {
	snap := TakeFrom([]string{"PATH=/usr/bin"})
	derived := envMap(t, Compose(crossArm64, snap, nil))

	for key := range derived {
		overrides := []Var{{Key: key, Value: "overridden"}}
		m := envMap(t, Compose(crossArm64, snap, overrides))
		if m[key] != "overridden" {
			t.Errorf("override of %s = %q, want %q", key, m[key], "overridden")
		}
	}
}

func TestComposeOverrideOrder(t *testing.T) {
	snap := TakeFrom(nil)
	p := target.Platform{GOOS: "linux", GOARCH: "amd64"}
	overrides := []Var{
		{Key: "GOFLAGS", Value: "-mod=mod"},
		{Key: "GOFLAGS", Value: "-mod=vendor"},
	}
	m := envMap(t, Compose(p, snap, overrides))
	if m["GOFLAGS"] != "-mod=vendor" {
		t.Errorf("GOFLAGS = %q, want the later override to win", m["GOFLAGS"])
	}
}

func TestComposePassthrough(t *testing.T) {
	snap := TakeFrom([]string{
		"PATH=/opt/cross/bin:/usr/bin",
		"HOME=/home/ci",
		"GOMODCACHE=/cache/gomod",
		"CGO_LDFLAGS=-L/opt/lib",
		"LD_PRELOAD=/evil.so",
		"DATABASE_URL=postgres://",
	})
	p := target.Platform{GOOS: "linux", GOARCH: "amd64"}
	m := envMap(t, Compose(p, snap, nil))

	for key, want := range map[string]string{
		"PATH":        "/opt/cross/bin:/usr/bin",
		"HOME":        "/home/ci",
		"GOMODCACHE":  "/cache/gomod",
		"CGO_LDFLAGS": "-L/opt/lib",
	} {
		if m[key] != want {
			t.Errorf("%s = %q, want %q", key, m[key], want)
		}
	}
	for _, key := range []string{"LD_PRELOAD", "DATABASE_URL"} {
		if _, ok := m[key]; ok {
			t.Errorf("%s leaked into the child environment", key)
		}
	}
}

// TestComposeAmbientPlatformNotInherited verifies that ambient GOOS and
// GOARCH never leak through: the composed pair always comes from the
// resolved platform.
func TestComposeAmbientPlatformNotInherited(t *testing.T) {
	snap := TakeFrom([]string{"GOOS=js", "GOARCH=wasm", "CGO_ENABLED=0"})
	p := target.Platform{GOOS: "linux", GOARCH: "arm64"}
	m := envMap(t, Compose(p, snap, nil))
	if m["GOOS"] != "linux" || m["GOARCH"] != "arm64" {
		t.Errorf("GOOS/GOARCH = %q/%q, want linux/arm64", m["GOOS"], m["GOARCH"])
	}
	if m["CGO_ENABLED"] != "1" {
		t.Errorf("CGO_ENABLED = %q, want %q", m["CGO_ENABLED"], "1")
	}
}

func TestComposeDeterministic(t *testing.T) {
	snap := TakeFrom([]string{"PATH=/usr/bin", "HOME=/home/ci", "GOPATH=/go"})
	overrides := []Var{{Key: "CC", Value: "zig cc"}}
	a := Compose(crossArm64, snap, overrides)
	b := Compose(crossArm64, snap, overrides)
	if strings.Join(a, "\x00") != strings.Join(b, "\x00") {
		t.Errorf("Compose not deterministic:\n%v\n%v", a, b)
	}
	for i := 1; i < len(a); i++ {
		if a[i-1] >= a[i] {
			t.Fatalf("Compose output not sorted: %q before %q", a[i-1], a[i])
		}
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		triple   string
		environ  []string
		wantOS   string
		wantArch string
	}{
		{
			name:     "explicit triple",
			triple:   "x86_64-pc-windows-gnu",
			environ:  []string{"TARGET=aarch64-unknown-linux-gnu"},
			wantOS:   "windows",
			wantArch: "amd64",
		},
		{
			name:     "ambient TARGET",
			environ:  []string{"TARGET=aarch64-unknown-linux-musl"},
			wantOS:   "linux",
			wantArch: "arm64",
		},
		{
			name:     "cfg pair fallback",
			environ:  []string{"CARGO_CFG_TARGET_OS=macos", "CARGO_CFG_TARGET_ARCH=aarch64"},
			wantOS:   "darwin",
			wantArch: "arm64",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveTarget(tt.triple, TakeFrom(tt.environ))
			if err != nil {
				t.Fatalf("ResolveTarget() = %v, want nil", err)
			}
			if p.GOOS != tt.wantOS || p.GOARCH != tt.wantArch {
				t.Errorf("platform = %s, want %s/%s", p, tt.wantOS, tt.wantArch)
			}
		})
	}

	t.Run("host fallback", func(t *testing.T) {
		p, err := ResolveTarget("", TakeFrom(nil))
		if err != nil {
			t.Fatalf("ResolveTarget() = %v, want nil", err)
		}
		if p != target.Host() {
			t.Errorf("platform = %+v, want the host platform", p)
		}
	})

	t.Run("unknown ambient TARGET", func(t *testing.T) {
		_, err := ResolveTarget("", TakeFrom([]string{"TARGET=wasm32-wasi"}))
		var ute *target.UnsupportedTargetError
		if !errors.As(err, &ute) {
			t.Fatalf("ResolveTarget() = %v, want *target.UnsupportedTargetError", err)
		}
	})
}

func TestTakeFrom(t *testing.T) {
	snap := TakeFrom([]string{
		"TARGET=aarch64-unknown-linux-gnu",
		"CARGO_CFG_TARGET_OS=linux",
		"CARGO_CFG_TARGET_ARCH=aarch64",
		"OUT_DIR=/build/out",
		"malformed",
	})
	if snap.Target != "aarch64-unknown-linux-gnu" {
		t.Errorf("Target = %q, want the TARGET value", snap.Target)
	}
	if snap.CfgOS != "linux" || snap.CfgArch != "aarch64" {
		t.Errorf("CfgOS/CfgArch = %q/%q, want linux/aarch64", snap.CfgOS, snap.CfgArch)
	}
	if snap.OutDir != "/build/out" {
		t.Errorf("OutDir = %q, want %q", snap.OutDir, "/build/out")
	}
}
