package cargo

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmitterDirectiveFormat(t *testing.T) {
	var sb strings.Builder
	e := NewEmitter(&sb)
	e.LinkSearch("/out/dir")
	e.LinkStatic("adder")
	e.LinkDynamic("adder")
	e.LinkLib("framework=Security")
	e.RerunIfChanged("go/adder.go")
	if err := e.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	want := []string{
		"cargo:rustc-link-search=native=/out/dir",
		"cargo:rustc-link-lib=static=adder",
		"cargo:rustc-link-lib=dylib=adder",
		"cargo:rustc-link-lib=framework=Security",
		"cargo:rerun-if-changed=go/adder.go",
	}
	got := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitterDeduplicates(t *testing.T) {
	var sb strings.Builder
	e := NewEmitter(&sb)
	e.LinkSearch("/out/dir")
	e.LinkSearch("/out/dir")
	e.LinkStatic("adder")
	e.LinkStatic("adder")
	e.LinkSearch("/other/dir")

	want := []string{
		"cargo:rustc-link-search=native=/out/dir",
		"cargo:rustc-link-lib=static=adder",
		"cargo:rustc-link-search=native=/other/dir",
	}
	got := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
}

type failWriter struct{ err error }

func (w failWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestEmitterErr(t *testing.T) {
	wantErr := errors.New("pipe closed")
	e := NewEmitter(failWriter{err: wantErr})
	e.LinkStatic("adder")
	e.LinkStatic("other")
	if !errors.Is(e.Err(), wantErr) {
		t.Errorf("Err() = %v, want %v", e.Err(), wantErr)
	}
}

func TestSystemLibs(t *testing.T) {
	tests := []struct {
		goos string
		want []string
	}{
		{"linux", []string{"pthread", "resolv"}},
		{"android", []string{"pthread", "log"}},
		{"darwin", []string{"framework=CoreFoundation", "framework=Security", "resolv"}},
		{"ios", []string{"framework=CoreFoundation", "framework=Security", "resolv"}},
		{"windows", []string{"ws2_32", "userenv", "bcrypt", "ntdll"}},
		{"freebsd", []string{"pthread"}},
		{"plan9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SystemLibs(tt.goos)); diff != "" {
				t.Errorf("SystemLibs(%q) mismatch (-want +got):\n%s", tt.goos, diff)
			}
		})
	}
}

func TestSystemLibsReturnsCopy(t *testing.T) {
	libs := SystemLibs("linux")
	libs[0] = "mutated"
	if got := SystemLibs("linux")[0]; got != "pthread" {
		t.Errorf("SystemLibs table mutated: first linux entry = %q, want %q", got, "pthread")
	}
}

func TestLinkSystemLibs(t *testing.T) {
	var sb strings.Builder
	e := NewEmitter(&sb)
	e.LinkSystemLibs("windows")

	want := []string{
		"cargo:rustc-link-lib=ws2_32",
		"cargo:rustc-link-lib=userenv",
		"cargo:rustc-link-lib=bcrypt",
		"cargo:rustc-link-lib=ntdll",
	}
	got := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
}
