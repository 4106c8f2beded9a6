// Package cargo emits the build-script directives a cargo host build reads
// from a build script's standard output.
package cargo

import (
	"fmt"
	"io"
)

// Emitter writes cargo build-script directives to a sink, each at most
// once. The sink is injectable so callers can buffer or capture the
// directive stream; production use points it at os.Stdout.
type Emitter struct {
	w    io.Writer
	seen map[string]bool
	err  error
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, seen: make(map[string]bool)}
}

// LinkSearch emits a native library search path directive for dir.
func (e *Emitter) LinkSearch(dir string) {
	e.print("cargo:rustc-link-search=native=" + dir)
}

// LinkStatic emits a static link directive for the library name.
func (e *Emitter) LinkStatic(name string) {
	e.print("cargo:rustc-link-lib=static=" + name)
}

// LinkDynamic emits a dynamic link directive for the library name.
func (e *Emitter) LinkDynamic(name string) {
	e.print("cargo:rustc-link-lib=dylib=" + name)
}

// LinkLib emits a link directive with an unqualified library value, the
// form used for OS-provided libraries and frameworks.
func (e *Emitter) LinkLib(lib string) {
	e.print("cargo:rustc-link-lib=" + lib)
}

// RerunIfChanged emits a rebuild-dependency directive for path.
func (e *Emitter) RerunIfChanged(path string) {
	e.print("cargo:rerun-if-changed=" + path)
}

// Err returns the first write error encountered, if any.
func (e *Emitter) Err() error { return e.err }

// print writes one directive line, suppressing exact duplicates for the
// lifetime of the emitter.
func (e *Emitter) print(directive string) {
	if e.seen[directive] {
		return
	}
	e.seen[directive] = true
	if _, err := fmt.Fprintln(e.w, directive); err != nil && e.err == nil {
		e.err = err
	}
}
