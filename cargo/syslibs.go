package cargo

import "slices"

// systemLibs lists, per GOOS, the OS libraries the Go runtime needs when a
// c-archive is linked into a foreign binary. The table tracks the runtime,
// not the local machine: when a Go release grows a new OS dependency this
// table must grow with it.
var systemLibs = map[string][]string{
	"linux":     {"pthread", "resolv"},
	"android":   {"pthread", "log"},
	"darwin":    {"framework=CoreFoundation", "framework=Security", "resolv"},
	"ios":       {"framework=CoreFoundation", "framework=Security", "resolv"},
	"windows":   {"ws2_32", "userenv", "bcrypt", "ntdll"},
	"freebsd":   {"pthread"},
	"dragonfly": {"pthread"},
	"openbsd":   {"pthread"},
	"netbsd":    {"pthread"},
}

// SystemLibs returns the link-lib values the Go runtime requires on the
// given GOOS. The returned slice is a copy the caller may modify.
func SystemLibs(goos string) []string {
	return slices.Clone(systemLibs[goos])
}

// LinkSystemLibs emits one link directive per runtime dependency of the
// given GOOS.
func (e *Emitter) LinkSystemLibs(goos string) {
	for _, lib := range SystemLibs(goos) {
		e.LinkLib(lib)
	}
}
