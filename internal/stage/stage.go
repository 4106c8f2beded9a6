// Package stage places toolchain outputs into the host build's output
// directory.
package stage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goar-build/goar/target"
)

// Artifact records where the build outputs were staged.
type Artifact struct {
	Archive string
	Header  string // empty when the toolchain emitted no header
}

// ArchiveName returns the platform-convention file name for a library.
// Static archives follow libNAME.a everywhere except MSVC targets, which
// expect NAME.lib; shared mode follows the target's dynamic library
// convention. The convention is decided by the target ABI, not the host.
func ArchiveName(name, buildMode string, p target.Platform) string {
	shared := buildMode == "c-shared"
	msvc := strings.HasSuffix(p.Triple, "-msvc")
	switch {
	case shared && p.GOOS == "windows":
		return name + ".dll"
	case shared && (p.GOOS == "darwin" || p.GOOS == "ios"):
		return "lib" + name + ".dylib"
	case shared:
		return "lib" + name + ".so"
	case msvc:
		return name + ".lib"
	default:
		return "lib" + name + ".a"
	}
}

// HeaderPath returns the path of the header the go tool generates next to
// an archive: the archive path with its extension swapped for .h.
func HeaderPath(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive)) + ".h"
}

// Stage verifies that the archive the toolchain was instructed to produce
// exists and copies it, plus the generated header when present, into
// destDir under the same file names. Existing files are replaced
// atomically so a concurrent reader never sees a torn archive. A missing
// archive surfaces the underlying not-exist error for the caller to
// classify.
func Stage(archive, destDir string) (Artifact, error) {
	if _, err := os.Stat(archive); err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Artifact{}, err
	}

	dst := filepath.Join(destDir, filepath.Base(archive))
	if err := copyAtomic(archive, dst); err != nil {
		return Artifact{}, err
	}
	staged := Artifact{Archive: dst}

	header := HeaderPath(archive)
	if _, err := os.Stat(header); err == nil {
		hdst := filepath.Join(destDir, filepath.Base(header))
		if err := copyAtomic(header, hdst); err != nil {
			return Artifact{}, err
		}
		staged.Header = hdst
	}
	return staged, nil
}

func copyAtomic(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeFileAtomic(dst, f, 0o644)
}
