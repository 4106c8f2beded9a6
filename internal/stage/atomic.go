//go:build !windows

package stage

import (
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// writeFileAtomic writes r to filename so that concurrent readers observe
// either the old content or the new, never a partial write.
func writeFileAtomic(filename string, r io.Reader, perm os.FileMode) error {
	t, err := renameio.TempFile("", filename)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, r); err != nil {
		return err
	}
	if err := t.Chmod(perm); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
