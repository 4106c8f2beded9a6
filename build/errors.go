package build

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPackages reports a build configured without any Go packages.
	ErrNoPackages = errors.New("no packages to build")

	// ErrNoName reports a build invoked without a library name.
	ErrNoName = errors.New("no library name")

	// ErrNoOutDir reports that no output directory was configured and none
	// could be taken from the environment.
	ErrNoOutDir = errors.New("no output directory: set one explicitly or export OUT_DIR")
)

// ArtifactMissingError reports a toolchain run that exited successfully but
// did not produce the expected archive.
type ArtifactMissingError struct {
	Path string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("build succeeded but archive %s was not produced", e.Path)
}

// StageError reports a failure moving finished artifacts into the output
// directory.
type StageError struct {
	Path string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed to stage artifacts into %s: %v", e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
