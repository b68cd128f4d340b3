package firmware

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNothingToPackage is returned when a variant needs at least one image and none exist.
// It is informational: no archive is built and the run is not a failure.
var ErrNothingToPackage = errors.New("kernel and/or userland images do not exist")

// ConfigError reports invalid or missing command-line input.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// MissingFileError reports a required file that is absent or not a regular file.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return e.Path + " was not found"
}

func (e *MissingFileError) Unwrap() error {
	return e.Err
}

// ChecksumError reports a failed checksum tool invocation.
type ChecksumError struct {
	File     string
	ExitCode int
	Output   string
	Err      error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("failed to compute checksum of %s: %s", e.File, describeFailure(e.ExitCode, e.Output, e.Err))
}

func (e *ChecksumError) Unwrap() error {
	return e.Err
}

// ArchiveError reports a failed archiver invocation or a failed publish of its result.
type ArchiveError struct {
	Archive  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to archive package %s: %s", e.Archive, describeFailure(e.ExitCode, e.Output, e.Err))
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// VerificationError lists the checksum sidecars of an archive that did not verify.
type VerificationError struct {
	Failures []string
}

func (e *VerificationError) Error() string {
	return "package verification failed: " + strings.Join(e.Failures, "; ")
}

// describeFailure renders the cause of a failed subprocess for error messages.
func describeFailure(exitCode int, output string, err error) string {
	var cause string
	if err != nil {
		cause = err.Error()
	} else {
		cause = fmt.Sprintf("exit status %d", exitCode)
	}

	if output = strings.TrimSpace(output); output != "" {
		cause += ": " + output
	}

	return cause
}
