package packager

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	// Register SHA-512 for the publish checksum.
	_ "crypto/sha512"
)

const (
	// archiveFileMode is the mode of published archives.
	archiveFileMode os.FileMode = 0o644

	// publishChecksumFunction verifies the archive bytes written to the output directory.
	publishChecksumFunction = crypto.SHA512
)

// errHashUnavailable is returned when the publish hash is not linked in.
var errHashUnavailable = errors.New("hash function unavailable")

// publish moves the archive at src to dst. The bytes are verified against a
// checksum taken before the move and swapped in atomically, so a reader of the
// output directory sees either no file or the complete archive. dst must not
// exist yet.
func publish(src, dst string) error {
	checksum, err := fileChecksum(src)
	if err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = in.Close()
	}()

	// go-update moves the current target aside before renaming the new file
	// into place, so an empty placeholder has to exist first.
	placeholder, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, archiveFileMode)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", dst, err)
	}

	if err = placeholder.Close(); err != nil {
		return fmt.Errorf("reserve %s: %w", dst, err)
	}

	err = goupdate.Apply(in, goupdate.Options{
		TargetPath: dst,
		TargetMode: archiveFileMode,
		Checksum:   checksum,
		Hash:       publishChecksumFunction,
	})
	if err != nil {
		_ = os.Remove(dst)

		return fmt.Errorf("publish %s: %w", filepath.Base(dst), err)
	}

	return nil
}

// fileChecksum hashes a file with publishChecksumFunction.
func fileChecksum(path string) ([]byte, error) {
	if !publishChecksumFunction.Available() {
		return nil, errHashUnavailable
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := publishChecksumFunction.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
