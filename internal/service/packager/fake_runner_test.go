package packager

import (
	"archive/zip"
	"context"
	"crypto/md5" //nolint:gosec // md5sum compatible output.
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fwpkg/internal/config"
	"github.com/oshokin/fwpkg/internal/service/common"
)

// fakeRunner emulates md5sum and zip in-process.
type fakeRunner struct {
	// calls records every command in order.
	calls []common.Command
	// checksumResult overrides the md5sum outcome when set.
	checksumResult *common.Result
	// checksumErr is returned instead of running md5sum.
	checksumErr error
	// archiveResult overrides the zip outcome when set.
	archiveResult *common.Result
	// archiveErr is returned instead of running zip.
	archiveErr error
}

var errUnexpectedCommand = errors.New("unexpected command")

// Run dispatches on the executable name.
func (f *fakeRunner) Run(_ context.Context, cmd common.Command) (*common.Result, error) {
	f.calls = append(f.calls, cmd)

	switch cmd.Name {
	case config.DefaultChecksumTool:
		if f.checksumErr != nil || f.checksumResult != nil {
			return f.checksumResult, f.checksumErr
		}

		return fakeMD5Sum(cmd)
	case config.DefaultArchiver:
		if f.archiveErr != nil || f.archiveResult != nil {
			return f.archiveResult, f.archiveErr
		}

		return fakeZip(cmd)
	default:
		return nil, fmt.Errorf("%s: %w", cmd.Name, errUnexpectedCommand)
	}
}

// fakeMD5Sum prints "<hash>  <name>" like md5sum does.
func fakeMD5Sum(cmd common.Command) (*common.Result, error) {
	data, err := os.ReadFile(filepath.Join(cmd.Dir, cmd.Args[0]))
	if err != nil {
		return &common.Result{ExitCode: 1, Output: []byte(err.Error())}, nil
	}

	return &common.Result{Output: fmt.Appendf(nil, "%x  %s\n", md5.Sum(data), cmd.Args[0])}, nil //nolint:gosec // md5sum compatible output.
}

// fakeZip implements `zip -q -r <archive> <dir>` relative to cmd.Dir.
func fakeZip(cmd common.Command) (*common.Result, error) {
	archive, dir := cmd.Args[2], cmd.Args[3]

	out, err := os.Create(filepath.Join(cmd.Dir, archive))
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(out)

	err = filepath.WalkDir(filepath.Join(cmd.Dir, dir), func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(cmd.Dir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}

		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
		}

		w, err := zw.CreateHeader(header)
		if err != nil || d.IsDir() {
			return err
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}

		defer func() {
			_ = in.Close()
		}()

		_, err = io.Copy(w, in)

		return err
	})
	if err != nil {
		_ = out.Close()

		return nil, err
	}

	if err = zw.Close(); err != nil {
		_ = out.Close()

		return nil, err
	}

	return &common.Result{}, out.Close()
}

// fixture is a variant root plus output and scratch directories.
type fixture struct {
	root    string
	output  string
	scratch string
}

// newFixture creates the directories and both scripts.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := t.TempDir()
	f := &fixture{
		root:    filepath.Join(base, "root"),
		output:  filepath.Join(base, "out"),
		scratch: filepath.Join(base, "scratch"),
	}

	for _, dir := range []string{filepath.Join(f.root, "scripts"), filepath.Join(f.root, "images"), f.output} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	f.write(t, "scripts/fw_upgrade.sh", "#!/bin/sh\n. ./firmware.conf\n")
	f.write(t, "scripts/check_result.sh", "#!/bin/sh\nexit 0\n")

	return f
}

// write creates a file under the variant root.
func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()

	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// config returns validated settings pointing at the fixture directories.
func (f *fixture) config(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		RootDir:    f.root,
		OutputDir:  f.output,
		ScratchDir: f.scratch,
		Timeout:    10 * time.Second,
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// requireNoScratch asserts that no working tree was left behind.
func (f *fixture) requireNoScratch(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(f.scratch)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	require.NoError(t, err)
	require.Empty(t, entries)
}

// outputs lists the files in the output directory.
func (f *fixture) outputs(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(f.output)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}

// readZip returns entry names (sorted) and file contents of an archive.
func readZip(t *testing.T, path string) ([]string, map[string]string) {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() {
		_ = zr.Close()
	}()

	names := make([]string, 0, len(zr.File))
	contents := make(map[string]string, len(zr.File))

	for _, file := range zr.File {
		names = append(names, file.Name)
		if file.FileInfo().IsDir() {
			continue
		}

		rc, err := file.Open()
		require.NoError(t, err)

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		contents[file.Name] = string(data)
	}

	sort.Strings(names)

	return names, contents
}
