package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fwpkg/internal/version"
)

// cliFixture is a variant root, output and scratch directory for CLI runs.
type cliFixture struct {
	root    string
	output  string
	scratch string
}

// newCLIFixture creates both scripts and points TMPDIR at a private scratch base.
func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	base := t.TempDir()
	f := &cliFixture{
		root:    filepath.Join(base, "Armadillo-IoT"),
		output:  filepath.Join(base, "out"),
		scratch: filepath.Join(base, "tmp"),
	}

	for _, dir := range []string{filepath.Join(f.root, "scripts"), filepath.Join(f.root, "images"), f.output, f.scratch} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	for _, name := range []string{"fw_upgrade.sh", "check_result.sh"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.root, "scripts", name), []byte("#!/bin/sh\n"), 0o755))
	}

	t.Setenv("TMPDIR", f.scratch)

	return f
}

// run executes the CLI against the fixture.
func (f *cliFixture) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer

	args = append(args, "--root", f.root, "--output-dir", f.output, "--log-level", "error")
	code := execute(args, &stdout, &stderr)

	return code, stdout.String(), stderr.String()
}

// requireEmptyDir asserts dir has no entries.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// requireTools skips when the real archiver or checksum tool is missing.
func requireTools(t *testing.T) {
	t.Helper()

	for _, tool := range []string{"zip", "md5sum"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s is not available", tool)
		}
	}
}

// TestCLI_MissingVersionPrintsUsage checks the configuration error path.
func TestCLI_MissingVersionPrintsUsage(t *testing.T) {
	f := newCLIFixture(t)

	code, stdout, stderr := f.run("generic")
	require.Equal(t, 1, code)
	require.Empty(t, stdout)
	require.True(t, strings.HasPrefix(stderr, "Error: version is required\n"), stderr)
	require.Contains(t, stderr, "Usage:")
	require.Contains(t, stderr, "--prefix")
	requireEmptyDir(t, f.output)
}

// TestCLI_VersionWithSeparatorPrintsUsage rejects a version that is not a plain file name part.
func TestCLI_VersionWithSeparatorPrintsUsage(t *testing.T) {
	f := newCLIFixture(t)

	code, stdout, stderr := f.run("generic", "--version", "1.0/beta")
	require.Equal(t, 1, code)
	require.Empty(t, stdout)
	require.True(t, strings.HasPrefix(stderr, "Error: version must not contain a path separator: 1.0/beta\n"), stderr)
	require.Contains(t, stderr, "Usage:")
	requireEmptyDir(t, f.output)
	requireEmptyDir(t, f.scratch)
}

// TestCLI_UnknownFlagIsConfigError verifies that variant-specific flags are not accepted elsewhere.
func TestCLI_UnknownFlagIsConfigError(t *testing.T) {
	f := newCLIFixture(t)

	code, _, stderr := f.run("generic", "--version", "1.0", "--upgrade-disabled")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Error: unknown flag: --upgrade-disabled")
	require.Contains(t, stderr, "Usage:")
}

// TestCLI_MissingScript names the missing script without printing usage.
func TestCLI_MissingScript(t *testing.T) {
	f := newCLIFixture(t)
	script := filepath.Join(f.root, "scripts", "check_result.sh")
	require.NoError(t, os.Remove(script))

	code, stdout, stderr := f.run("generic", "--version", "1.0")
	require.Equal(t, 1, code)
	require.Empty(t, stdout)
	require.Equal(t, "Error: "+script+" was not found\n", stderr)
	requireEmptyDir(t, f.output)
	requireEmptyDir(t, f.scratch)
}

// TestCLI_DeviceImageWithoutImagesExitsCleanly is the informational no-op path.
func TestCLI_DeviceImageWithoutImagesExitsCleanly(t *testing.T) {
	f := newCLIFixture(t)

	code, stdout, stderr := f.run("armadillo", "--version", "1.0")
	require.Equal(t, 0, code)
	require.Empty(t, stdout)
	require.NotContains(t, stderr, "Error:")
	requireEmptyDir(t, f.output)
	requireEmptyDir(t, f.scratch)
}

// TestCLI_GenericBuildsArchive runs the real tools end to end and inspects the result.
func TestCLI_GenericBuildsArchive(t *testing.T) {
	requireTools(t)

	f := newCLIFixture(t)

	code, stdout, stderr := f.run("generic", "--version", "1.0", "--prefix", "acme")
	require.Equal(t, 0, code, stderr)

	name := strings.TrimSpace(stdout)
	require.Regexp(t, regexp.MustCompile(`^acme_1\.0_[0-9a-f]{32}\.zip$`), name)
	require.FileExists(t, filepath.Join(f.output, name))
	requireEmptyDir(t, f.scratch)

	var out, errOut bytes.Buffer

	code = execute([]string{"inspect", filepath.Join(f.output, name)}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), "fw/fw_upgrade.sh")
	require.Contains(t, out.String(), "fw/check_result.sh")
	require.NotContains(t, out.String(), "Config")
}

// TestCLI_ConfigCommand prints and saves the effective settings.
func TestCLI_ConfigCommand(t *testing.T) {
	f := newCLIFixture(t)

	code, stdout, stderr := f.run("config")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "root_dir: "+f.root)
	require.Contains(t, stdout, "archiver: zip")

	saved := filepath.Join(f.output, "fwpkg.yaml")
	code, _, stderr = f.run("config", "--save", saved)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr = f.run("config", "--config", saved)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "checksum_tool: md5sum")

	code, _, stderr = f.run("config", "--config", filepath.Join(f.output, "absent.yaml"))
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Error: read settings")
}

// TestCLI_Version prints build metadata.
func TestCLI_Version(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, execute([]string{"version"}, &stdout, &stderr))
	require.Equal(t, version.Full()+"\n", stdout.String())
}

// TestCLI_VariantCommands ensures every variant and alias is reachable.
func TestCLI_VariantCommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()

	for _, name := range []string{"device-image", "armadillo", "gateway", "openblocks", "generic", "inspect", "config"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.NotEqual(t, root, cmd, name)
	}

	gateway, _, err := root.Find([]string{"gateway"})
	require.NoError(t, err)
	require.NotNil(t, gateway.Flags().Lookup("package"))
	require.NotNil(t, gateway.Flags().Lookup("upgrade-disabled"))

	generic, _, err := root.Find([]string{"generic"})
	require.NoError(t, err)
	require.Nil(t, generic.Flags().Lookup("package"))
}
