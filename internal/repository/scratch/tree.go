package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// dirPermissions is used for the run directory and its stage folder.
	dirPermissions = 0o755
	// filePermissions is used for generated files.
	filePermissions = 0o644
)

var (
	// ErrExists is returned when the run directory is already taken.
	ErrExists = errors.New("scratch directory already exists")
	// errInvalidName is returned for staged names that are not plain file names.
	errInvalidName = errors.New("staged name must be a plain file name")
	// errNotRegular is returned when a staged source is not a regular file.
	errNotRegular = errors.New("not a regular file")
)

// Tree is the working tree of one packaging run: <base>/<runID>/<stage>/.
// It is owned by a single run and must be removed when the run ends.
type Tree struct {
	// root is the run directory; the archive is built here.
	root string
	// stage is the folder that becomes the single top-level entry of the archive.
	stage string
}

// Create makes <base>/<runID>/<stageName>. The run directory must not exist yet.
func Create(base, runID, stageName string) (*Tree, error) {
	if err := checkName(runID); err != nil {
		return nil, err
	}

	if err := checkName(stageName); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(base, dirPermissions); err != nil {
		return nil, fmt.Errorf("create scratch base: %w", err)
	}

	root := filepath.Join(base, runID)
	if err := os.Mkdir(root, dirPermissions); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", root, ErrExists)
		}

		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	tree := &Tree{
		root:  root,
		stage: filepath.Join(root, stageName),
	}

	if err := os.Mkdir(tree.stage, dirPermissions); err != nil {
		_ = tree.Remove()

		return nil, fmt.Errorf("create stage directory: %w", err)
	}

	return tree, nil
}

// Root returns the run directory.
func (t *Tree) Root() string {
	return t.root
}

// StageDir returns the stage folder.
func (t *Tree) StageDir() string {
	return t.stage
}

// StageName returns the stage folder name relative to Root.
func (t *Tree) StageName() string {
	return filepath.Base(t.stage)
}

// Path returns the location of a staged file.
func (t *Tree) Path(name string) string {
	return filepath.Join(t.stage, name)
}

// CopyIn copies src into the stage folder as name, keeping its mode and modification time.
func (t *Tree) CopyIn(src, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	dst := t.Path(name)
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}

	return dst, nil
}

// WriteFile writes a generated file into the stage folder.
func (t *Tree) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}

	if err := os.WriteFile(t.Path(name), data, filePermissions); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

// Files lists the staged file names in lexical order.
func (t *Tree) Files() ([]string, error) {
	entries, err := os.ReadDir(t.stage)
	if err != nil {
		return nil, fmt.Errorf("list stage: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// Remove deletes the whole run directory. It is safe to call more than once.
func (t *Tree) Remove() error {
	if t == nil || t.root == "" {
		return nil
	}

	if _, err := os.Stat(t.root); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := os.RemoveAll(t.root); err != nil {
		return fmt.Errorf("remove scratch directory: %w", err)
	}

	return nil
}

// copyFile copies a regular file together with its permission bits and timestamps.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", src, errNotRegular)
	}

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	if err = out.Close(); err != nil {
		return err
	}

	// The umask may have narrowed the mode on create.
	if err = os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// checkName rejects empty names, dot entries and anything containing a path separator.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, errInvalidName)
	}

	return nil
}
