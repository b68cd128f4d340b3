package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oshokin/fwpkg/internal/config"
	"github.com/oshokin/fwpkg/internal/domain/firmware"
	"github.com/oshokin/fwpkg/internal/logger"
	"github.com/oshokin/fwpkg/internal/repository/scratch"
	"github.com/oshokin/fwpkg/internal/service/common"
	"github.com/oshokin/fwpkg/internal/version"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is the YAML settings file.
	ConfigPath string
	// ConfigExplicit makes a missing ConfigPath an error instead of falling back to defaults.
	ConfigExplicit bool
	// RootDir overrides the variant install directory from the settings.
	RootDir string
	// OutputDir overrides the archive destination from the settings.
	OutputDir string
	// Variant is the variant name or alias.
	Variant string
	// Version is the firmware version.
	Version string
	// Prefix is the optional file name prefix.
	Prefix string
	// PackagePath is the external package file to bundle, as typed by the user.
	PackagePath string
	// UpgradeDisabled disables the upgrade step on the device.
	UpgradeDisabled bool
}

// Result describes a created package.
type Result struct {
	// RunID is the random identifier of the run.
	RunID string
	// ArchiveName is the file name of the package.
	ArchiveName string
	// ArchivePath is the absolute path of the package.
	ArchivePath string
	// Staged lists the files placed in the stage folder, in lexical order.
	Staged []string
	// Config is the generated config text, empty when none was written.
	Config string
}

// Packager runs the packaging pipeline for one variant.
type Packager struct {
	// cfg holds directories and tool names.
	cfg *config.Config
	// variant describes what gets bundled.
	variant *firmware.Variant
	// runner executes the checksum tool and the archiver.
	runner common.Runner
	// newRunID generates the run identifier.
	newRunID func() (string, error)
}

// Option configures a Packager.
type Option func(*Packager)

// WithRunner replaces the subprocess runner.
func WithRunner(r common.Runner) Option {
	return func(p *Packager) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithRunIDSource replaces the run identifier generator.
func WithRunIDSource(fn func() (string, error)) Option {
	return func(p *Packager) {
		if fn != nil {
			p.newRunID = fn
		}
	}
}

// errUnknownVariant is wrapped into a ConfigError for unsupported variant names.
var errUnknownVariant = errors.New("unknown variant")

// Run loads settings, builds the package and reports where it was written.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "packager")

	variant, ok := firmware.LookupVariant(opts.Variant)
	if !ok {
		return nil, &firmware.ConfigError{Reason: fmt.Sprintf("%s: %v", opts.Variant, errUnknownVariant)}
	}

	logger.DebugKV(ctx, "Starting packaging run", "variant", variant.Name, "fwpkg_version", version.Short())

	spec := &firmware.PackageSpec{
		Version:         strings.TrimSpace(opts.Version),
		Prefix:          opts.Prefix,
		UpgradeDisabled: opts.UpgradeDisabled,
	}

	if opts.PackagePath != "" {
		expanded, err := ExpandPath(opts.PackagePath)
		if err != nil {
			return nil, fmt.Errorf("expand package path: %w", err)
		}

		spec.PackagePath = expanded
	}

	// Usage errors win over settings errors.
	if err := spec.Validate(variant); err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(opts.ConfigPath, opts.ConfigExplicit)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if opts.RootDir != "" {
		cfg.RootDir = opts.RootDir
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	if actor, actorErr := common.DetectActor(); actorErr == nil {
		ctx = logger.WithKV(ctx, "actor", actor.String())
	}

	pkg := New(cfg, variant, WithRunner(common.NewExecRunner(common.WithTimeout(cfg.Timeout))))

	return pkg.Build(ctx, spec)
}

// New creates a packager for variant using cfg. cfg must already be validated.
func New(cfg *config.Config, variant *firmware.Variant, opts ...Option) *Packager {
	p := &Packager{
		cfg:      cfg,
		variant:  variant,
		runner:   common.NewExecRunner(common.WithTimeout(cfg.Timeout)),
		newRunID: firmware.NewRunID,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Build validates the inputs, stages them in a fresh working tree, archives
// the tree and publishes the archive into the output directory.
// The working tree is removed on every return path.
func (p *Packager) Build(ctx context.Context, spec *firmware.PackageSpec) (*Result, error) {
	ctx = logger.WithKV(ctx, "variant", p.variant.Name)

	present, err := p.validate(spec)
	if err != nil {
		return nil, err
	}

	runID, err := p.newRunID()
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "run_id", runID)

	tree, err := scratch.Create(p.cfg.ScratchDir, runID, firmware.StageDirName)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rmErr := tree.Remove(); rmErr != nil {
			logger.WarnKV(ctx, "Unable to remove working tree", "path", tree.Root(), "error", rmErr)
		}
	}()

	logger.DebugKV(ctx, "Created working tree", "path", tree.Root())

	conf, err := p.stage(ctx, tree, spec, present)
	if err != nil {
		return nil, err
	}

	archiveName := spec.ArchiveName(runID)
	if err = p.archive(ctx, tree, archiveName); err != nil {
		return nil, err
	}

	staged, err := tree.Files()
	if err != nil {
		return nil, err
	}

	archivePath := filepath.Join(p.cfg.OutputDir, archiveName)
	if err = publish(filepath.Join(tree.Root(), archiveName), archivePath); err != nil {
		return nil, &firmware.ArchiveError{Archive: archiveName, Err: err}
	}

	logger.InfoKV(ctx, "Firmware package has been created", "path", archivePath)

	return &Result{
		RunID:       runID,
		ArchiveName: archiveName,
		ArchivePath: archivePath,
		Staged:      staged,
		Config:      conf,
	}, nil
}

// validate checks the flags, the required scripts, the package file and the
// optional images, in that order, and returns the images that are present.
func (p *Packager) validate(spec *firmware.PackageSpec) ([]firmware.OptionalAsset, error) {
	if err := spec.Validate(p.variant); err != nil {
		return nil, err
	}

	for _, asset := range p.variant.RequiredAssets(p.cfg.RootDir) {
		if err := requireFile(asset.SourcePath); err != nil {
			return nil, err
		}
	}

	if spec.PackagePath != "" {
		if err := requireFile(spec.PackagePath); err != nil {
			return nil, err
		}
	}

	var present []firmware.OptionalAsset

	for _, asset := range p.variant.OptionalAssets(p.cfg.RootDir) {
		ok, err := isRegularFile(asset.SourcePath)
		if err != nil {
			return nil, err
		}

		if ok {
			present = append(present, asset)
		}
	}

	if p.variant.RequireAnyImage && len(present) == 0 {
		return nil, firmware.ErrNothingToPackage
	}

	return present, nil
}

// stage fills the working tree and returns the written config text.
func (p *Packager) stage(
	ctx context.Context,
	tree *scratch.Tree,
	spec *firmware.PackageSpec,
	present []firmware.OptionalAsset,
) (string, error) {
	for _, asset := range p.variant.RequiredAssets(p.cfg.RootDir) {
		if _, err := tree.CopyIn(asset.SourcePath, asset.Name); err != nil {
			return "", err
		}

		logger.DebugKV(ctx, "Staged script", "file", asset.Name)
	}

	for _, asset := range present {
		stagedName := spec.StagedName(asset.Name)
		if _, err := tree.CopyIn(asset.SourcePath, stagedName); err != nil {
			return "", err
		}

		logger.InfoKV(ctx, "Staged image", "file", stagedName)

		if !asset.Checksum {
			continue
		}

		if err := p.writeChecksum(ctx, tree, stagedName); err != nil {
			return "", err
		}
	}

	var packageName string

	if spec.PackagePath != "" {
		packageName = filepath.Base(spec.PackagePath)
		if _, err := tree.CopyIn(spec.PackagePath, packageName); err != nil {
			return "", err
		}

		logger.InfoKV(ctx, "Staged package file", "file", packageName)
	}

	conf := firmware.ComposeConfig(p.variant, spec, present, packageName)
	if !p.variant.WritesConfig(conf) {
		return "", nil
	}

	text := conf.String()
	if err := tree.WriteFile(p.variant.ConfigFile, []byte(text)); err != nil {
		return "", err
	}

	logger.DebugKV(ctx, "Wrote config", "file", p.variant.ConfigFile, "lines", conf.Len())

	return text, nil
}

// writeChecksum runs the checksum tool next to a staged image and stores its output line.
func (p *Packager) writeChecksum(ctx context.Context, tree *scratch.Tree, stagedName string) error {
	res, err := p.runner.Run(ctx, common.Command{
		Dir:  tree.StageDir(),
		Name: p.cfg.ChecksumTool,
		Args: []string{stagedName},
	})
	if err != nil {
		return &firmware.ChecksumError{File: stagedName, Err: err}
	}

	if !res.Success() {
		return &firmware.ChecksumError{File: stagedName, ExitCode: res.ExitCode, Output: string(res.Output)}
	}

	line := strings.TrimRight(string(res.Output), "\r\n") + "\n"

	return tree.WriteFile(stagedName+firmware.ChecksumExt, []byte(line))
}

// archive runs the archiver over the stage folder, writing archiveName into the tree root.
func (p *Packager) archive(ctx context.Context, tree *scratch.Tree, archiveName string) error {
	cmd := common.Command{
		Dir:  tree.Root(),
		Name: p.cfg.Archiver,
		Args: []string{"-q", "-r", archiveName, tree.StageName()},
	}

	logger.DebugKV(ctx, "Archiving", "command", cmd.String())

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return &firmware.ArchiveError{Archive: archiveName, Err: err}
	}

	if !res.Success() {
		return &firmware.ArchiveError{Archive: archiveName, ExitCode: res.ExitCode, Output: string(res.Output)}
	}

	if _, err = os.Stat(filepath.Join(tree.Root(), archiveName)); err != nil {
		return &firmware.ArchiveError{Archive: archiveName, Output: string(res.Output), Err: err}
	}

	return nil
}

// requireFile returns a MissingFileError unless path is a regular file.
func requireFile(path string) error {
	ok, err := isRegularFile(path)
	if err != nil {
		return &firmware.MissingFileError{Path: path, Err: err}
	}

	if !ok {
		return &firmware.MissingFileError{Path: path, Err: os.ErrNotExist}
	}

	return nil
}

// isRegularFile reports whether path exists and is a regular file.
// Only errors other than "does not exist" are returned.
func isRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.Mode().IsRegular(), nil
}

// envReference matches $NAME and ${NAME} references in a path.
var envReference = regexp.MustCompile(`\$(\w+|\{[^}]*\})`)

// ExpandPath expands environment variables and a leading ~ and makes path absolute.
// References to unset variables are kept as written.
func ExpandPath(path string) (string, error) {
	path = envReference.ReplaceAllStringFunc(path, func(ref string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(ref[1:], "{"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}

		return ref
	})

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Abs(path)
}
