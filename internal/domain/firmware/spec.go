package firmware

import (
	"path/filepath"
	"slices"
	"strings"
)

// PackageSpec is the immutable input of one packaging run.
type PackageSpec struct {
	// Version is the firmware version and is required.
	Version string
	// Prefix is an optional file name prefix.
	Prefix string
	// PackagePath is an external package file to bundle, already expanded to an absolute path.
	PackagePath string
	// UpgradeDisabled asks the device not to run its system upgrade step.
	UpgradeDisabled bool
}

// pathSeparators may not appear in the version or the prefix, which become file names.
const pathSeparators = `/\`

// RequiredAsset is a file that must exist before packaging starts.
type RequiredAsset struct {
	SourcePath string
	Name       string
}

// OptionalAsset is a file bundled only when present.
type OptionalAsset struct {
	SourcePath string
	Name       string
	ConfigKey  string
	Checksum   bool
}

// Validate checks the requested options against what variant v accepts.
func (s *PackageSpec) Validate(v *Variant) error {
	if strings.TrimSpace(s.Version) == "" {
		return &ConfigError{Reason: "version is required"}
	}

	if strings.ContainsAny(s.Version, pathSeparators) {
		return &ConfigError{Reason: "version must not contain a path separator: " + s.Version}
	}

	if strings.ContainsAny(s.Prefix, pathSeparators) {
		return &ConfigError{Reason: "prefix must not contain a path separator: " + s.Prefix}
	}

	if s.PackagePath != "" && !v.SupportsPackage() {
		return &ConfigError{Reason: "variant " + v.Name + " does not bundle a package file"}
	}

	if s.UpgradeDisabled && !v.SupportsUpgradeDisabled() {
		return &ConfigError{Reason: "variant " + v.Name + " has no upgrade step to disable"}
	}

	if s.PackagePath != "" {
		name := filepath.Base(s.PackagePath)
		if slices.Contains(v.stagedNames(s), name) {
			return &ConfigError{Reason: "package file name " + name + " is already used inside the package"}
		}
	}

	return nil
}

// PrefixValue is the PREFIX config value: the prefix followed by the separator, or empty.
func (s *PackageSpec) PrefixValue() string {
	if s.Prefix == "" {
		return ""
	}

	return s.Prefix + NameSeparator
}

// BaseName is "{prefix_}{version}", shared by staged images and the archive.
func (s *PackageSpec) BaseName() string {
	return s.PrefixValue() + s.Version
}

// StagedName is the name an optional image gets inside the package.
func (s *PackageSpec) StagedName(assetName string) string {
	return s.BaseName() + NameSeparator + assetName
}

// ArchiveName is the file name of the package produced by run runID.
func (s *PackageSpec) ArchiveName(runID string) string {
	return s.BaseName() + NameSeparator + runID + ArchiveExt
}
