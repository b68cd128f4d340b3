package firmware

import (
	"path/filepath"
	"slices"
	"sort"
)

const (
	// ScriptsDirName is the directory under the variant root holding the bundled scripts.
	ScriptsDirName = "scripts"
	// ImagesDirName is the directory under the variant root holding pre-built images.
	ImagesDirName = "images"
	// StageDirName is the single top-level folder of every archive.
	StageDirName = "fw"
	// ArchiveExt is the extension of the produced package.
	ArchiveExt = ".zip"
	// ChecksumExt is appended to an image name for its checksum sidecar.
	ChecksumExt = ".md5"
	// NameSeparator joins prefix, version, asset name and run id.
	NameSeparator = "_"

	// UpgradeScriptName is run by the device to apply the package.
	UpgradeScriptName = "fw_upgrade.sh"
	// CheckScriptName is run by the device to report the upgrade result.
	CheckScriptName = "check_result.sh"

	// KernelImageName is the compressed kernel image of the device-image variant.
	KernelImageName = "linux.bin.gz"
	// UserlandImageName is the compressed root filesystem image of the device-image variant.
	UserlandImageName = "romfs.img.gz"
)

// ImageAsset declares an optional pre-built image a variant may bundle.
type ImageAsset struct {
	// Name is the file name under the images directory.
	Name string
	// ConfigKey is the generated config key referencing the staged image.
	ConfigKey string
	// Checksum requests an md5 sidecar for the staged image.
	Checksum bool
}

// Variant describes how one device family is packaged.
type Variant struct {
	// Name is the command name of the variant.
	Name string
	// Aliases are alternative command names, usually the board family.
	Aliases []string
	// Short is a one-line description for help output.
	Short string
	// Scripts are file names that must exist under ScriptsDirName.
	Scripts []string
	// Images are optional images looked up under ImagesDirName.
	Images []ImageAsset
	// RequireAnyImage makes a run with no images present a no-op.
	RequireAnyImage bool
	// ConfigFile is the generated config file name; empty disables it.
	ConfigFile string
	// IdentityLines emits PREFIX and VERSION lines into the config.
	IdentityLines bool
	// SkipEmptyConfig omits the config file when no line was generated.
	SkipEmptyConfig bool
	// PackageKey is the config key for a bundled package file; empty disables --package.
	PackageKey string
	// UpgradeDisabledKey is the config key set by --upgrade-disabled; empty disables the flag.
	UpgradeDisabledKey string
}

// SupportsPackage reports whether the variant accepts an external package file.
func (v *Variant) SupportsPackage() bool {
	return v.PackageKey != ""
}

// SupportsUpgradeDisabled reports whether the variant accepts --upgrade-disabled.
func (v *Variant) SupportsUpgradeDisabled() bool {
	return v.UpgradeDisabledKey != ""
}

// RequiredAssets resolves the bundled scripts against the variant root.
func (v *Variant) RequiredAssets(root string) []RequiredAsset {
	assets := make([]RequiredAsset, 0, len(v.Scripts))
	for _, name := range v.Scripts {
		assets = append(assets, RequiredAsset{
			SourcePath: filepath.Join(root, ScriptsDirName, name),
			Name:       name,
		})
	}

	return assets
}

// OptionalAssets resolves the declared images against the variant root.
func (v *Variant) OptionalAssets(root string) []OptionalAsset {
	assets := make([]OptionalAsset, 0, len(v.Images))
	for _, image := range v.Images {
		assets = append(assets, OptionalAsset{
			SourcePath: filepath.Join(root, ImagesDirName, image.Name),
			Name:       image.Name,
			ConfigKey:  image.ConfigKey,
			Checksum:   image.Checksum,
		})
	}

	return assets
}

// stagedNames lists every file name the variant itself places in the stage
// folder for spec: scripts, staged images with their sidecars and the config.
func (v *Variant) stagedNames(spec *PackageSpec) []string {
	names := slices.Clone(v.Scripts)

	for _, image := range v.Images {
		staged := spec.StagedName(image.Name)
		names = append(names, staged)

		if image.Checksum {
			names = append(names, staged+ChecksumExt)
		}
	}

	if v.ConfigFile != "" {
		names = append(names, v.ConfigFile)
	}

	return names
}

// WritesConfig reports whether cfg should be written to the staged tree.
func (v *Variant) WritesConfig(cfg *GeneratedConfig) bool {
	if v.ConfigFile == "" {
		return false
	}

	return !v.SkipEmptyConfig || cfg.Len() > 0
}

//nolint:gochecknoglobals // Built-in descriptors are immutable after init.
var builtinVariants = []*Variant{
	{
		Name:    "device-image",
		Aliases: []string{"armadillo"},
		Short:   "Package kernel and userland images with checksums and firmware.conf",
		Scripts: []string{UpgradeScriptName, CheckScriptName},
		Images: []ImageAsset{
			{Name: KernelImageName, ConfigKey: "KERNEL", Checksum: true},
			{Name: UserlandImageName, ConfigKey: "USERLAND", Checksum: true},
		},
		RequireAnyImage: true,
		ConfigFile:      "firmware.conf",
		IdentityLines:   true,
	},
	{
		Name:               "gateway",
		Aliases:            []string{"openblocks"},
		Short:              "Package the gateway scripts with an optional Debian package and package.conf",
		Scripts:            []string{UpgradeScriptName, CheckScriptName},
		ConfigFile:         "package.conf",
		SkipEmptyConfig:    true,
		PackageKey:         "SSGW_DEBPKG",
		UpgradeDisabledKey: "UPGRADE_DISABLED",
	},
	{
		Name:    "generic",
		Short:   "Package only the upgrade and result-check scripts",
		Scripts: []string{UpgradeScriptName, CheckScriptName},
	},
}

// Variants returns the built-in variants ordered by name.
func Variants() []*Variant {
	variants := slices.Clone(builtinVariants)
	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Name < variants[j].Name
	})

	return variants
}

// LookupVariant finds a built-in variant by name or alias.
func LookupVariant(name string) (*Variant, bool) {
	for _, v := range builtinVariants {
		if v.Name == name || slices.Contains(v.Aliases, name) {
			return v, true
		}
	}

	return nil, false
}
