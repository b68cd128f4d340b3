package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the filesystem layout and external tools used by fwpkg.
type Config struct {
	// RootDir is the variant install directory holding scripts/ and images/.
	RootDir string `yaml:"root_dir"`
	// OutputDir receives the produced archive.
	OutputDir string `yaml:"output_dir"`
	// ScratchDir is where per-run working trees are created.
	ScratchDir string `yaml:"scratch_dir"`
	// Archiver is the zip executable.
	Archiver string `yaml:"archiver"`
	// ChecksumTool is the md5sum executable.
	ChecksumTool string `yaml:"checksum_tool"`
	// Timeout bounds every subprocess call.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the config file looked up when --config is not given.
	DefaultConfigFilename = "fwpkg.yaml"

	// DefaultArchiver is the archiving utility.
	DefaultArchiver = "zip"

	// DefaultChecksumTool is the checksum utility whose output lands in .md5 sidecars.
	DefaultChecksumTool = "md5sum"

	// DefaultTimeout bounds a single archiver or checksum call.
	DefaultTimeout = 5 * time.Minute

	// DefaultFilePermissions is the file permission for saved config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeTimeout is returned for a timeout below zero.
	errNegativeTimeout = errors.New("timeout must not be negative")
)

// Load reads configuration from path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load, but a missing file yields the defaults
// unless the caller asked for that file explicitly.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}

	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = new(Config)
	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errConfigIsNotSet
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	return data, nil
}

// Validate fills in defaults and makes every directory absolute.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Timeout < 0 {
		return errNegativeTimeout
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Archiver == "" {
		cfg.Archiver = DefaultArchiver
	}

	if cfg.ChecksumTool == "" {
		cfg.ChecksumTool = DefaultChecksumTool
	}

	var err error

	if cfg.RootDir, err = absOr(cfg.RootDir, executableDir); err != nil {
		return fmt.Errorf("resolve root dir: %w", err)
	}

	if cfg.OutputDir, err = absOr(cfg.OutputDir, os.Getwd); err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	cfg.ScratchDir, err = absOr(cfg.ScratchDir, func() (string, error) {
		return os.TempDir(), nil
	})
	if err != nil {
		return fmt.Errorf("resolve scratch dir: %w", err)
	}

	return nil
}

// absOr makes dir absolute, using fallback when dir is empty.
func absOr(dir string, fallback func() (string, error)) (string, error) {
	if dir == "" {
		var err error
		if dir, err = fallback(); err != nil {
			return "", err
		}
	}

	return filepath.Abs(dir)
}

// executableDir returns the directory of the running binary, with symlinks resolved.
func executableDir() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}

	return filepath.Dir(executable), nil
}
