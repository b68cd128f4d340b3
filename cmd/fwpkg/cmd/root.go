package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/fwpkg/internal/config"
	"github.com/oshokin/fwpkg/internal/domain/firmware"
	"github.com/oshokin/fwpkg/internal/logger"
	"github.com/oshokin/fwpkg/internal/service/inspector"
	"github.com/oshokin/fwpkg/internal/service/packager"
	"github.com/oshokin/fwpkg/internal/version"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	// configPath to the configuration YAML file.
	configPath string
	// rootDir overrides the variant install directory.
	rootDir string
	// outputDir overrides where archives are written.
	outputDir string
	// logLevel is the minimum level of log lines on stderr.
	logLevel string
}

// Execute runs the fwpkg CLI and exits with non-zero status on error.
func Execute() {
	if code := execute(os.Args[1:], os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// execute runs the CLI with args and returns the process exit status.
// Errors are printed as a single "Error: ..." line, followed by the usage of
// the failing command for configuration errors.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return 0
	}

	if cmd != nil {
		logger.DebugKV(cmd.Context(), "Command failed", "command", cmd.CommandPath(), "error", err)
	}

	_, _ = fmt.Fprintln(stderr, "Error:", err)

	var cfgErr *firmware.ConfigError
	if errors.As(err, &cfgErr) && cmd != nil {
		_ = cmd.Usage()
	}

	return 1
}

// newRootCmd builds the command tree: one packaging command per variant plus helpers.
func newRootCmd() *cobra.Command {
	flags := new(globalFlags)

	rootCmd := &cobra.Command{
		Use:   "fwpkg",
		Short: "Build firmware update packages for embedded devices",
		Long: `Collects pre-built kernel and userland images, the upgrade and result-check
scripts and a generated configuration file into a single zip archive that
the device downloads and applies.

Each device family is a subcommand. Scripts are read from <root>/scripts and
images from <root>/images, where <root> defaults to the directory of this
executable.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(flags.logLevel)
			if !ok {
				return &firmware.ConfigError{Reason: "unknown log level " + flags.logLevel}
			}

			logger.SetLevel(level)

			return nil
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &firmware.ConfigError{Reason: err.Error()}
	})

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	persistent.StringVarP(&flags.rootDir, "root", "r", "", "variant directory holding scripts/ and images/")
	persistent.StringVarP(&flags.outputDir, "output-dir", "o", "", "directory the package is written to")
	persistent.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	for _, v := range firmware.Variants() {
		rootCmd.AddCommand(newVariantCmd(flags, v))
	}

	rootCmd.AddCommand(newInspectCmd(), newConfigCmd(flags))
	version.AttachCobraVersionCommand(rootCmd)

	return rootCmd
}

// newVariantCmd builds the packaging command of variant v.
func newVariantCmd(flags *globalFlags, v *firmware.Variant) *cobra.Command {
	opts := &packager.Options{Variant: v.Name}

	cmd := &cobra.Command{
		Use:     v.Name + " --version VERSION",
		Aliases: v.Aliases,
		Short:   v.Short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts.ConfigPath = flags.configPath
			opts.ConfigExplicit = cmd.Flags().Changed("config")
			opts.RootDir = flags.rootDir
			opts.OutputDir = flags.outputDir

			res, err := packager.Run(ctx, opts)
			if errors.Is(err, firmware.ErrNothingToPackage) {
				logger.Info(ctx, err.Error())
				return nil
			}

			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.ArchiveName)

			return err
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "[REQUIRED] version of firmware")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "file name prefix")

	if v.SupportsPackage() {
		cmd.Flags().StringVar(&opts.PackagePath, "package", "", "path to the Debian package file to bundle")
	}

	if v.SupportsUpgradeDisabled() {
		cmd.Flags().BoolVar(&opts.UpgradeDisabled, "upgrade-disabled", false, "skip the system upgrade step on the device")
	}

	return cmd
}

// newInspectCmd builds the command that lists and verifies a produced package.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "List a firmware package and verify its image checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspector.Inspect(cmd.Context(), args[0])
			if report != nil {
				if renderErr := report.Render(cmd.OutOrStdout()); renderErr != nil {
					return renderErr
				}
			}

			return err
		},
	}
}

// newConfigCmd builds the command that prints or saves the effective settings.
func newConfigCmd(flags *globalFlags) *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadOrDefault(flags.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}

			if flags.rootDir != "" {
				cfg.RootDir = flags.rootDir
			}

			if flags.outputDir != "" {
				cfg.OutputDir = flags.outputDir
			}

			if err = config.Validate(cfg); err != nil {
				return err
			}

			if savePath != "" {
				if err = config.Save(savePath, cfg); err != nil {
					return err
				}

				logger.Infof(cmd.Context(), "Saved settings to %s", savePath)

				return nil
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}

	cmd.Flags().StringVar(&savePath, "save", "", "write the configuration to this file instead of printing it")

	return cmd
}
