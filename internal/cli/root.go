// Package cli implements the dist-s1-trigger command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/eunmann/dist-s1-trigger/internal/config"
	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/catalog"
	"github.com/eunmann/dist-s1-trigger/pkg/logging"
	"github.com/eunmann/dist-s1-trigger/pkg/s3fetch"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	// flags holds the values bound to the config flags; only the ones set on
	// the command line override Config.
	flags config.Config

	// Config is resolved before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dist-s1-trigger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "dist-s1-trigger",
		Short: "Decide which DIST-S1 products are ready to produce",
		Long: `dist-s1-trigger maps RTC-S1 granules onto DIST-S1 products using the
burst reference database, and triggers the products whose bursts are all
present or whose grace period has run out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	opts.flags.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewPreviousCommand(opts))
	cmd.AddCommand(NewNativeIDsCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	cfg.ApplyFlags(cmd.Flags(), &o.flags)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	logging.InitWriter(cmd.ErrOrStderr(), cfg.Debug, cfg.Human)
	cmd.SetContext(logctx.WithLogger(commandContext(cmd), logctx.DefaultLogger()))

	o.Config = cfg
	return nil
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}

// loadCatalog loads the burst catalog named by the configuration.
func (o *RootOptions) loadCatalog(ctx context.Context, refresh bool) (*catalog.LoadResult, error) {
	loader := &catalog.Loader{
		CacheDir:         o.Config.CacheDir,
		FetchConcurrency: o.Config.S3.Concurrency,
	}
	if o.Config.NeedsS3() {
		client, err := s3fetch.NewClient(ctx, o.Config.ClientOptions())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "create S3 client", err)
		}
		loader.Downloader = s3fetch.NewDownloader(client, s3fetch.DefaultDownloaderConfig())
	}

	res, err := loader.LoadDetailed(ctx, refresh, o.Config.BurstDB...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load burst database", err)
	}
	return res, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// fail reports err through the formatter and returns it for the exit code.
func fail(f *OutputFormatter, err error) error {
	if ferr := f.Error(err); ferr != nil {
		return ferr
	}
	return err
}
