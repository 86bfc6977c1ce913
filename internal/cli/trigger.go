package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/eunmann/dist-s1-trigger/internal/config"
	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/granule"
	"github.com/eunmann/dist-s1-trigger/pkg/ledger"
	"github.com/eunmann/dist-s1-trigger/pkg/ledger/pgledger"
	"github.com/eunmann/dist-s1-trigger/pkg/survey"
	"github.com/eunmann/dist-s1-trigger/pkg/trigger"
)

// TriggerOptions holds flags for the trigger command.
type TriggerOptions struct {
	*RootOptions
	Surveys []string
	Now     string
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trigger [granule-id...]",
		Short: "Run a survey and report triggered products",
		Long: `Run one survey of RTC-S1 granules through the burst catalog.

Granules come from --survey CSV files and from positional arguments.
Malformed ids and bursts outside the catalog are counted and skipped.
With a ledger configured, triggered batches are closed and later
granules for them are ignored.

Example:
  dist-s1-trigger trigger --burst-db burst_db.parquet --survey survey.csv.gz
  dist-s1-trigger trigger --grace-minutes 0 --ledger ledger.db --format json \
    OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231104T044523Z_S1A_30_v1.0`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(cmd, opts, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Surveys, "survey", nil, "survey CSV file(s) with a granule id column")
	cmd.Flags().StringVar(&opts.Now, "now", "", "decision time (RFC 3339), defaults to the current time")

	return cmd
}

func runTrigger(cmd *cobra.Command, opts *TriggerOptions, args []string) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd.OutOrStdout())

	records, err := gatherRecords(opts.Surveys, args)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, "read survey", err))
	}

	tc, err := opts.Config.Trigger()
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, "invalid config", err))
	}

	engineOpts, err := clockOption(opts.Now)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, "invalid flags", err))
	}

	l, closeLedger, err := openLedger(ctx, opts.Config)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, "open ledger", err))
	}
	defer closeLedger()
	if l != nil {
		engineOpts = append(engineOpts, trigger.WithLedger(l))
	}

	var reg *prometheus.Registry
	if opts.Config.MetricsTextfile != "" {
		reg = prometheus.NewRegistry()
		engineOpts = append(engineOpts, trigger.WithMetrics(trigger.NewMetrics(reg)))
	}

	loaded, err := opts.loadCatalog(ctx, false)
	if err != nil {
		return fail(f, err)
	}

	engine, err := trigger.New(loaded.Catalog, tc, engineOpts...)
	if err != nil {
		return fail(f, WrapExitError(ExitCommandError, "create engine", err))
	}

	report, err := engine.Run(ctx, records)
	if err != nil {
		return fail(f, WrapExitError(ExitFailure, "survey run", err))
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.Config.MetricsTextfile, reg); err != nil {
			log := logctx.FromContext(ctx)
			log.Warn().Err(err).Str("path", opts.Config.MetricsTextfile).Msg("failed to write metrics textfile")
		}
	}

	return f.Success(report)
}

func gatherRecords(surveys, ids []string) ([]granule.Record, error) {
	var records []granule.Record
	for _, path := range surveys {
		recs, err := survey.ReadFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	for _, id := range ids {
		records = append(records, granule.Record{ID: id})
	}
	return records, nil
}

func clockOption(now string) ([]trigger.Option, error) {
	if now == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return nil, fmt.Errorf("invalid --now %q: %w", now, err)
	}
	return []trigger.Option{trigger.WithClock(func() time.Time { return t })}, nil
}

// openLedger opens the configured ledger. Without one, it returns a nil
// ledger and a no-op close.
func openLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, func(), error) {
	log := logctx.FromContext(ctx)

	switch {
	case cfg.LedgerPath != "":
		l, err := ledger.OpenSQLite(ledger.DefaultConfig(cfg.LedgerPath))
		if err != nil {
			return nil, nil, err
		}
		return l, func() {
			if err := l.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("failed to close ledger")
			}
		}, nil
	case cfg.DatabaseURL != "":
		s, err := pgledger.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Shutdown, nil
	default:
		return nil, func() {}, nil
	}
}
