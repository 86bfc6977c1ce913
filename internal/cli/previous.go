package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/dist-s1-trigger/pkg/sequence"
	"github.com/eunmann/dist-s1-trigger/pkg/survey"
)

// PreviousOptions holds flags for the previous command.
type PreviousOptions struct {
	*RootOptions
	DownloadBatchID string
	Candidates      string
}

// PreviousResult is the answer of the previous command.
type PreviousResult struct {
	DownloadBatchID string `json:"download_batch_id"`
	Previous        string `json:"previous,omitempty"`
	Found           bool   `json:"found"`
}

// WriteText prints the previous download batch id, or "none".
func (r PreviousResult) WriteText(w io.Writer) error {
	if !r.Found {
		_, err := fmt.Fprintln(w, "none")
		return err
	}
	_, err := fmt.Fprintln(w, r.Previous)
	return err
}

// NewPreviousCommand creates the previous command.
func NewPreviousCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviousOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "previous",
		Short: "Find the product batch preceding a download batch",
		Long: `Walk back from a download batch (p{tile}_{group}_a{cycle}) to the
previous product of the same tile. Group 0 wraps to the highest group of
the previous acquisition cycle.

With --candidates, only batches that one of the listed granules
contributes to are accepted, and the search stops below the lowest
acquisition cycle among them.

Example:
  dist-s1-trigger previous --download-batch-id p31RGQ_0_a302
  dist-s1-trigger previous --download-batch-id p31RGQ_0_a302 --candidates granules.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrevious(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DownloadBatchID, "download-batch-id", "", "download batch id to start from (required)")
	cmd.Flags().StringVar(&opts.Candidates, "candidates", "", "survey CSV of candidate granules")
	_ = cmd.MarkFlagRequired("download-batch-id")

	return cmd
}

func runPrevious(cmd *cobra.Command, opts *PreviousOptions) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd.OutOrStdout())

	loaded, err := opts.loadCatalog(ctx, false)
	if err != nil {
		return fail(f, err)
	}
	nav := sequence.NewNavigator(loaded.Catalog, sequence.WithMaxSteps(opts.Config.MaxSearchSteps))

	res := PreviousResult{DownloadBatchID: opts.DownloadBatchID}
	if opts.Candidates == "" {
		res.Previous, err = nav.PreviousID(opts.DownloadBatchID)
		res.Found = err == nil
	} else {
		recs, rerr := survey.ReadFile(opts.Candidates)
		if rerr != nil {
			return fail(f, WrapExitError(ExitCommandError, "read candidates", rerr))
		}
		candidates := make([]string, len(recs))
		for i, r := range recs {
			candidates[i] = r.ID
		}
		res.Previous, res.Found, err = nav.PreviousAmong(ctx, loaded.Catalog, opts.DownloadBatchID, candidates)
	}

	switch {
	case errors.Is(err, sequence.ErrNoPreviousProduct):
		if ferr := f.Success(res); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "previous product", err)
	case err != nil:
		return fail(f, WrapExitError(ExitCommandError, "previous product", err))
	}
	return f.Success(res)
}
