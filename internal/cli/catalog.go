package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eunmann/dist-s1-trigger/pkg/catalog"
)

// CatalogResult describes the loaded burst catalog.
type CatalogResult struct {
	Digest    string        `json:"digest"`
	CachePath string        `json:"cache_path,omitempty"`
	FromCache bool          `json:"from_cache"`
	Stats     catalog.Stats `json:"stats"`
}

// WriteText prints the catalog summary with aligned columns.
func (r CatalogResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "digest\t%s\n", r.Digest)
	if r.CachePath != "" {
		fmt.Fprintf(tw, "cache\t%s (hit: %t)\n", r.CachePath, r.FromCache)
	}
	fmt.Fprintf(tw, "tiles\t%s\n", humanize.Comma(int64(r.Stats.Tiles)))
	fmt.Fprintf(tw, "products\t%s\n", humanize.Comma(int64(r.Stats.Products)))
	fmt.Fprintf(tw, "bursts\t%s\n", humanize.Comma(int64(r.Stats.Bursts)))
	fmt.Fprintf(tw, "rows\t%s\n", humanize.Comma(int64(r.Stats.Rows)))
	return tw.Flush()
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Load the burst database and print catalog statistics",
		Long: `Load the burst reference database, building or reusing the binary
catalog cache, and print its size. --refresh ignores any cached catalog
and downloaded sources and rebuilds them.

Example:
  dist-s1-trigger catalog --burst-db s3://bucket/burst_db.parquet --refresh`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd.OutOrStdout())

			loaded, err := rootOpts.loadCatalog(cmd.Context(), refresh)
			if err != nil {
				return fail(f, err)
			}
			return f.Success(CatalogResult{
				Digest:    loaded.Digest,
				CachePath: loaded.CachePath,
				FromCache: loaded.FromCache,
				Stats:     loaded.Catalog.Stats(),
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "rebuild the catalog cache from the sources")

	return cmd
}
