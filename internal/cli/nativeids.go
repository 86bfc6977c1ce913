package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/dist-s1-trigger/pkg/cmrquery"
	"github.com/eunmann/dist-s1-trigger/pkg/product"
)

// NativeIDsResult is the CMR query fragment for one product.
type NativeIDsResult struct {
	ProductID  string `json:"product_id"`
	BurstCount int    `json:"burst_count"`
	Query      string `json:"query"`
}

// WriteText prints the query fragment.
func (r NativeIDsResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Query)
	return err
}

// NewNativeIDsCommand creates the native-ids command.
func NewNativeIDsCommand(rootOpts *RootOptions) *cobra.Command {
	var productID string

	cmd := &cobra.Command{
		Use:   "native-ids",
		Short: "Print the CMR native-id query for a product's RTC granules",
		Long: `Print a CMR granule search fragment matching every RTC-S1 granule of
the product's bursts, with burst ids in sorted order.

Example:
  dist-s1-trigger native-ids --product-id 31RGQ_2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd.OutOrStdout())

			id, err := product.ParseID(productID)
			if err != nil {
				return fail(f, WrapExitError(ExitCommandError, "invalid flags", err))
			}
			loaded, err := rootOpts.loadCatalog(cmd.Context(), false)
			if err != nil {
				return fail(f, err)
			}
			if !loaded.Catalog.HasProduct(id) {
				return fail(f, WrapExitError(ExitFailure, "native ids", fmt.Errorf("product %s not in burst database", id)))
			}

			n, query := cmrquery.BuildNativeIDQuery(id, loaded.Catalog)
			return f.Success(NativeIDsResult{ProductID: id.String(), BurstCount: n, Query: query})
		},
	}

	cmd.Flags().StringVar(&productID, "product-id", "", "product id {tile}_{group} (required)")
	_ = cmd.MarkFlagRequired("product-id")

	return cmd
}
