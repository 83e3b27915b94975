package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

func newCorrelateCmd(root *rootOptions) *cobra.Command {
	var (
		opts       swingOptions
		minSamples int
	)

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate district swing with demographic rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), root, func(a *app) error {
				res, err := a.svc.Correlate(a.ctx, root.jurisdiction, domain.ElectionID(opts.before), domain.ElectionID(opts.after), opts.party, minSamples)
				if err != nil {
					return classify(err)
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&minSamples, "min-samples", services.DefaultMinSamples, "Minimum paired districts per characteristic (at least 3)")
	return cmd
}
