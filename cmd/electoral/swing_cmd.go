package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

type swingOptions struct {
	before int64
	after  int64
	party  string
}

func (o *swingOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&o.before, "before", 0, "Earlier election id (required)")
	cmd.Flags().Int64Var(&o.after, "after", 0, "Later election id (required)")
	cmd.Flags().StringVar(&o.party, "party", "", "Party code (required)")
}

func (o *swingOptions) validate() error {
	if o.before <= 0 || o.after <= 0 || strings.TrimSpace(o.party) == "" {
		return withCode(exitUsage, fmt.Errorf("--before, --after and --party are required"))
	}
	return nil
}

func newSwingCmd(root *rootOptions) *cobra.Command {
	var opts swingOptions

	cmd := &cobra.Command{
		Use:   "swing",
		Short: "Vote share change of a party between two elections, per node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), root, func(a *app) error {
				rows, err := a.svc.Swing(a.ctx, root.jurisdiction, domain.ElectionID(opts.before), domain.ElectionID(opts.after), opts.party)
				if err != nil {
					return classify(err)
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}
