package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newBiasCmd(root *rootOptions) *cobra.Command {
	var projections []string

	cmd := &cobra.Command{
		Use:   "bias",
		Short: "Per-party systematic bias over stored accuracy reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(projections))
			for _, raw := range projections {
				id, err := uuid.Parse(raw)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --projection %q: %w", raw, err))
				}
				ids = append(ids, id)
			}
			return run(cmd.Context(), root, func(a *app) error {
				out, err := a.svc.Bias(a.ctx, ids)
				if err != nil {
					return classify(err)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringArrayVar(&projections, "projection", nil, "Projection UUID, repeatable (default: all reports)")
	return cmd
}
