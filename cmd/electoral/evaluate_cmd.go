package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		projection string
		election   int64
		node       int64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a stored projection against the real aggregate at one node",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectionID, err := uuid.Parse(projection)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --projection: %w", err))
			}
			if election <= 0 || node <= 0 {
				return withCode(exitUsage, fmt.Errorf("--election and --node are required"))
			}
			return run(cmd.Context(), root, func(a *app) error {
				report, err := a.svc.Evaluate(a.ctx, projectionID, domain.ElectionID(election), domain.NodeID(node))
				if err != nil {
					return classify(err)
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&projection, "projection", "", "Projection UUID (required)")
	cmd.Flags().Int64Var(&election, "election", 0, "Election id of the real outcome (required)")
	cmd.Flags().Int64Var(&node, "node", 0, "Geo node id to score (required)")
	return cmd
}
