package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

type aggregateOutput struct {
	JurisdictionID  int64                    `json:"jurisdiction_id"`
	ElectionID      domain.ElectionID        `json:"election_id"`
	Records         []domain.AggregateRecord `json:"records"`
	Omitted         []domain.OmittedNode     `json:"omitted"`
	UndefinedShares []domain.UndefinedShare  `json:"undefined_shares"`
	Inconsistencies []string                 `json:"inconsistencies"`
}

func newAggregateCmd(root *rootOptions) *cobra.Command {
	var (
		election int64
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll district results up the hierarchy and store the aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if election <= 0 {
				return withCode(exitUsage, fmt.Errorf("--election is required"))
			}
			return run(cmd.Context(), root, func(a *app) error {
				if verify {
					return runVerify(cmd, a, root.jurisdiction, domain.ElectionID(election))
				}
				return runAggregate(cmd, a, root.jurisdiction, domain.ElectionID(election))
			})
		},
	}
	cmd.Flags().Int64Var(&election, "election", 0, "Election id (required)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check stored aggregates against a recomputation without writing")
	return cmd
}

func runAggregate(cmd *cobra.Command, a *app, jurisdictionID int64, electionID domain.ElectionID) error {
	res, err := a.svc.Aggregate(a.ctx, jurisdictionID, electionID)
	if err != nil && len(res.Inconsistencies) == 0 {
		return classify(err)
	}
	out := aggregateOutput{
		JurisdictionID:  jurisdictionID,
		ElectionID:      electionID,
		Records:         res.Records,
		Omitted:         res.Omitted,
		UndefinedShares: res.UndefinedShares,
		Inconsistencies: inconsistencyMessages(res),
	}
	if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
		return werr
	}
	return classify(err)
}

func runVerify(cmd *cobra.Command, a *app, jurisdictionID int64, electionID domain.ElectionID) error {
	drift, err := a.svc.Verify(a.ctx, jurisdictionID, electionID)
	if err != nil {
		return classify(err)
	}
	if err := writeJSON(cmd.OutOrStdout(), drift); err != nil {
		return err
	}
	if !drift.Clean() {
		return withCode(exitConsistency, fmt.Errorf("stored aggregates of election %d drift from a recomputation (%d patch ops, %d inconsistencies)",
			electionID, len(drift.Patch), len(drift.Inconsistencies)))
	}
	return nil
}

func inconsistencyMessages(res services.AggregationResult) []string {
	out := make([]string, 0, len(res.Inconsistencies))
	for _, inc := range res.Inconsistencies {
		out = append(out, inc.Error())
	}
	return out
}
