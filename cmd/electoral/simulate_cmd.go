package main

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

type simulateOptions struct {
	trials         int
	seed           int64
	workers        int
	projectionID   string
	election       int64
	weightElection int64
	estimatesFile  string
	fromElection   int64
	stddev         float64
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a Monte Carlo seat projection and store its summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), root, func(a *app) error {
				return runSimulate(cmd, a, root.jurisdiction, opts)
			})
		},
	}
	cmd.Flags().IntVar(&opts.trials, "trials", 0, "Number of trials (default: SIMULATION_TRIALS)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed (default: SIMULATION_SEED)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Worker goroutines (default: SIMULATION_WORKERS or GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.projectionID, "projection-id", "", "Projection UUID (default: random)")
	cmd.Flags().Int64Var(&opts.election, "election", 0, "Election the projection targets (optional)")
	cmd.Flags().Int64Var(&opts.weightElection, "weight-election", 0, "Weigh vote share means by the turnout of this election")
	cmd.Flags().StringVar(&opts.estimatesFile, "estimates", "", "Scenario file (.yaml/.toml) overriding stored estimates")
	cmd.Flags().Int64Var(&opts.fromElection, "from-election", 0, "Derive estimates from the stored aggregates of this election")
	cmd.Flags().Float64Var(&opts.stddev, "stddev", 0.02, "Standard deviation used with --from-election")
	return cmd
}

func runSimulate(cmd *cobra.Command, a *app, jurisdictionID int64, opts simulateOptions) error {
	if !cmd.Flags().Changed("trials") {
		opts.trials = a.cfg.Simulation.Trials
	}
	if !cmd.Flags().Changed("seed") {
		opts.seed = a.cfg.Simulation.Seed
	}
	if opts.estimatesFile != "" && opts.fromElection != 0 {
		return withCode(exitUsage, fmt.Errorf("--estimates and --from-election are mutually exclusive"))
	}

	params := services.ProjectionParams{
		ElectionID:       domain.ElectionID(opts.election),
		Trials:           opts.trials,
		Seed:             opts.seed,
		Workers:          opts.workers,
		WeightElectionID: domain.ElectionID(opts.weightElection),
	}
	if opts.projectionID != "" {
		id, err := uuid.Parse(opts.projectionID)
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --projection-id: %w", err))
		}
		params.ProjectionID = id
	}

	switch {
	case opts.estimatesFile != "":
		estimates, err := loadScenario(opts.estimatesFile)
		if err != nil {
			return withCode(exitValidation, err)
		}
		params.Estimates = estimates
	case opts.fromElection != 0:
		aggs, err := a.store.FetchAggregates(a.ctx, domain.ElectionID(opts.fromElection))
		if err != nil {
			return withCode(exitDB, fmt.Errorf("fetch aggregates: %w", err))
		}
		nodes, err := a.store.FetchGeoNodes(a.ctx, jurisdictionID)
		if err != nil {
			return withCode(exitDB, fmt.Errorf("fetch geo nodes: %w", err))
		}
		inScope := make(map[domain.NodeID]struct{}, len(nodes))
		for _, n := range nodes {
			inScope[n.ID] = struct{}{}
		}
		aggs = slices.DeleteFunc(aggs, func(r domain.AggregateRecord) bool {
			_, ok := inScope[r.GeoNodeID]
			return !ok
		})
		if len(aggs) == 0 {
			return withCode(exitValidation, fmt.Errorf("no stored aggregates for election %d; run aggregate first", opts.fromElection))
		}
		params.Estimates = services.EstimatesFromAggregates(aggs, opts.stddev)
	}

	out, err := a.svc.Project(a.ctx, jurisdictionID, params)
	if err != nil {
		return classify(err)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
