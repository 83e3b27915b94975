package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/csvstore"
	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/persistence"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
	"github.com/iota-uz/iota-electoral/pkg/composables"
	"github.com/iota-uz/iota-electoral/pkg/configuration"
)

type importSummary struct {
	Mode          string  `json:"mode"`
	Input         string  `json:"input"`
	Jurisdictions []int64 `json:"jurisdictions"`
	Nodes         int64   `json:"nodes"`
	Elections     int     `json:"elections"`
	VoteRecords   int64   `json:"vote_records"`
	Estimates     int64   `json:"estimates"`
	Demographics  int64   `json:"demographics"`
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a CSV directory and load it into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root.input, apply)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply changes to DB (default is dry-run)")
	return cmd
}

func runImport(cmd *cobra.Command, input string, apply bool) error {
	if strings.TrimSpace(input) == "" {
		return withCode(exitUsage, fmt.Errorf("--input is required"))
	}
	ds, err := csvstore.LoadDataset(input)
	if err != nil {
		return withCode(exitValidation, err)
	}
	jurisdictions, err := validateDataset(ds)
	if err != nil {
		return withCode(exitValidation, err)
	}

	summary := importSummary{
		Mode:          "dry_run",
		Input:         input,
		Jurisdictions: jurisdictions,
		Nodes:         int64(len(ds.Nodes)),
		Elections:     len(ds.ElectionIDs()),
		VoteRecords:   int64(len(ds.VoteRecords)),
		Estimates:     int64(len(ds.Estimates)),
		Demographics:  int64(len(ds.Demographics)),
	}
	if !apply {
		return writeJSON(cmd.OutOrStdout(), summary)
	}

	ctx := cmd.Context()
	pool, err := connectDB(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	stats, err := persistence.NewElectoralRepository().Import(composables.WithPool(ctx, pool), ds)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return withCode(exitDBWrite, fmt.Errorf("import: %w", err))
		}
		return withCode(exitDB, fmt.Errorf("import: %w", err))
	}
	summary.Mode = "applied"
	summary.Nodes = stats.Nodes
	summary.Elections = stats.Elections
	summary.VoteRecords = stats.VoteRecords
	summary.Estimates = stats.Estimates
	summary.Demographics = stats.Demographics
	return writeJSON(cmd.OutOrStdout(), summary)
}

// validateDataset builds every jurisdiction's hierarchy and checks that the
// records reference known nodes of the right level. It returns the
// jurisdiction ids in ascending order.
func validateDataset(ds *domain.Dataset) ([]int64, error) {
	byJurisdiction := make(map[int64][]domain.GeoNode)
	levels := make(map[domain.NodeID]domain.Level, len(ds.Nodes))
	for _, n := range ds.Nodes {
		byJurisdiction[n.JurisdictionID] = append(byJurisdiction[n.JurisdictionID], n)
		levels[n.ID] = n.Level
	}
	ids := make([]int64, 0, len(byJurisdiction))
	for id := range byJurisdiction {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, err := services.BuildHierarchy(byJurisdiction[id]); err != nil {
			return nil, fmt.Errorf("jurisdiction %d: %w", id, err)
		}
	}

	for _, r := range ds.VoteRecords {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", csvstore.VoteRecordsFile, err)
		}
		level, ok := levels[r.GeoNodeID]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %d", csvstore.VoteRecordsFile, domain.ErrUnknownNode, r.GeoNodeID)
		}
		if level != domain.LevelDistrict {
			return nil, fmt.Errorf("%s: %w: node %d is %s, not a district", csvstore.VoteRecordsFile, domain.ErrInvalidRecord, r.GeoNodeID, level)
		}
	}
	if err := ds.Estimates.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", csvstore.EstimatesFile, err)
	}
	for k := range ds.Estimates {
		if _, ok := levels[k.GeoNodeID]; !ok {
			return nil, fmt.Errorf("%s: %w: %d", csvstore.EstimatesFile, domain.ErrUnknownNode, k.GeoNodeID)
		}
	}
	for _, d := range ds.Demographics {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", csvstore.DemographicsFile, err)
		}
		level, ok := levels[d.GeoNodeID]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %d", csvstore.DemographicsFile, domain.ErrUnknownNode, d.GeoNodeID)
		}
		if level != domain.LevelDistrict {
			return nil, fmt.Errorf("%s: %w: node %d is %s, not a district", csvstore.DemographicsFile, domain.ErrInvalidRecord, d.GeoNodeID, level)
		}
	}
	return ids, nil
}
