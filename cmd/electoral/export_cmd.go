package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/export"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

type exportOptions struct {
	output     string
	election   int64
	projection string
	swing      swingOptions
	minSamples int
}

type exportSummary struct {
	Output       string `json:"output"`
	Aggregates   int    `json:"aggregates"`
	Projection   int    `json:"projection"`
	Accuracy     int    `json:"accuracy"`
	Swing        int    `json:"swing"`
	Correlations int    `json:"correlations"`
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored results and analyses to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.output) == "" {
				return withCode(exitUsage, fmt.Errorf("--output is required"))
			}
			if opts.election <= 0 {
				return withCode(exitUsage, fmt.Errorf("--election is required"))
			}
			var projectionID uuid.UUID
			if opts.projection != "" {
				id, err := uuid.Parse(opts.projection)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --projection: %w", err))
				}
				projectionID = id
			}
			withSwing := cmd.Flags().Changed("before") || cmd.Flags().Changed("after") || cmd.Flags().Changed("party")
			if withSwing {
				if err := opts.swing.validate(); err != nil {
					return err
				}
			}
			return run(cmd.Context(), root, func(a *app) error {
				report, err := buildExport(a, root.jurisdiction, opts, projectionID, withSwing)
				if err != nil {
					return err
				}
				if err := export.WriteFile(opts.output, report); err != nil {
					return withCode(exitDB, fmt.Errorf("write workbook: %w", err))
				}
				return writeJSON(cmd.OutOrStdout(), exportSummary{
					Output:       opts.output,
					Aggregates:   len(report.Aggregates),
					Projection:   len(report.Projection),
					Accuracy:     len(report.Accuracy),
					Swing:        len(report.Swing),
					Correlations: len(report.Correlations),
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "", "Workbook path (required)")
	cmd.Flags().Int64Var(&opts.election, "election", 0, "Election whose stored aggregates are exported (required)")
	cmd.Flags().StringVar(&opts.projection, "projection", "", "Projection UUID to export with its accuracy reports")
	cmd.Flags().IntVar(&opts.minSamples, "min-samples", services.DefaultMinSamples, "Minimum paired districts per characteristic")
	opts.swing.bind(cmd)
	return cmd
}

func buildExport(a *app, jurisdictionID int64, opts exportOptions, projectionID uuid.UUID, withSwing bool) (export.Report, error) {
	var report export.Report

	nodes, err := a.store.FetchGeoNodes(a.ctx, jurisdictionID)
	if err != nil {
		return report, withCode(exitDB, fmt.Errorf("fetch geo nodes: %w", err))
	}
	inScope := make(map[domain.NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		inScope[n.ID] = struct{}{}
	}

	aggs, err := a.store.FetchAggregates(a.ctx, domain.ElectionID(opts.election))
	if err != nil {
		return report, withCode(exitDB, fmt.Errorf("fetch aggregates: %w", err))
	}
	report.Aggregates = slices.DeleteFunc(aggs, func(r domain.AggregateRecord) bool {
		_, ok := inScope[r.GeoNodeID]
		return !ok
	})

	if projectionID != uuid.Nil {
		if report.Projection, err = a.store.FetchProjection(a.ctx, projectionID); err != nil {
			return report, withCode(exitDB, fmt.Errorf("fetch projection: %w", err))
		}
		if report.Accuracy, err = a.store.FetchAccuracyReports(a.ctx, []uuid.UUID{projectionID}); err != nil {
			return report, withCode(exitDB, fmt.Errorf("fetch accuracy reports: %w", err))
		}
	}

	if withSwing {
		before, after := domain.ElectionID(opts.swing.before), domain.ElectionID(opts.swing.after)
		if report.Swing, err = a.svc.Swing(a.ctx, jurisdictionID, before, after, opts.swing.party); err != nil {
			return report, classify(err)
		}
		res, err := a.svc.Correlate(a.ctx, jurisdictionID, before, after, opts.swing.party, opts.minSamples)
		if err != nil {
			return report, classify(err)
		}
		report.Correlations = res.Correlations
	}
	return report, nil
}
