// Package export renders electoral results as an .xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const (
	SheetAggregates   = "Aggregates"
	SheetProjection   = "Projection"
	SheetAccuracy     = "Accuracy"
	SheetSwing        = "Swing"
	SheetCorrelations = "Correlations"
)

// Report is everything one workbook can hold; empty sections still get a
// sheet with its header row.
type Report struct {
	Aggregates   []domain.AggregateRecord
	Projection   []domain.ProjectionSummary
	Accuracy     []domain.AccuracyReport
	Swing        []domain.SwingRow
	Correlations []domain.Correlation
}

var hundred = decimal.NewFromInt(100)

// percent renders a 0-1 fraction as a 0-100 value with two decimals.
func percent(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Mul(hundred).Round(2).Float64()
	return f
}

func percentPtr(v *float64) any {
	if v == nil {
		return ""
	}
	return percent(*v)
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

func (r Report) sheets() []sheet {
	return []sheet{
		{
			name:   SheetAggregates,
			header: []string{"geo_node_id", "level", "election_id", "party_code", "votes", "vote_share_pct", "seats", "total_votes", "total_seats", "source_districts"},
			widths: []float64{12, 22, 12, 12, 12, 15, 8, 12, 12, 16},
			rows:   aggregateRows(r.Aggregates),
		},
		{
			name:   SheetProjection,
			header: []string{"projection_id", "geo_node_id", "level", "trials", "seed", "total_seats", "party_code", "seat_median", "seat_p05", "seat_p95", "vote_share_mean_pct", "government_probability_pct"},
			widths: []float64{38, 12, 22, 10, 10, 12, 12, 12, 10, 10, 20, 26},
			rows:   projectionRows(r.Projection),
		},
		{
			name:   SheetAccuracy,
			header: []string{"projection_id", "election_id", "geo_node_id", "total_seats", "overall_accuracy_pct", "seat_error_sum", "party_code", "predicted_seats", "actual_seats", "absolute_error"},
			widths: []float64{38, 12, 12, 12, 20, 15, 12, 16, 13, 15},
			rows:   accuracyRows(r.Accuracy),
		},
		{
			name:   SheetSwing,
			header: []string{"geo_node_id", "level", "party_code", "share_before_pct", "share_after_pct", "change_pts"},
			widths: []float64{12, 22, 12, 17, 16, 12},
			rows:   swingRows(r.Swing),
		},
		{
			name:   SheetCorrelations,
			header: []string{"characteristic_id", "n", "pearson_r", "pearson_p", "spearman_rho", "spearman_p", "significant", "strength"},
			widths: []float64{18, 8, 11, 11, 13, 12, 12, 10},
			rows:   correlationRows(r.Correlations),
		},
	}
}

func aggregateRows(in []domain.AggregateRecord) [][]any {
	var out [][]any
	for _, a := range in {
		for _, p := range a.Parties {
			out = append(out, []any{
				int64(a.GeoNodeID), a.Level.String(), int64(a.ElectionID), p.PartyCode, p.Votes,
				percentPtr(p.VoteShare), p.Seats, a.TotalVotes, a.TotalSeats, a.SourceDistrictCount,
			})
		}
	}
	return out
}

func projectionRows(in []domain.ProjectionSummary) [][]any {
	var out [][]any
	for _, s := range in {
		for _, p := range s.Parties {
			out = append(out, []any{
				s.ProjectionID.String(), int64(s.GeoNodeID), s.Level.String(), s.Trials, s.Seed, s.TotalSeats,
				p.PartyCode, p.SeatMedian, p.SeatP05, p.SeatP95,
				percent(p.VoteShareMean), percent(p.GovernmentProbability),
			})
		}
	}
	return out
}

func accuracyRows(in []domain.AccuracyReport) [][]any {
	var out [][]any
	for _, r := range in {
		for _, p := range r.Parties {
			out = append(out, []any{
				r.ProjectionID.String(), int64(r.ElectionID), int64(r.GeoNodeID), r.TotalSeats,
				percent(r.OverallAccuracy), round(r.SeatErrorSum, 2),
				p.PartyCode, round(p.PredictedSeats, 2), p.ActualSeats, round(p.AbsoluteError, 2),
			})
		}
	}
	return out
}

func swingRows(in []domain.SwingRow) [][]any {
	out := make([][]any, 0, len(in))
	for _, s := range in {
		out = append(out, []any{
			int64(s.GeoNodeID), s.Level.String(), s.PartyCode,
			percentPtr(s.ShareBefore), percentPtr(s.ShareAfter), percentPtr(s.Change),
		})
	}
	return out
}

func correlationRows(in []domain.Correlation) [][]any {
	out := make([][]any, 0, len(in))
	for _, c := range in {
		out = append(out, []any{
			c.CharacteristicID, c.N,
			round(c.PearsonR, 4), round(c.PearsonP, 6),
			round(c.SpearmanRho, 4), round(c.SpearmanP, 6),
			c.Significant, c.Strength,
		})
	}
	return out
}

// Build lays out the workbook in memory.
func Build(r Report) (*excelize.File, error) {
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#9BC2E6", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, sh := range r.sheets() {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.name); err != nil {
				_ = f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeSheet(f, sh, headerStyle); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sh.name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	header := make([]any, len(sh.header))
	for i, h := range sh.header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.name, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(sh.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, w := range sh.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, col, col, w); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sh.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func Write(w io.Writer, r Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.WriteTo(w)
	return err
}

func WriteFile(path string, r Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.SaveAs(path)
}
