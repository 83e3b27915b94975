package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func ptr(v float64) *float64 { return &v }

func sampleReport() Report {
	projectionID := uuid.MustParse("6f1f0c4e-1f6e-4c38-9d43-0c1f2e6a9b11")
	return Report{
		Aggregates: []domain.AggregateRecord{{
			GeoNodeID: 2, ElectionID: 2021, Level: domain.LevelRegion, TotalVotes: 2000, TotalSeats: 2, SourceDistrictCount: 2,
			Parties: []domain.PartyAggregate{
				{PartyCode: "A", Votes: 902, VoteShare: ptr(0.451234), Seats: 1},
				{PartyCode: "B", Votes: 0, VoteShare: nil, Seats: 0},
			},
		}},
		Projection: []domain.ProjectionSummary{{
			ProjectionID: projectionID, GeoNodeID: 1, Level: domain.LevelJurisdictionGeneral, Trials: 1000, Seed: 42, TotalSeats: 3,
			Parties: []domain.PartyProjection{{PartyCode: "A", SeatMedian: 2, SeatP05: 1, SeatP95: 3, VoteShareMean: 0.5, GovernmentProbability: 0.87654}},
		}},
		Accuracy: []domain.AccuracyReport{{
			ProjectionID: projectionID, ElectionID: 2025, GeoNodeID: 1, TotalSeats: 3, OverallAccuracy: 2.0 / 3.0, SeatErrorSum: 1,
			Parties: []domain.PartyAccuracy{{PartyCode: "A", PredictedSeats: 2, ActualSeats: 1, AbsoluteError: 1}},
		}},
		Swing: []domain.SwingRow{
			{GeoNodeID: 10, Level: domain.LevelDistrict, PartyCode: "A", ShareBefore: ptr(0.6), ShareAfter: ptr(0.5687655), Change: ptr(-0.0312345)},
			{GeoNodeID: 11, Level: domain.LevelDistrict, PartyCode: "A", ShareAfter: ptr(0.3)},
		},
		Correlations: []domain.Correlation{{
			CharacteristicID: "2255", N: 12, PearsonR: 0.123456, PearsonP: 0.70214567, SpearmanRho: -0.5, SpearmanP: 0.01,
			Significant: true, Strength: "weak",
		}},
	}
}

func cell(t *testing.T, f *excelize.File, sheet, axis string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, axis)
	require.NoError(t, err)
	return v
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.Equal(t, []string{SheetAggregates, SheetProjection, SheetAccuracy, SheetSwing, SheetCorrelations}, f.GetSheetList())

	require.Equal(t, "geo_node_id", cell(t, f, SheetAggregates, "A1"))
	require.Equal(t, "vote_share_pct", cell(t, f, SheetAggregates, "F1"))
	require.Equal(t, "REGION", cell(t, f, SheetAggregates, "B2"))
	require.Equal(t, "45.12", cell(t, f, SheetAggregates, "F2"))
	require.Equal(t, "", cell(t, f, SheetAggregates, "F3"))

	require.Equal(t, "87.65", cell(t, f, SheetProjection, "L2"))
	require.Equal(t, "50", cell(t, f, SheetProjection, "K2"))

	require.Equal(t, "66.67", cell(t, f, SheetAccuracy, "E2"))

	require.Equal(t, "-3.12", cell(t, f, SheetSwing, "F2"))
	require.Equal(t, "", cell(t, f, SheetSwing, "D3"))

	require.Equal(t, "0.1235", cell(t, f, SheetCorrelations, "C2"))
	require.Equal(t, "0.702146", cell(t, f, SheetCorrelations, "D2"))
	require.Equal(t, "weak", cell(t, f, SheetCorrelations, "H2"))

	panes, err := f.GetPanes(SheetSwing)
	require.NoError(t, err)
	require.True(t, panes.Freeze)
	require.Equal(t, 1, panes.YSplit)
}

func TestWriteFile_EmptyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "electoral.xlsx")
	require.NoError(t, WriteFile(path, Report{}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(SheetCorrelations)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "characteristic_id", rows[0][0])
}

func TestPercent(t *testing.T) {
	require.Equal(t, 45.12, percent(0.451234))
	require.Equal(t, 100.0, percent(1))
	require.Equal(t, 0.0, percent(0))
	require.Equal(t, "", percentPtr(nil))
}
