package persistence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/pkg/composables"
	"github.com/iota-uz/iota-electoral/pkg/itf"
)

func setupElectoralDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	itf.RequirePostgres(tb)

	pool := itf.NewPool(tb)
	dir := filepath.Clean(filepath.Join("..", "..", "..", "..", "migrations", "electoral"))
	for _, f := range []string{"00001_electoral_baseline.sql", "00002_electoral_results.sql"} {
		_, err := pool.Exec(context.Background(), readGooseUpSQL(tb, filepath.Join(dir, f)))
		require.NoError(tb, err, "failed migration %s", f)
	}
	return pool
}

func readGooseUpSQL(tb testing.TB, path string) string {
	tb.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(tb, err)

	s := string(raw)
	if idx := strings.Index(s, "-- +goose Down"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func integrationDataset() *domain.Dataset {
	parent := func(id domain.NodeID) *domain.NodeID { return &id }
	return &domain.Dataset{
		Nodes: []domain.GeoNode{
			{ID: 1, JurisdictionID: 1, Name: "Country", Code: "C", Level: domain.LevelJurisdictionGeneral},
			{ID: 2, JurisdictionID: 1, Name: "East", Code: "E", Level: domain.LevelRegion, ParentID: parent(1)},
			{ID: 10, JurisdictionID: 1, Name: "E-1", Code: "E1", Level: domain.LevelDistrict, ParentID: parent(2)},
			{ID: 11, JurisdictionID: 1, Name: "E-2", Code: "E2", Level: domain.LevelDistrict, ParentID: parent(2)},
		},
		VoteRecords: []domain.VoteRecord{
			{GeoNodeID: 10, ElectionID: 2021, RepOrder: 0, TotalVotes: 100, Parties: []domain.PartyResult{{PartyCode: "A", Votes: 100, IsWinner: true}}},
			{GeoNodeID: 10, ElectionID: 2021, RepOrder: 1, TotalVotes: 1000, Parties: []domain.PartyResult{{PartyCode: "A", Votes: 600, IsWinner: true}, {PartyCode: "B", Votes: 400}}},
			{GeoNodeID: 11, ElectionID: 2021, RepOrder: 0, TotalVotes: 1000, Parties: []domain.PartyResult{{PartyCode: "A", Votes: 300}, {PartyCode: "B", Votes: 700, IsWinner: true}}},
		},
		Estimates: domain.Estimates{
			{GeoNodeID: 1, PartyCode: "A"}: {Mean: 0.5, StdDev: 0.02},
			{GeoNodeID: 1, PartyCode: "B"}: {Mean: 0.5, StdDev: 0.02},
		},
		Demographics: []domain.DemographicRecord{
			{GeoNodeID: 10, CharacteristicID: "2255", Count: 40, Universe: 100},
		},
	}
}

func TestElectoralRepository_Integration(t *testing.T) {
	pool := setupElectoralDB(t)
	ctx := composables.WithPool(context.Background(), pool)
	repo := NewElectoralRepository()

	stats, err := repo.Import(ctx, integrationDataset())
	require.NoError(t, err)
	require.Equal(t, ImportStats{Nodes: 4, Elections: 1, VoteRecords: 3, Estimates: 2, Demographics: 1}, stats)

	nodes, err := repo.FetchGeoNodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	records, err := repo.FetchVoteRecords(ctx, 2021)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].RepOrder)
	require.Equal(t, int64(1000), records[0].TotalVotes)

	estimates, err := repo.FetchVoteEstimates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, estimates, 2)

	share := 0.45
	aggs := []domain.AggregateRecord{
		{GeoNodeID: 2, ElectionID: 2021, Level: domain.LevelRegion, TotalVotes: 2000, TotalSeats: 2, SourceDistrictCount: 2,
			SourceDistrictIDs: []domain.NodeID{10, 11},
			Parties:           []domain.PartyAggregate{{PartyCode: "A", Votes: 900, VoteShare: &share, Seats: 1}}},
	}
	require.NoError(t, repo.SaveAggregates(ctx, 1, 2021, aggs))
	require.NoError(t, repo.SaveAggregates(ctx, 1, 2021, aggs))
	require.NoError(t, repo.SaveAggregates(ctx, 2, 2021, nil))
	stored, err := repo.FetchAggregates(ctx, 2021)
	require.NoError(t, err)
	require.Equal(t, aggs, stored)

	projectionID := uuid.New()
	summaries := []domain.ProjectionSummary{
		{ProjectionID: projectionID, GeoNodeID: 1, Level: domain.LevelJurisdictionGeneral, Trials: 100, Seed: 7, TotalSeats: 2,
			Parties: []domain.PartyProjection{{PartyCode: "A", SeatMedian: 1, SeatHistogram: []domain.HistogramBin{{Seats: 1, Probability: 1}}}}},
	}
	require.NoError(t, repo.SaveProjection(ctx, projectionID, summaries))
	gotSummaries, err := repo.FetchProjection(ctx, projectionID)
	require.NoError(t, err)
	require.Equal(t, summaries, gotSummaries)

	report := domain.AccuracyReport{
		ProjectionID: projectionID, ElectionID: 2021, GeoNodeID: 1, TotalSeats: 2,
		OverallAccuracy: 1, GeneratedAt: time.Date(2025, 4, 29, 12, 0, 0, 0, time.UTC),
		Parties: []domain.PartyAccuracy{{PartyCode: "A", PredictedSeats: 1, ActualSeats: 1}},
	}
	require.NoError(t, repo.SaveAccuracyReport(ctx, report))
	require.ErrorIs(t, repo.SaveAccuracyReport(ctx, report), domain.ErrReportExists)

	reports, err := repo.FetchAccuracyReports(ctx, []uuid.UUID{projectionID})
	require.NoError(t, err)
	require.Equal(t, []domain.AccuracyReport{report}, reports)
}
