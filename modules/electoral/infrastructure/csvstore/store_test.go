package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
)

var _ services.Store = (*Store)(nil)

const (
	geoNodesCSV = "\xEF\xBB\xBFid,jurisdiction_id,name,code,level,parent_id\n" +
		"1,1,Country,C,jurisdiction_general,\n" +
		"2,1,East,E,REGION,1\n" +
		"10,1,E-1,E1,DISTRICT,2\n" +
		"11,1,E-2,E2,DISTRICT,2\n" +
		"100,2,Other,O,JURISDICTION_GENERAL,\n"
	voteRecordsCSV = "geo_node_id,election_id,rep_order,party_code,votes,is_winner,is_incumbent,total_votes,eligible_voters,rejected_ballots\n" +
		"10,2021,0,A,50,true,false,100,200,1\n" +
		"10,2021,0,B,50,false,false,100,200,1\n" +
		"10,2021,1,A,600,true,false,1000,1500,3\n" +
		"10,2021,1,B,400,false,true,1000,1500,3\n" +
		"11,2021,0,A,300,false,false,1000,1400,0\n" +
		"11,2021,0,B,700,true,false,1000,1400,0\n" +
		"10,2025,0,A,500,true,false,900,1500,0\n"
	estimatesCSV = "geo_node_id,party_code,mean,stddev\n" +
		"1,A,0.45,0.02\n" +
		"1,B,0.55,0.02\n" +
		"100,A,0.5,\n"
	demographicsCSV = "geo_node_id,characteristic_id,count,universe\n" +
		"11,2255,30,100\n" +
		"10,2255,40,100\n"
)

func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func fullFixture(t *testing.T) string {
	return writeFixture(t, map[string]string{
		GeoNodesFile:     geoNodesCSV,
		VoteRecordsFile:  voteRecordsCSV,
		EstimatesFile:    estimatesCSV,
		DemographicsFile: demographicsCSV,
	})
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(fullFixture(t))
	require.NoError(t, err)

	require.Len(t, ds.Nodes, 5)
	require.Equal(t, domain.LevelJurisdictionGeneral, ds.Nodes[0].Level)
	require.Nil(t, ds.Nodes[0].ParentID)
	require.Equal(t, domain.NodeID(2), *ds.Nodes[2].ParentID)

	require.Len(t, ds.VoteRecords, 4)
	latest := ds.VoteRecords[1]
	require.Equal(t, 1, latest.RepOrder)
	require.Equal(t, int64(1000), latest.TotalVotes)
	require.Equal(t, []domain.PartyResult{
		{PartyCode: "A", Votes: 600, IsWinner: true},
		{PartyCode: "B", Votes: 400, IsIncumbent: true},
	}, latest.Parties)
	require.Equal(t, []domain.ElectionID{2021, 2025}, ds.ElectionIDs())

	require.Equal(t, domain.Estimate{Mean: 0.5}, ds.Estimates[domain.EstimateKey{GeoNodeID: 100, PartyCode: "A"}])
	require.Equal(t, domain.NodeID(10), ds.Demographics[0].GeoNodeID)
}

func TestLoadDataset_OnlyGeoNodes(t *testing.T) {
	ds, err := LoadDataset(writeFixture(t, map[string]string{GeoNodesFile: geoNodesCSV}))
	require.NoError(t, err)
	require.Len(t, ds.Nodes, 5)
	require.Empty(t, ds.VoteRecords)
	require.Empty(t, ds.Estimates)
}

func TestLoadDataset_Errors(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "unknown level",
			files: map[string]string{GeoNodesFile: "id,jurisdiction_id,level\n1,1,COUNTY\n"},
			want:  "level: failed oneof",
		},
		{
			name:  "missing column",
			files: map[string]string{GeoNodesFile: "id,level\n1,DISTRICT\n"},
			want:  "missing required header column: jurisdiction_id",
		},
		{
			name:  "unexpected column",
			files: map[string]string{GeoNodesFile: "id,jurisdiction_id,level,population\n1,1,DISTRICT,5\n"},
			want:  "unexpected header column: population",
		},
		{
			name:  "bad integer",
			files: map[string]string{GeoNodesFile: "id,jurisdiction_id,level\nx,1,DISTRICT\n"},
			want:  `id: invalid integer "x"`,
		},
		{
			name: "negative votes",
			files: map[string]string{
				GeoNodesFile:    geoNodesCSV,
				VoteRecordsFile: "geo_node_id,election_id,party_code,votes,total_votes\n10,2021,A,-1,100\n",
			},
			want: "votes: failed gte=0",
		},
		{
			name: "totals disagree across party rows",
			files: map[string]string{
				GeoNodesFile:    geoNodesCSV,
				VoteRecordsFile: "geo_node_id,election_id,party_code,votes,total_votes\n10,2021,A,1,100\n10,2021,B,1,101\n",
			},
			want: "totals differ",
		},
		{
			name: "mean above one",
			files: map[string]string{
				GeoNodesFile:  geoNodesCSV,
				EstimatesFile: "geo_node_id,party_code,mean\n1,A,1.5\n",
			},
			want: "mean: failed lte=1",
		},
		{
			name: "count above universe",
			files: map[string]string{
				GeoNodesFile:     geoNodesCSV,
				DemographicsFile: "geo_node_id,characteristic_id,count,universe\n10,2255,101,100\n",
			},
			want: "count: failed ltefield=Universe",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadDataset(writeFixture(t, tc.files))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("missing geo nodes", func(t *testing.T) {
		_, err := LoadDataset(t.TempDir())
		require.ErrorIs(t, err, ErrMissingInput)
	})
}

func TestStore_Reads(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(fullFixture(t))
	require.NoError(t, err)

	nodes, err := s.FetchGeoNodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	records, err := s.FetchVoteRecords(ctx, 2021)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, domain.NodeID(10), records[0].GeoNodeID)
	require.Equal(t, 1, records[0].RepOrder)

	estimates, err := s.FetchVoteEstimates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, estimates, 2)

	demo, err := s.FetchDemographics(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, demo)
}

func TestStore_Results(t *testing.T) {
	ctx := context.Background()
	dir := fullFixture(t)
	s, err := NewStore(dir)
	require.NoError(t, err)

	aggs, err := s.FetchAggregates(ctx, 2021)
	require.NoError(t, err)
	require.Empty(t, aggs)

	rec := domain.AggregateRecord{GeoNodeID: 2, ElectionID: 2021, Level: domain.LevelRegion, TotalVotes: 10, TotalSeats: 1}
	other := domain.AggregateRecord{GeoNodeID: 100, ElectionID: 2021, Level: domain.LevelJurisdictionGeneral, TotalVotes: 5, TotalSeats: 1}
	require.NoError(t, s.SaveAggregates(ctx, 2, 2021, []domain.AggregateRecord{other}))
	require.NoError(t, s.SaveAggregates(ctx, 1, 2021, []domain.AggregateRecord{rec}))
	require.NoError(t, s.SaveAggregates(ctx, 1, 2021, []domain.AggregateRecord{rec}))
	require.ErrorIs(t, s.SaveAggregates(ctx, 1, 2025, []domain.AggregateRecord{rec}), domain.ErrInvalidRecord)
	require.ErrorIs(t, s.SaveAggregates(ctx, 2, 2021, []domain.AggregateRecord{rec}), domain.ErrInvalidRecord)

	aggs, err = s.FetchAggregates(ctx, 2021)
	require.NoError(t, err)
	require.Equal(t, []domain.AggregateRecord{rec, other}, aggs)

	require.NoError(t, s.SaveAggregates(ctx, 1, 2021, nil))
	aggs, err = s.FetchAggregates(ctx, 2021)
	require.NoError(t, err)
	require.Equal(t, []domain.AggregateRecord{other}, aggs)
	require.NoError(t, s.SaveAggregates(ctx, 1, 2021, []domain.AggregateRecord{rec}))

	projectionID := uuid.New()
	summary := domain.ProjectionSummary{ProjectionID: projectionID, GeoNodeID: 1, Level: domain.LevelJurisdictionGeneral, Trials: 10, TotalSeats: 2}
	require.NoError(t, s.SaveProjection(ctx, projectionID, []domain.ProjectionSummary{summary}))

	report := domain.AccuracyReport{ProjectionID: projectionID, ElectionID: 2021, GeoNodeID: 1, TotalSeats: 2,
		GeneratedAt: time.Date(2025, 4, 29, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.SaveAccuracyReport(ctx, report))
	require.ErrorIs(t, s.SaveAccuracyReport(ctx, report), domain.ErrReportExists)

	reopened, err := NewStore(dir)
	require.NoError(t, err)

	aggs, err = reopened.FetchAggregates(ctx, 2021)
	require.NoError(t, err)
	require.Equal(t, []domain.AggregateRecord{rec, other}, aggs)

	summaries, err := reopened.FetchProjection(ctx, projectionID)
	require.NoError(t, err)
	require.Equal(t, []domain.ProjectionSummary{summary}, summaries)

	reports, err := reopened.FetchAccuracyReports(ctx, []uuid.UUID{projectionID})
	require.NoError(t, err)
	require.Equal(t, []domain.AccuracyReport{report}, reports)

	reports, err = reopened.FetchAccuracyReports(ctx, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	require.Empty(t, reports)
}

func TestStore_AggregatePerJurisdictionKeepsOthers(t *testing.T) {
	node := func(id domain.NodeID, jurisdiction int64, level domain.Level, parent domain.NodeID) domain.GeoNode {
		n := domain.GeoNode{ID: id, JurisdictionID: jurisdiction, Name: level.String(), Code: level.String(), Level: level}
		if parent != 0 {
			n.ParentID = &parent
		}
		return n
	}
	vote := func(id domain.NodeID, a, b int64) domain.VoteRecord {
		return domain.VoteRecord{GeoNodeID: id, ElectionID: 1, TotalVotes: a + b, Parties: []domain.PartyResult{
			{PartyCode: "A", Votes: a, IsWinner: a > b},
			{PartyCode: "B", Votes: b, IsWinner: b > a},
		}}
	}
	ds := &domain.Dataset{
		Nodes: []domain.GeoNode{
			node(1, 1, domain.LevelJurisdictionGeneral, 0),
			node(10, 1, domain.LevelDistrict, 1),
			node(2, 2, domain.LevelJurisdictionGeneral, 0),
			node(20, 2, domain.LevelDistrict, 2),
		},
		VoteRecords: []domain.VoteRecord{vote(10, 60, 40), vote(20, 30, 70)},
	}
	s := NewStoreFromDataset(ds, t.TempDir())
	svc := services.NewElectoralService(s, nil, nil)
	ctx := context.Background()

	_, err := svc.Aggregate(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.Aggregate(ctx, 2, 1)
	require.NoError(t, err)

	aggs, err := s.FetchAggregates(ctx, 1)
	require.NoError(t, err)
	ids := make([]domain.NodeID, 0, len(aggs))
	for _, a := range aggs {
		ids = append(ids, a.GeoNodeID)
	}
	require.Equal(t, []domain.NodeID{1, 2, 10, 20}, ids)

	drift, err := svc.Verify(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, drift.Clean())
}
