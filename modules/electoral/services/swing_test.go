package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func TestComputeSwing(t *testing.T) {
	h := testHierarchy(t)
	before, err := Aggregate(testRecords(1), h)
	require.NoError(t, err)

	afterRecords := []domain.VoteRecord{
		voteRecord(10, 2, 500, 500),
		voteRecord(11, 2, 400, 600),
		voteRecord(13, 2, 700, 300),
	}
	after, err := Aggregate(afterRecords, h)
	require.NoError(t, err)

	rows := ComputeSwing(before.Records, after.Records, "A")
	byID := make(map[domain.NodeID]domain.SwingRow)
	for _, r := range rows {
		byID[r.GeoNodeID] = r
	}

	d10 := byID[10]
	require.InDelta(t, 0.6, *d10.ShareBefore, 1e-12)
	require.InDelta(t, 0.5, *d10.ShareAfter, 1e-12)
	require.InDelta(t, -0.1, *d10.Change, 1e-12)

	d12 := byID[12]
	require.NotNil(t, d12.ShareBefore)
	require.Nil(t, d12.ShareAfter)
	require.Nil(t, d12.Change)

	d13 := byID[13]
	require.Nil(t, d13.ShareBefore)
	require.InDelta(t, 0.7, *d13.ShareAfter, 1e-12)

	require.Equal(t, domain.LevelDistrict, rows[0].Level)
	require.Equal(t, domain.NodeID(1), rows[len(rows)-1].GeoNodeID)

	omitted := SwingOmissions(rows)
	require.ElementsMatch(t, []domain.OmittedNode{
		{GeoNodeID: 12, Level: domain.LevelDistrict, Reason: domain.OmitMissingAfter},
		{GeoNodeID: 13, Level: domain.LevelDistrict, Reason: domain.OmitMissingBefore},
	}, omitted)
}

func TestComputeSwing_AbsentPartyCountsAsZero(t *testing.T) {
	before := []domain.AggregateRecord{{GeoNodeID: 10, Level: domain.LevelDistrict, TotalVotes: 100,
		Parties: []domain.PartyAggregate{{PartyCode: "A", Votes: 100, VoteShare: float(1)}}}}
	after := []domain.AggregateRecord{{GeoNodeID: 10, Level: domain.LevelDistrict, TotalVotes: 100,
		Parties: []domain.PartyAggregate{{PartyCode: "A", Votes: 80, VoteShare: float(0.8)}, {PartyCode: "N", Votes: 20, VoteShare: float(0.2)}}}}

	rows := ComputeSwing(before, after, "N")
	require.Len(t, rows, 1)
	require.InDelta(t, 0.2, *rows[0].Change, 1e-12)
}

func TestSwingOmissions_ZeroVotesIsUndefinedNotMissing(t *testing.T) {
	before := []domain.AggregateRecord{
		{GeoNodeID: 10, Level: domain.LevelDistrict, TotalVotes: 0,
			Parties: []domain.PartyAggregate{{PartyCode: "A"}}},
		{GeoNodeID: 11, Level: domain.LevelDistrict, TotalVotes: 100,
			Parties: []domain.PartyAggregate{{PartyCode: "A", Votes: 50, VoteShare: float(0.5)}}},
	}
	after := []domain.AggregateRecord{
		{GeoNodeID: 10, Level: domain.LevelDistrict, TotalVotes: 100,
			Parties: []domain.PartyAggregate{{PartyCode: "A", Votes: 40, VoteShare: float(0.4)}}},
		{GeoNodeID: 11, Level: domain.LevelDistrict, TotalVotes: 100,
			Parties: []domain.PartyAggregate{{PartyCode: "A", Votes: 60, VoteShare: float(0.6)}}},
	}

	rows := ComputeSwing(before, after, "A")
	require.Len(t, rows, 2)
	require.True(t, rows[0].InBefore)
	require.True(t, rows[0].InAfter)
	require.Nil(t, rows[0].ShareBefore)
	require.Nil(t, rows[0].Change)

	require.Equal(t, []domain.OmittedNode{
		{GeoNodeID: 10, Level: domain.LevelDistrict, Reason: domain.OmitUndefined},
	}, SwingOmissions(rows))
}
