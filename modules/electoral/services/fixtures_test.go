package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// Test jurisdiction:
//
//	1 JURISDICTION_GENERAL
//	└─ 2 REGION
//	   ├─ 3 SUBREGION
//	   │  ├─ 10 DISTRICT
//	   │  ├─ 11 DISTRICT
//	   │  └─ 13 DISTRICT (no results)
//	   └─ 12 DISTRICT
func testNodes() []domain.GeoNode {
	return []domain.GeoNode{
		geoNode(1, domain.LevelJurisdictionGeneral, 0),
		geoNode(2, domain.LevelRegion, 1),
		geoNode(3, domain.LevelSubregion, 2),
		geoNode(10, domain.LevelDistrict, 3),
		geoNode(11, domain.LevelDistrict, 3),
		geoNode(12, domain.LevelDistrict, 2),
		geoNode(13, domain.LevelDistrict, 3),
	}
}

func geoNode(id domain.NodeID, level domain.Level, parent domain.NodeID) domain.GeoNode {
	n := domain.GeoNode{ID: id, JurisdictionID: 1, Name: level.String(), Code: level.String(), Level: level}
	if parent != 0 {
		p := parent
		n.ParentID = &p
	}
	return n
}

func testHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	h, err := BuildHierarchy(testNodes())
	require.NoError(t, err)
	return h
}

// testRecords are three districts: A wins 10 and 12, B wins 11.
// Totals: A 1450 votes, B 1550 votes, 3000 overall.
func testRecords(election domain.ElectionID) []domain.VoteRecord {
	return []domain.VoteRecord{
		voteRecord(10, election, 600, 400),
		voteRecord(11, election, 300, 700),
		voteRecord(12, election, 550, 450),
	}
}

func voteRecord(node domain.NodeID, election domain.ElectionID, a, b int64) domain.VoteRecord {
	return domain.VoteRecord{
		GeoNodeID:  node,
		ElectionID: election,
		Parties: []domain.PartyResult{
			{PartyCode: "A", Votes: a, IsWinner: a > b},
			{PartyCode: "B", Votes: b, IsWinner: b > a},
		},
		TotalVotes:     a + b,
		EligibleVoters: (a + b) * 2,
	}
}

// testEstimates mirror the recorded district shares with a near-zero spread.
func testEstimates() domain.Estimates {
	const sd = 0.001
	return domain.Estimates{
		{GeoNodeID: 10, PartyCode: "A"}: {Mean: 0.6, StdDev: sd},
		{GeoNodeID: 10, PartyCode: "B"}: {Mean: 0.4, StdDev: sd},
		{GeoNodeID: 11, PartyCode: "A"}: {Mean: 0.3, StdDev: sd},
		{GeoNodeID: 11, PartyCode: "B"}: {Mean: 0.7, StdDev: sd},
		{GeoNodeID: 12, PartyCode: "A"}: {Mean: 0.55, StdDev: sd},
		{GeoNodeID: 12, PartyCode: "B"}: {Mean: 0.45, StdDev: sd},
	}
}

func findRecord(t *testing.T, records []domain.AggregateRecord, id domain.NodeID) domain.AggregateRecord {
	t.Helper()
	for _, r := range records {
		if r.GeoNodeID == id {
			return r
		}
	}
	t.Fatalf("no aggregate for node %d", id)
	return domain.AggregateRecord{}
}

func float(v float64) *float64 { return &v }
