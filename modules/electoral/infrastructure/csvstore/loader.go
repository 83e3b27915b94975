// Package csvstore reads electoral source data from a directory of CSV files.
//
// Layout:
//
//	geo_nodes.csv       id,jurisdiction_id,name,code,level,parent_id
//	vote_records.csv    geo_node_id,election_id,rep_order,party_code,votes,is_winner,is_incumbent,
//	                    total_votes,eligible_voters,rejected_ballots (one row per party)
//	vote_estimates.csv  geo_node_id,party_code,mean,stddev
//	demographics.csv    geo_node_id,characteristic_id,count,universe
//
// Only geo_nodes.csv is required.
package csvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const (
	GeoNodesFile     = "geo_nodes.csv"
	VoteRecordsFile  = "vote_records.csv"
	EstimatesFile    = "vote_estimates.csv"
	DemographicsFile = "demographics.csv"
)

var ErrMissingInput = errors.New("missing input file")

var (
	geoNodeColumns = map[string]string{
		"ID": "id", "JurisdictionID": "jurisdiction_id", "Name": "name",
		"Code": "code", "Level": "level", "ParentID": "parent_id",
	}
	voteColumns = map[string]string{
		"GeoNodeID": "geo_node_id", "ElectionID": "election_id", "RepOrder": "rep_order",
		"PartyCode": "party_code", "Votes": "votes", "TotalVotes": "total_votes",
		"EligibleVoters": "eligible_voters", "RejectedBallots": "rejected_ballots",
	}
	estimateColumns = map[string]string{
		"GeoNodeID": "geo_node_id", "PartyCode": "party_code", "Mean": "mean", "StdDev": "stddev",
	}
	demographicColumns = map[string]string{
		"GeoNodeID": "geo_node_id", "CharacteristicID": "characteristic_id",
		"Count": "count", "Universe": "universe",
	}
)

// LoadDataset parses every known file in dir. Vote records keep every
// rep_order revision; FetchVoteRecords applies the latest-revision rule.
func LoadDataset(dir string) (*domain.Dataset, error) {
	nodesPath := filepath.Join(dir, GeoNodesFile)
	if _, err := os.Stat(nodesPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, nodesPath)
	}

	ds := &domain.Dataset{Estimates: domain.Estimates{}}
	var err error
	if ds.Nodes, err = parseGeoNodes(nodesPath); err != nil {
		return nil, err
	}
	if err := ifExists(filepath.Join(dir, VoteRecordsFile), func(p string) error {
		ds.VoteRecords, err = parseVoteRecords(p)
		return err
	}); err != nil {
		return nil, err
	}
	if err := ifExists(filepath.Join(dir, EstimatesFile), func(p string) error {
		ds.Estimates, err = parseEstimates(p)
		return err
	}); err != nil {
		return nil, err
	}
	if err := ifExists(filepath.Join(dir, DemographicsFile), func(p string) error {
		ds.Demographics, err = parseDemographics(p)
		return err
	}); err != nil {
		return nil, err
	}
	return ds, nil
}

func ifExists(path string, fn func(string) error) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return fn(path)
}

func parseGeoNodes(path string) ([]domain.GeoNode, error) {
	required := []string{"id", "jurisdiction_id", "level"}
	allowed := []string{"id", "jurisdiction_id", "name", "code", "level", "parent_id"}

	var out []domain.GeoNode
	err := readRows(path, required, allowed, func(line int, get func(string) string) error {
		p := &fieldParser{get: get}
		row := geoNodeRow{
			ID:             p.int64("id", true),
			JurisdictionID: p.int64("jurisdiction_id", true),
			Name:           get("name"),
			Code:           get("code"),
			Level:          strings.ToUpper(get("level")),
			ParentID:       p.optionalInt64("parent_id"),
		}
		if p.err != nil {
			return p.err
		}
		if err := validateRow(row, geoNodeColumns); err != nil {
			return err
		}
		n := domain.GeoNode{
			ID:             domain.NodeID(row.ID),
			JurisdictionID: row.JurisdictionID,
			Name:           row.Name,
			Code:           row.Code,
			Level:          domain.Level(row.Level),
		}
		if row.ParentID != nil {
			pid := domain.NodeID(*row.ParentID)
			n.ParentID = &pid
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

type voteKey struct {
	node     domain.NodeID
	election domain.ElectionID
	repOrder int
}

func parseVoteRecords(path string) ([]domain.VoteRecord, error) {
	required := []string{"geo_node_id", "election_id", "party_code", "votes", "total_votes"}
	allowed := []string{
		"geo_node_id", "election_id", "rep_order", "party_code", "votes", "is_winner", "is_incumbent",
		"total_votes", "eligible_voters", "rejected_ballots",
	}

	byKey := make(map[voteKey]*domain.VoteRecord)
	var order []voteKey
	err := readRows(path, required, allowed, func(line int, get func(string) string) error {
		p := &fieldParser{get: get}
		row := voteRow{
			GeoNodeID:       p.int64("geo_node_id", true),
			ElectionID:      p.int64("election_id", true),
			RepOrder:        int(p.int64("rep_order", false)),
			PartyCode:       get("party_code"),
			Votes:           p.int64("votes", true),
			IsWinner:        p.bool("is_winner"),
			IsIncumbent:     p.bool("is_incumbent"),
			TotalVotes:      p.int64("total_votes", true),
			EligibleVoters:  p.int64("eligible_voters", false),
			RejectedBallots: p.int64("rejected_ballots", false),
		}
		if p.err != nil {
			return p.err
		}
		if err := validateRow(row, voteColumns); err != nil {
			return err
		}

		k := voteKey{node: domain.NodeID(row.GeoNodeID), election: domain.ElectionID(row.ElectionID), repOrder: row.RepOrder}
		rec, ok := byKey[k]
		if !ok {
			rec = &domain.VoteRecord{
				GeoNodeID:       k.node,
				ElectionID:      k.election,
				RepOrder:        k.repOrder,
				TotalVotes:      row.TotalVotes,
				EligibleVoters:  row.EligibleVoters,
				RejectedBallots: row.RejectedBallots,
			}
			byKey[k] = rec
			order = append(order, k)
		} else if rec.TotalVotes != row.TotalVotes || rec.EligibleVoters != row.EligibleVoters || rec.RejectedBallots != row.RejectedBallots {
			return fmt.Errorf("totals differ from earlier rows of node %d election %d rep_order %d", k.node, k.election, k.repOrder)
		}
		rec.Parties = append(rec.Parties, domain.PartyResult{
			PartyCode:   row.PartyCode,
			Votes:       row.Votes,
			IsWinner:    row.IsWinner,
			IsIncumbent: row.IsIncumbent,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.VoteRecord, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, nil
}

func parseEstimates(path string) (domain.Estimates, error) {
	required := []string{"geo_node_id", "party_code", "mean"}
	allowed := []string{"geo_node_id", "party_code", "mean", "stddev"}

	out := make(domain.Estimates)
	err := readRows(path, required, allowed, func(line int, get func(string) string) error {
		p := &fieldParser{get: get}
		row := estimateRow{
			GeoNodeID: p.int64("geo_node_id", true),
			PartyCode: get("party_code"),
			Mean:      p.float("mean"),
		}
		if get("stddev") != "" {
			row.StdDev = p.float("stddev")
		}
		if p.err != nil {
			return p.err
		}
		if err := validateRow(row, estimateColumns); err != nil {
			return err
		}
		k := domain.EstimateKey{GeoNodeID: domain.NodeID(row.GeoNodeID), PartyCode: row.PartyCode}
		if _, dup := out[k]; dup {
			return fmt.Errorf("duplicate estimate for node %d party %s", k.GeoNodeID, k.PartyCode)
		}
		out[k] = domain.Estimate{Mean: row.Mean, StdDev: row.StdDev}
		return nil
	})
	return out, err
}

func parseDemographics(path string) ([]domain.DemographicRecord, error) {
	required := []string{"geo_node_id", "characteristic_id", "count", "universe"}

	var out []domain.DemographicRecord
	err := readRows(path, required, required, func(line int, get func(string) string) error {
		p := &fieldParser{get: get}
		row := demographicRow{
			GeoNodeID:        p.int64("geo_node_id", true),
			CharacteristicID: get("characteristic_id"),
			Count:            p.int64("count", true),
			Universe:         p.int64("universe", true),
		}
		if p.err != nil {
			return p.err
		}
		if err := validateRow(row, demographicColumns); err != nil {
			return err
		}
		out = append(out, domain.DemographicRecord{
			GeoNodeID:        domain.NodeID(row.GeoNodeID),
			CharacteristicID: row.CharacteristicID,
			Count:            row.Count,
			Universe:         row.Universe,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GeoNodeID != out[j].GeoNodeID {
			return out[i].GeoNodeID < out[j].GeoNodeID
		}
		return out[i].CharacteristicID < out[j].CharacteristicID
	})
	return out, nil
}
