package domain

import "fmt"

type PartyResult struct {
	PartyCode   string `json:"party_code"`
	Votes       int64  `json:"votes"`
	IsWinner    bool   `json:"is_winner"`
	IsIncumbent bool   `json:"is_incumbent"`
}

// VoteRecord is the accepted result of one election in one district.
// RepOrder distinguishes results re-mapped onto newer boundary sets; stores keep
// only the highest revision per (district, election).
type VoteRecord struct {
	GeoNodeID       NodeID        `json:"geo_node_id"`
	ElectionID      ElectionID    `json:"election_id"`
	RepOrder        int           `json:"rep_order"`
	Parties         []PartyResult `json:"parties"`
	TotalVotes      int64         `json:"total_votes"`
	EligibleVoters  int64         `json:"eligible_voters"`
	RejectedBallots int64         `json:"rejected_ballots"`
}

// Validate checks the record-local invariants. Level checks need the hierarchy
// and are done by the aggregation engine.
func (r VoteRecord) Validate() error {
	if r.TotalVotes < 0 || r.EligibleVoters < 0 || r.RejectedBallots < 0 {
		return r.invalid("negative totals")
	}
	var (
		sum     int64
		winners int
		seen    = make(map[string]struct{}, len(r.Parties))
	)
	for _, p := range r.Parties {
		if p.PartyCode == "" {
			return r.invalid("empty party code")
		}
		if _, dup := seen[p.PartyCode]; dup {
			return r.invalid(fmt.Sprintf("duplicate party %s", p.PartyCode))
		}
		seen[p.PartyCode] = struct{}{}
		if p.Votes < 0 {
			return r.invalid(fmt.Sprintf("negative votes for %s", p.PartyCode))
		}
		sum += p.Votes
		if p.IsWinner {
			winners++
		}
	}
	if sum > r.TotalVotes {
		return r.invalid(fmt.Sprintf("party votes %d exceed total_votes %d", sum, r.TotalVotes))
	}
	if winners > 1 {
		return r.invalid(fmt.Sprintf("%d winners", winners))
	}
	return nil
}

func (r VoteRecord) invalid(reason string) error {
	return &RecordError{NodeID: r.GeoNodeID, ElectionID: r.ElectionID, Reason: reason}
}

// Winner returns the party flagged as winner, if any.
func (r VoteRecord) Winner() (string, bool) {
	for _, p := range r.Parties {
		if p.IsWinner {
			return p.PartyCode, true
		}
	}
	return "", false
}

// Share returns the party's vote share as a fraction. ok is false when the
// party is absent or the record has no votes.
func (r VoteRecord) Share(party string) (float64, bool) {
	if r.TotalVotes == 0 {
		return 0, false
	}
	for _, p := range r.Parties {
		if p.PartyCode == party {
			return float64(p.Votes) / float64(r.TotalVotes), true
		}
	}
	return 0, false
}
