package domain

type PartyAggregate struct {
	PartyCode string `json:"party_code"`
	Votes     int64  `json:"votes"`
	// VoteShare is nil when the node has no votes at all.
	VoteShare *float64 `json:"vote_share"`
	Seats     int      `json:"seats"`
}

type AggregateRecord struct {
	GeoNodeID           NodeID           `json:"geo_node_id"`
	ElectionID          ElectionID       `json:"election_id"`
	Level               Level            `json:"level"`
	Parties             []PartyAggregate `json:"parties"`
	TotalVotes          int64            `json:"total_votes"`
	TotalSeats          int              `json:"total_seats"`
	SourceDistrictCount int              `json:"source_district_count"`
	SourceDistrictIDs   []NodeID         `json:"source_district_ids"`
}

func (a AggregateRecord) Party(code string) (PartyAggregate, bool) {
	for _, p := range a.Parties {
		if p.PartyCode == code {
			return p, true
		}
	}
	return PartyAggregate{}, false
}

func (a AggregateRecord) SeatsFor(code string) int {
	p, _ := a.Party(code)
	return p.Seats
}

// OmittedNode enumerates a node left out of an output set, with the reason.
type OmittedNode struct {
	GeoNodeID NodeID `json:"geo_node_id"`
	Level     Level  `json:"level"`
	Reason    string `json:"reason"`
}

const (
	OmitNoData        = "no_data"
	OmitInconsistent  = "inconsistent_subtree"
	OmitNoEstimates   = "no_estimates"
	OmitMissingBefore = "missing_before"
	OmitMissingAfter  = "missing_after"
	OmitUndefined     = "undefined_share"
)

// UndefinedShare records a share that could not be computed because its
// denominator was zero.
type UndefinedShare struct {
	GeoNodeID NodeID `json:"geo_node_id"`
	Level     Level  `json:"level"`
	Metric    string `json:"metric"`
}
