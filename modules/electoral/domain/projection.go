package domain

import "github.com/google/uuid"

type HistogramBin struct {
	Seats       int     `json:"seats"`
	Probability float64 `json:"probability"`
}

type PartyProjection struct {
	PartyCode             string         `json:"party_code"`
	SeatMedian            float64        `json:"seat_median"`
	SeatP05               float64        `json:"seat_p05"`
	SeatP95               float64        `json:"seat_p95"`
	VoteShareMean         float64        `json:"vote_share_mean"`
	GovernmentProbability float64        `json:"government_probability"`
	SeatHistogram         []HistogramBin `json:"seat_histogram"`
}

// ProjectionSummary is the persisted reduction of all trials at one node.
// ElectionID is the target election, zero when not yet known.
type ProjectionSummary struct {
	ProjectionID uuid.UUID         `json:"projection_id"`
	GeoNodeID    NodeID            `json:"geo_node_id"`
	Level        Level             `json:"level"`
	ElectionID   ElectionID        `json:"election_id,omitempty"`
	Trials       int               `json:"trials"`
	Seed         int64             `json:"seed"`
	TotalSeats   int               `json:"total_seats"`
	Parties      []PartyProjection `json:"parties"`
}

func (s ProjectionSummary) Party(code string) (PartyProjection, bool) {
	for _, p := range s.Parties {
		if p.PartyCode == code {
			return p, true
		}
	}
	return PartyProjection{}, false
}

// ProjectionDraw is the seat outcome of a single trial at a single node.
type ProjectionDraw struct {
	ProjectionID uuid.UUID      `json:"projection_id"`
	GeoNodeID    NodeID         `json:"geo_node_id"`
	Trial        int            `json:"trial"`
	Seats        map[string]int `json:"seats"`
}
