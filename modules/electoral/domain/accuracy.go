package domain

import (
	"time"

	"github.com/google/uuid"
)

type PartyAccuracy struct {
	PartyCode      string  `json:"party_code"`
	PredictedSeats float64 `json:"predicted_seats"`
	ActualSeats    int     `json:"actual_seats"`
	AbsoluteError  float64 `json:"absolute_error"`
}

type AccuracyReport struct {
	ProjectionID    uuid.UUID       `json:"projection_id"`
	ElectionID      ElectionID      `json:"election_id"`
	GeoNodeID       NodeID          `json:"geo_node_id"`
	Parties         []PartyAccuracy `json:"parties"`
	TotalSeats      int             `json:"total_seats"`
	OverallAccuracy float64         `json:"overall_accuracy"`
	SeatErrorSum    float64         `json:"seat_error_sum"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

type PartyBias struct {
	PartyCode string  `json:"party_code"`
	MeanError float64 `json:"mean_error"`
	Reports   int     `json:"reports"`
}
