package domain

import (
	"fmt"
	"math"
)

type EstimateKey struct {
	GeoNodeID NodeID
	PartyCode string
}

// Estimate is a poll-derived vote share (fraction) with its uncertainty.
type Estimate struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

type Estimates map[EstimateKey]Estimate

func (e Estimates) Validate() error {
	for k, v := range e {
		if k.PartyCode == "" {
			return fmt.Errorf("%w: node %d has empty party code", ErrInvalidEstimate, k.GeoNodeID)
		}
		if math.IsNaN(v.Mean) || math.IsInf(v.Mean, 0) || v.Mean < 0 || v.Mean > 1 {
			return fmt.Errorf("%w: node %d party %s mean %v outside [0,1]", ErrInvalidEstimate, k.GeoNodeID, k.PartyCode, v.Mean)
		}
		if math.IsNaN(v.StdDev) || math.IsInf(v.StdDev, 0) || v.StdDev < 0 {
			return fmt.Errorf("%w: node %d party %s stddev %v", ErrInvalidEstimate, k.GeoNodeID, k.PartyCode, v.StdDev)
		}
	}
	return nil
}

// ByNode groups estimates per node.
func (e Estimates) ByNode() map[NodeID]map[string]Estimate {
	out := make(map[NodeID]map[string]Estimate)
	for k, v := range e {
		m, ok := out[k.GeoNodeID]
		if !ok {
			m = make(map[string]Estimate)
			out[k.GeoNodeID] = m
		}
		m[k.PartyCode] = v
	}
	return out
}
