package domain

// DemographicRecord is a district-level observation for one census
// characteristic: Count members out of a Universe population.
type DemographicRecord struct {
	GeoNodeID        NodeID `json:"geo_node_id"`
	CharacteristicID string `json:"characteristic_id"`
	Count            int64  `json:"count"`
	Universe         int64  `json:"universe"`
}

func (r DemographicRecord) Validate() error {
	switch {
	case r.CharacteristicID == "":
		return &RecordError{NodeID: r.GeoNodeID, Reason: "empty characteristic id"}
	case r.Count < 0 || r.Universe < 0:
		return &RecordError{NodeID: r.GeoNodeID, Reason: "negative demographic count"}
	case r.Count > r.Universe:
		return &RecordError{NodeID: r.GeoNodeID, Reason: "count exceeds universe for " + r.CharacteristicID}
	}
	return nil
}

type DemographicAggregate struct {
	GeoNodeID           NodeID   `json:"geo_node_id"`
	Level               Level    `json:"level"`
	CharacteristicID    string   `json:"characteristic_id"`
	Count               int64    `json:"count"`
	Universe            int64    `json:"universe"`
	Rate                *float64 `json:"rate"`
	SourceDistrictCount int      `json:"source_district_count"`
	SourceDistrictIDs   []NodeID `json:"source_district_ids"`
}
