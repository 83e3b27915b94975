package domain

// SwingRow is the change of a party's vote share at one node between two
// elections. Change is in fraction points; nil when either side is undefined.
type SwingRow struct {
	GeoNodeID   NodeID   `json:"geo_node_id"`
	Level       Level    `json:"level"`
	PartyCode   string   `json:"party_code"`
	ShareBefore *float64 `json:"share_before"`
	ShareAfter  *float64 `json:"share_after"`
	Change      *float64 `json:"change"`
	// InBefore and InAfter record whether the node had an aggregate in each
	// election, so a zero-vote node is not mistaken for a missing one.
	InBefore bool `json:"in_before"`
	InAfter  bool `json:"in_after"`
}

type Correlation struct {
	CharacteristicID string  `json:"characteristic_id"`
	N                int     `json:"n"`
	PearsonR         float64 `json:"pearson_r"`
	PearsonP         float64 `json:"pearson_p"`
	SpearmanRho      float64 `json:"spearman_rho"`
	SpearmanP        float64 `json:"spearman_p"`
	Significant      bool    `json:"significant"`
	Strength         string  `json:"strength"`
}

type SkippedCharacteristic struct {
	CharacteristicID string `json:"characteristic_id"`
	N                int    `json:"n"`
}
