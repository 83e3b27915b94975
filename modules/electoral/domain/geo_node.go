package domain

type GeoNode struct {
	ID             NodeID  `json:"id"`
	JurisdictionID int64   `json:"jurisdiction_id"`
	Name           string  `json:"name"`
	Code           string  `json:"code"`
	Level          Level   `json:"level"`
	ParentID       *NodeID `json:"parent_id,omitempty"`
}

func (n GeoNode) IsRoot() bool { return n.Level == LevelJurisdictionGeneral }
