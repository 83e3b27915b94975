package domain

import "sort"

// Dataset is one bulk load of source data.
type Dataset struct {
	Nodes        []GeoNode
	VoteRecords  []VoteRecord
	Estimates    Estimates
	Demographics []DemographicRecord
}

// ElectionIDs returns the distinct elections referenced by the vote records,
// ascending.
func (d *Dataset) ElectionIDs() []ElectionID {
	seen := make(map[ElectionID]struct{})
	out := make([]ElectionID, 0, 4)
	for _, r := range d.VoteRecords {
		if _, ok := seen[r.ElectionID]; ok {
			continue
		}
		seen[r.ElectionID] = struct{}{}
		out = append(out, r.ElectionID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
