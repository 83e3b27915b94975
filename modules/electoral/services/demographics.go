package services

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const metricRate = "rate"

// DemographicResult mirrors AggregationResult for census characteristics.
type DemographicResult struct {
	Records         []domain.DemographicAggregate `json:"records"`
	Omitted         []domain.OmittedNode          `json:"omitted"`
	UndefinedShares []domain.UndefinedShare       `json:"undefined_shares"`
	Inconsistencies []*domain.InconsistencyError  `json:"-"`
}

func (r DemographicResult) Err() error {
	return AggregationResult{Inconsistencies: r.Inconsistencies}.Err()
}

type demoKey struct {
	district int
	charID   string
}

// AggregateDemographics rolls district characteristics up through h, one
// aggregate per (node, characteristic). A node is omitted for a characteristic
// when none of its districts report it.
func AggregateDemographics(records []domain.DemographicRecord, h *Hierarchy) (DemographicResult, error) {
	byKey := make(map[demoKey]*domain.DemographicRecord, len(records))
	var chars []string
	seenChar := make(map[string]struct{})
	for k := range records {
		r := &records[k]
		if err := r.Validate(); err != nil {
			return DemographicResult{}, err
		}
		i, err := h.pos(r.GeoNodeID)
		if err != nil {
			return DemographicResult{}, fmt.Errorf("demographic record: %w", err)
		}
		if lvl := h.nodes[i].Level; lvl != domain.LevelDistrict {
			return DemographicResult{}, &domain.RecordError{NodeID: r.GeoNodeID, Reason: "demographic record at " + lvl.String() + " node"}
		}
		key := demoKey{district: i, charID: r.CharacteristicID}
		if _, dup := byKey[key]; dup {
			return DemographicResult{}, &domain.RecordError{NodeID: r.GeoNodeID, Reason: "duplicate characteristic " + r.CharacteristicID}
		}
		byKey[key] = r
		if _, ok := seenChar[r.CharacteristicID]; !ok {
			seenChar[r.CharacteristicID] = struct{}{}
			chars = append(chars, r.CharacteristicID)
		}
	}
	slices.Sort(chars)

	var res DemographicResult
	for _, charID := range chars {
		computed := make(map[int]*domain.DemographicAggregate)
		for i, n := range h.nodes {
			src := []int{i}
			if n.Level != domain.LevelDistrict {
				src = h.districtsUnder(i)
			}
			agg := domain.DemographicAggregate{GeoNodeID: n.ID, Level: n.Level, CharacteristicID: charID}
			var used []int
			for _, d := range src {
				r, ok := byKey[demoKey{district: d, charID: charID}]
				if !ok {
					continue
				}
				agg.Count += r.Count
				agg.Universe += r.Universe
				used = append(used, d)
			}
			if len(used) == 0 {
				res.Omitted = append(res.Omitted, domain.OmittedNode{GeoNodeID: n.ID, Level: n.Level, Reason: domain.OmitNoData})
				continue
			}
			agg.SourceDistrictCount = len(used)
			agg.SourceDistrictIDs = h.ids(used)
			if agg.Universe > 0 {
				rate := float64(agg.Count) / float64(agg.Universe)
				agg.Rate = &rate
			} else {
				res.UndefinedShares = append(res.UndefinedShares, domain.UndefinedShare{GeoNodeID: n.ID, Level: n.Level, Metric: metricRate + ":" + charID})
			}
			computed[i] = &agg
		}

		errs := checkDemographicConsistency(h, computed)
		res.Inconsistencies = append(res.Inconsistencies, errs...)
		dropped := dropSubtrees(h, errs)
		for i := range h.nodes {
			agg, ok := computed[i]
			if !ok {
				continue
			}
			if _, bad := dropped[i]; bad {
				res.Omitted = append(res.Omitted, domain.OmittedNode{GeoNodeID: agg.GeoNodeID, Level: agg.Level, Reason: domain.OmitInconsistent})
				continue
			}
			res.Records = append(res.Records, *agg)
		}
	}

	slices.SortFunc(res.Records, func(a, b domain.DemographicAggregate) int {
		if c := cmp.Compare(a.CharacteristicID, b.CharacteristicID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Level.Rank(), b.Level.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.GeoNodeID, b.GeoNodeID)
	})
	return res, res.Err()
}

func checkDemographicConsistency(h *Hierarchy, computed map[int]*domain.DemographicAggregate) []*domain.InconsistencyError {
	var out []*domain.InconsistencyError
	for i := range h.nodes {
		parent, ok := computed[i]
		if !ok || len(h.children[i]) == 0 {
			continue
		}
		var count, universe int64
		for _, c := range h.children[i] {
			if child, ok := computed[c]; ok {
				count += child.Count
				universe += child.Universe
			}
		}
		for _, f := range []struct {
			field        string
			want, summed int64
		}{
			{"count", parent.Count, count},
			{"universe", parent.Universe, universe},
		} {
			if f.want != f.summed {
				out = append(out, &domain.InconsistencyError{
					NodeID:   parent.GeoNodeID,
					Level:    parent.Level,
					Field:    f.field,
					Key:      parent.CharacteristicID,
					Expected: f.want,
					Actual:   f.summed,
					Subtree:  h.ids(h.subtree(i)),
				})
			}
		}
	}
	return out
}
