package services

import (
	"cmp"
	"slices"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// ComputeSwing returns the change of party's vote share at every node present
// in either aggregate set. Nodes missing on one side are kept with a nil
// change.
func ComputeSwing(before, after []domain.AggregateRecord, party string) []domain.SwingRow {
	type pair struct {
		level         domain.Level
		before, after *float64
		hasB, hasA    bool
	}
	rows := make(map[domain.NodeID]*pair)
	get := func(r domain.AggregateRecord) *pair {
		p, ok := rows[r.GeoNodeID]
		if !ok {
			p = &pair{level: r.Level}
			rows[r.GeoNodeID] = p
		}
		return p
	}
	for _, r := range before {
		p := get(r)
		p.hasB = true
		p.before = partyShare(r, party)
	}
	for _, r := range after {
		p := get(r)
		p.hasA = true
		p.after = partyShare(r, party)
	}

	out := make([]domain.SwingRow, 0, len(rows))
	for id, p := range rows {
		row := domain.SwingRow{
			GeoNodeID: id, Level: p.level, PartyCode: party,
			ShareBefore: p.before, ShareAfter: p.after,
			InBefore: p.hasB, InAfter: p.hasA,
		}
		if p.before != nil && p.after != nil {
			change := *p.after - *p.before
			row.Change = &change
		}
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b domain.SwingRow) int {
		if c := cmp.Compare(a.Level.Rank(), b.Level.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.GeoNodeID, b.GeoNodeID)
	})
	return out
}

// partyShare returns the party's share, zero when the node has votes but the
// party got none, and nil when the node's share is undefined.
func partyShare(r domain.AggregateRecord, party string) *float64 {
	if r.TotalVotes == 0 {
		return nil
	}
	if p, ok := r.Party(party); ok && p.VoteShare != nil {
		v := *p.VoteShare
		return &v
	}
	v := 0.0
	return &v
}

// SwingOmissions lists nodes without a defined change: present on only one
// side, or present on both with zero total votes on one of them.
func SwingOmissions(rows []domain.SwingRow) []domain.OmittedNode {
	var out []domain.OmittedNode
	for _, r := range rows {
		reason := ""
		switch {
		case !r.InBefore:
			reason = domain.OmitMissingBefore
		case !r.InAfter:
			reason = domain.OmitMissingAfter
		case r.ShareBefore == nil || r.ShareAfter == nil:
			reason = domain.OmitUndefined
		default:
			continue
		}
		out = append(out, domain.OmittedNode{GeoNodeID: r.GeoNodeID, Level: r.Level, Reason: reason})
	}
	return out
}
