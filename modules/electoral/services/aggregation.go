package services

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const metricVoteShare = "vote_share"

// AggregationResult is the output of one aggregation pass. Records hold every
// node that survived the consistency check; nothing dropped is silent: nodes
// without data or inside an inconsistent subtree are listed in Omitted.
type AggregationResult struct {
	Records         []domain.AggregateRecord     `json:"records"`
	Omitted         []domain.OmittedNode         `json:"omitted"`
	UndefinedShares []domain.UndefinedShare      `json:"undefined_shares"`
	Inconsistencies []*domain.InconsistencyError `json:"-"`
}

// Err joins all consistency violations, or returns nil.
func (r AggregationResult) Err() error {
	if len(r.Inconsistencies) == 0 {
		return nil
	}
	errs := make([]error, len(r.Inconsistencies))
	for i, e := range r.Inconsistencies {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Aggregate rolls district vote records up through h. Records may span several
// elections; each is aggregated independently. Invalid input fails the whole
// call. Consistency violations only remove the offending subtree: the partial
// result is returned together with a non-nil error wrapping
// domain.ErrAggregationInconsistency.
func Aggregate(records []domain.VoteRecord, h *Hierarchy) (AggregationResult, error) {
	byElection, elections, err := indexVoteRecords(records, h)
	if err != nil {
		return AggregationResult{}, err
	}

	var res AggregationResult
	for _, e := range elections {
		out := aggregateElection(e, byElection[e], h)
		res.Records = append(res.Records, out.Records...)
		res.Omitted = append(res.Omitted, out.Omitted...)
		res.UndefinedShares = append(res.UndefinedShares, out.UndefinedShares...)
		res.Inconsistencies = append(res.Inconsistencies, out.Inconsistencies...)
	}
	return res, res.Err()
}

func indexVoteRecords(records []domain.VoteRecord, h *Hierarchy) (map[domain.ElectionID]map[int]*domain.VoteRecord, []domain.ElectionID, error) {
	byElection := make(map[domain.ElectionID]map[int]*domain.VoteRecord)
	var elections []domain.ElectionID
	for k := range records {
		r := &records[k]
		if err := r.Validate(); err != nil {
			return nil, nil, err
		}
		i, err := h.pos(r.GeoNodeID)
		if err != nil {
			return nil, nil, fmt.Errorf("vote record: %w", err)
		}
		if lvl := h.nodes[i].Level; lvl != domain.LevelDistrict {
			return nil, nil, &domain.RecordError{NodeID: r.GeoNodeID, ElectionID: r.ElectionID, Reason: "vote record at " + lvl.String() + " node"}
		}
		m, ok := byElection[r.ElectionID]
		if !ok {
			m = make(map[int]*domain.VoteRecord)
			byElection[r.ElectionID] = m
			elections = append(elections, r.ElectionID)
		}
		if _, dup := m[i]; dup {
			return nil, nil, &domain.RecordError{NodeID: r.GeoNodeID, ElectionID: r.ElectionID, Reason: "duplicate district record"}
		}
		m[i] = r
	}
	slices.Sort(elections)
	return byElection, elections, nil
}

func aggregateElection(election domain.ElectionID, byDistrict map[int]*domain.VoteRecord, h *Hierarchy) AggregationResult {
	var res AggregationResult
	computed := make(map[int]*domain.AggregateRecord)

	for i, n := range h.nodes {
		var src []int
		if n.Level == domain.LevelDistrict {
			if _, ok := byDistrict[i]; ok {
				src = []int{i}
			}
		} else {
			for _, d := range h.districtsUnder(i) {
				if _, ok := byDistrict[d]; ok {
					src = append(src, d)
				}
			}
		}
		if len(src) == 0 {
			res.Omitted = append(res.Omitted, domain.OmittedNode{GeoNodeID: n.ID, Level: n.Level, Reason: domain.OmitNoData})
			continue
		}
		rec := foldVotes(election, n, src, byDistrict, h)
		if rec.TotalVotes == 0 {
			res.UndefinedShares = append(res.UndefinedShares, domain.UndefinedShare{GeoNodeID: n.ID, Level: n.Level, Metric: metricVoteShare})
		}
		computed[i] = &rec
	}

	res.Inconsistencies = checkVoteConsistency(h, computed)
	dropped := dropSubtrees(h, res.Inconsistencies)
	for i := range h.nodes {
		rec, ok := computed[i]
		if !ok {
			continue
		}
		if _, bad := dropped[i]; bad {
			res.Omitted = append(res.Omitted, domain.OmittedNode{GeoNodeID: rec.GeoNodeID, Level: rec.Level, Reason: domain.OmitInconsistent})
			continue
		}
		res.Records = append(res.Records, *rec)
	}
	sortAggregates(res.Records)
	return res
}

func foldVotes(election domain.ElectionID, n domain.GeoNode, src []int, byDistrict map[int]*domain.VoteRecord, h *Hierarchy) domain.AggregateRecord {
	rec := domain.AggregateRecord{
		GeoNodeID:           n.ID,
		ElectionID:          election,
		Level:               n.Level,
		TotalSeats:          len(src),
		SourceDistrictCount: len(src),
		SourceDistrictIDs:   h.ids(src),
	}
	votes := make(map[string]int64)
	seats := make(map[string]int)
	for _, d := range src {
		vr := byDistrict[d]
		rec.TotalVotes += vr.TotalVotes
		for _, p := range vr.Parties {
			votes[p.PartyCode] += p.Votes
			if _, ok := seats[p.PartyCode]; !ok {
				seats[p.PartyCode] = 0
			}
			if p.IsWinner {
				seats[p.PartyCode]++
			}
		}
	}
	codes := make([]string, 0, len(votes))
	for code := range votes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	rec.Parties = make([]domain.PartyAggregate, 0, len(codes))
	for _, code := range codes {
		pa := domain.PartyAggregate{PartyCode: code, Votes: votes[code], Seats: seats[code]}
		if rec.TotalVotes > 0 {
			share := float64(votes[code]) / float64(rec.TotalVotes)
			pa.VoteShare = &share
		}
		rec.Parties = append(rec.Parties, pa)
	}
	return rec
}

// VerifyConsistency checks the child-sum invariant over an already materialised
// aggregate set, e.g. one read back from storage. Records must belong to a
// single election.
func VerifyConsistency(records []domain.AggregateRecord, h *Hierarchy) ([]*domain.InconsistencyError, error) {
	computed := make(map[int]*domain.AggregateRecord, len(records))
	for k := range records {
		r := &records[k]
		i, err := h.pos(r.GeoNodeID)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 && r.ElectionID != records[0].ElectionID {
			return nil, fmt.Errorf("%w: mixed elections %d and %d", domain.ErrInvalidRecord, records[0].ElectionID, r.ElectionID)
		}
		computed[i] = r
	}
	return checkVoteConsistency(h, computed), nil
}

func checkVoteConsistency(h *Hierarchy, computed map[int]*domain.AggregateRecord) []*domain.InconsistencyError {
	var out []*domain.InconsistencyError
	for i := range h.nodes {
		parent, ok := computed[i]
		if !ok || len(h.children[i]) == 0 {
			continue
		}
		var (
			totalVotes int64
			totalSeats int64
			partyVotes = make(map[string]int64)
			partySeats = make(map[string]int64)
		)
		for _, c := range h.children[i] {
			child, ok := computed[c]
			if !ok {
				continue
			}
			totalVotes += child.TotalVotes
			totalSeats += int64(child.TotalSeats)
			for _, p := range child.Parties {
				partyVotes[p.PartyCode] += p.Votes
				partySeats[p.PartyCode] += int64(p.Seats)
			}
		}
		mismatch := func(field, key string, expected, actual int64) {
			out = append(out, &domain.InconsistencyError{
				NodeID:   parent.GeoNodeID,
				Level:    parent.Level,
				Field:    field,
				Key:      key,
				Expected: expected,
				Actual:   actual,
				Subtree:  h.ids(h.subtree(i)),
			})
		}
		if totalVotes != parent.TotalVotes {
			mismatch("total_votes", "", parent.TotalVotes, totalVotes)
		}
		if totalSeats != int64(parent.TotalSeats) {
			mismatch("total_seats", "", int64(parent.TotalSeats), totalSeats)
		}
		codes := partyUnion(parent.Parties, partySeats)
		for _, code := range codes {
			p, _ := parent.Party(code)
			if partySeats[code] != int64(p.Seats) {
				mismatch("seats", code, int64(p.Seats), partySeats[code])
			}
			if partyVotes[code] != p.Votes {
				mismatch("votes", code, p.Votes, partyVotes[code])
			}
		}
	}
	return out
}

func partyUnion(parties []domain.PartyAggregate, extra map[string]int64) []string {
	set := make(map[string]struct{}, len(parties)+len(extra))
	for _, p := range parties {
		set[p.PartyCode] = struct{}{}
	}
	for code := range extra {
		set[code] = struct{}{}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

func dropSubtrees(h *Hierarchy, errs []*domain.InconsistencyError) map[int]struct{} {
	dropped := make(map[int]struct{})
	for _, e := range errs {
		for _, id := range e.Subtree {
			dropped[h.index[id]] = struct{}{}
		}
	}
	return dropped
}

// sortAggregates orders records by election, then level from district up,
// then node id.
func sortAggregates(records []domain.AggregateRecord) {
	slices.SortFunc(records, func(a, b domain.AggregateRecord) int {
		if c := cmp.Compare(a.ElectionID, b.ElectionID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Level.Rank(), b.Level.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.GeoNodeID, b.GeoNodeID)
	})
}
