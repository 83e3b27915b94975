package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// AggregateDrift compares the stored aggregates of an election with a fresh
// recomputation from the vote records.
type AggregateDrift struct {
	JurisdictionID  int64             `json:"jurisdiction_id"`
	ElectionID      domain.ElectionID `json:"election_id"`
	Stored          int               `json:"stored"`
	Recomputed      int               `json:"recomputed"`
	Patch           jsondiff.Patch    `json:"patch"`
	Inconsistencies []string          `json:"inconsistencies"`
}

func (d AggregateDrift) Clean() bool {
	return len(d.Patch) == 0 && len(d.Inconsistencies) == 0
}

// Verify re-checks stored aggregates without writing: the child-sum invariant
// over the stored rows, and a JSON patch from stored to recomputed.
func (s *ElectoralService) Verify(ctx context.Context, jurisdictionID int64, electionID domain.ElectionID) (drift AggregateDrift, err error) {
	ctx, span := startSpan(ctx, "verify",
		attribute.Int64("jurisdiction_id", jurisdictionID),
		attribute.Int64("election_id", int64(electionID)))
	defer func() { endSpan(span, err) }()

	_, h, err := s.hierarchy(ctx, jurisdictionID)
	if err != nil {
		return AggregateDrift{}, mapError(err)
	}
	all, err := s.store.FetchAggregates(ctx, electionID)
	if err != nil {
		return AggregateDrift{}, mapError(fmt.Errorf("fetch aggregates: %w", err))
	}
	stored := make([]domain.AggregateRecord, 0, len(all))
	for _, a := range all {
		if h.Contains(a.GeoNodeID) {
			stored = append(stored, a)
		}
	}
	sortAggregates(stored)

	recomputed, _, _, aggErr := s.computeAggregates(ctx, jurisdictionID, electionID)
	if aggErr != nil && len(recomputed.Inconsistencies) == 0 {
		return AggregateDrift{}, mapError(aggErr)
	}

	drift = AggregateDrift{
		JurisdictionID:  jurisdictionID,
		ElectionID:      electionID,
		Stored:          len(stored),
		Recomputed:      len(recomputed.Records),
		Inconsistencies: []string{},
	}
	incs, err := VerifyConsistency(stored, h)
	if err != nil {
		return AggregateDrift{}, mapError(err)
	}
	for _, inc := range incs {
		drift.Inconsistencies = append(drift.Inconsistencies, inc.Error())
	}

	want := recomputed.Records
	if want == nil {
		want = []domain.AggregateRecord{}
	}
	if drift.Patch, err = jsondiff.Compare(stored, want); err != nil {
		return AggregateDrift{}, fmt.Errorf("diff aggregates: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"jurisdiction_id": jurisdictionID,
		"election_id":     electionID,
		"patch_ops":       len(drift.Patch),
		"inconsistencies": len(drift.Inconsistencies),
	}).Info("electoral: verification finished")
	return drift, nil
}
