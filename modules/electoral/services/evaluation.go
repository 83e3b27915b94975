package services

import (
	"math"
	"slices"
	"strings"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// Evaluate scores a projection summary against the real aggregate at the same
// node. Parties present on only one side count with zero seats on the other.
// A summary with a zero ElectionID matches any election.
func Evaluate(summary domain.ProjectionSummary, actual domain.AggregateRecord) (domain.AccuracyReport, error) {
	if summary.GeoNodeID != actual.GeoNodeID ||
		(summary.ElectionID != 0 && summary.ElectionID != actual.ElectionID) {
		return domain.AccuracyReport{}, &domain.ScopeError{
			ProjectionNode: summary.GeoNodeID,
			ActualNode:     actual.GeoNodeID,
			ProjectionElec: summary.ElectionID,
			ActualElec:     actual.ElectionID,
		}
	}
	if actual.TotalSeats == 0 {
		return domain.AccuracyReport{}, domain.ErrDivisionUndefined
	}

	set := make(map[string]struct{}, len(summary.Parties)+len(actual.Parties))
	for _, p := range summary.Parties {
		set[p.PartyCode] = struct{}{}
	}
	for _, p := range actual.Parties {
		set[p.PartyCode] = struct{}{}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	report := domain.AccuracyReport{
		ProjectionID: summary.ProjectionID,
		ElectionID:   actual.ElectionID,
		GeoNodeID:    actual.GeoNodeID,
		TotalSeats:   actual.TotalSeats,
		Parties:      make([]domain.PartyAccuracy, 0, len(codes)),
	}
	for _, code := range codes {
		proj, _ := summary.Party(code)
		got := actual.SeatsFor(code)
		absErr := math.Abs(proj.SeatMedian - float64(got))
		report.Parties = append(report.Parties, domain.PartyAccuracy{
			PartyCode:      code,
			PredictedSeats: proj.SeatMedian,
			ActualSeats:    got,
			AbsoluteError:  absErr,
		})
		report.SeatErrorSum += absErr
	}
	report.OverallAccuracy = 1 - report.SeatErrorSum/(2*float64(actual.TotalSeats))
	return report, nil
}

// SystematicBias returns mean(predicted - actual) per party over a batch of
// reports. Positive values mean the projections overstate the party.
func SystematicBias(reports []domain.AccuracyReport) []domain.PartyBias {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range reports {
		for _, p := range r.Parties {
			sums[p.PartyCode] += p.PredictedSeats - float64(p.ActualSeats)
			counts[p.PartyCode]++
		}
	}
	out := make([]domain.PartyBias, 0, len(sums))
	for code, sum := range sums {
		out = append(out, domain.PartyBias{PartyCode: code, MeanError: sum / float64(counts[code]), Reports: counts[code]})
	}
	slices.SortFunc(out, func(a, b domain.PartyBias) int {
		return strings.Compare(a.PartyCode, b.PartyCode)
	})
	return out
}
