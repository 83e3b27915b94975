package services

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const (
	DefaultMinSamples = 10
	significanceLevel = 0.05
)

type CorrelationResult struct {
	Correlations []domain.Correlation           `json:"correlations"`
	Skipped      []domain.SkippedCharacteristic `json:"skipped"`
}

// Correlate relates district-level swing to each demographic rate. Only
// districts with both a defined change and a defined rate are paired.
// Characteristics with fewer than minSamples pairs, or with no variance on
// either side, are skipped. Results are ranked by |pearson r| descending.
func Correlate(swing []domain.SwingRow, demographics []domain.DemographicAggregate, minSamples int) CorrelationResult {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	minSamples = max(minSamples, 3)

	change := make(map[domain.NodeID]float64)
	for _, r := range swing {
		if r.Level == domain.LevelDistrict && r.Change != nil {
			change[r.GeoNodeID] = *r.Change
		}
	}

	type series struct{ x, y []float64 }
	byChar := make(map[string]*series)
	var chars []string
	for _, d := range demographics {
		if d.Level != domain.LevelDistrict {
			continue
		}
		s, ok := byChar[d.CharacteristicID]
		if !ok {
			s = &series{}
			byChar[d.CharacteristicID] = s
			chars = append(chars, d.CharacteristicID)
		}
		c, hasChange := change[d.GeoNodeID]
		if d.Rate == nil || !hasChange {
			continue
		}
		s.x = append(s.x, *d.Rate)
		s.y = append(s.y, c)
	}
	slices.Sort(chars)

	var res CorrelationResult
	for _, id := range chars {
		s := byChar[id]
		n := len(s.x)
		if n < minSamples || constant(s.x) || constant(s.y) {
			res.Skipped = append(res.Skipped, domain.SkippedCharacteristic{CharacteristicID: id, N: n})
			continue
		}
		r := stat.Correlation(s.x, s.y, nil)
		rho := stat.Correlation(ranks(s.x), ranks(s.y), nil)
		pr := correlationP(r, n)
		res.Correlations = append(res.Correlations, domain.Correlation{
			CharacteristicID: id,
			N:                n,
			PearsonR:         r,
			PearsonP:         pr,
			SpearmanRho:      rho,
			SpearmanP:        correlationP(rho, n),
			Significant:      pr < significanceLevel,
			Strength:         strength(r),
		})
	}
	slices.SortStableFunc(res.Correlations, func(a, b domain.Correlation) int {
		return cmp.Compare(math.Abs(b.PearsonR), math.Abs(a.PearsonR))
	})
	return res
}

// correlationP is the two-sided p-value of r under the t distribution with
// n-2 degrees of freedom.
func correlationP(r float64, n int) float64 {
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - dist.CDF(math.Abs(t)))
}

func strength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.5:
		return "strong"
	case a >= 0.3:
		return "moderate"
	default:
		return "weak"
	}
}

// ranks assigns 1-based ranks, averaging ties.
func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(x[a], x[b]) })
	out := make([]float64, len(x))
	for k := 0; k < len(idx); {
		j := k
		for j < len(idx) && x[idx[j]] == x[idx[k]] {
			j++
		}
		avg := float64(k+j+1) / 2
		for m := k; m < j; m++ {
			out[idx[m]] = avg
		}
		k = j
	}
	return out
}

func constant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}
