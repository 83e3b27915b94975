package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func correlationFixture(changes []float64, rates map[string][]float64) ([]domain.SwingRow, []domain.DemographicAggregate) {
	var swing []domain.SwingRow
	for i, c := range changes {
		swing = append(swing, domain.SwingRow{GeoNodeID: domain.NodeID(100 + i), Level: domain.LevelDistrict, PartyCode: "A", Change: float(c)})
	}
	// Aggregate-level rows never pair.
	swing = append(swing, domain.SwingRow{GeoNodeID: 1, Level: domain.LevelJurisdictionGeneral, Change: float(0.3)})

	var demo []domain.DemographicAggregate
	for id, values := range rates {
		for i, v := range values {
			demo = append(demo, domain.DemographicAggregate{
				GeoNodeID:        domain.NodeID(100 + i),
				Level:            domain.LevelDistrict,
				CharacteristicID: id,
				Rate:             float(v),
			})
		}
	}
	return swing, demo
}

func TestCorrelate(t *testing.T) {
	changes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	swing, demo := correlationFixture(changes, map[string][]float64{
		"perfect":  {3, 5, 7, 9, 11, 13, 15, 17, 19, 21, 23, 25},
		"inverse":  {12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		"mixed":    {1, 3, 2, 4, 6, 5, 7, 9, 8, 10, 12, 11},
		"flat":     {5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
		"sparse":   {1, 2, 3},
		"unpaired": {},
	})

	res := Correlate(swing, demo, 0)

	ids := make([]string, 0, len(res.Correlations))
	for _, c := range res.Correlations {
		ids = append(ids, c.CharacteristicID)
	}
	require.Len(t, ids, 3)
	require.ElementsMatch(t, []string{"inverse", "perfect"}, ids[:2])
	require.Equal(t, "mixed", ids[2])

	var inverse domain.Correlation
	for _, c := range res.Correlations {
		if c.CharacteristicID == "inverse" {
			inverse = c
		}
	}
	require.Equal(t, 12, inverse.N)
	require.InDelta(t, -1, inverse.PearsonR, 1e-9)
	require.InDelta(t, -1, inverse.SpearmanRho, 1e-9)
	require.InDelta(t, 0, inverse.PearsonP, 1e-6)
	require.True(t, inverse.Significant)
	require.Equal(t, "strong", inverse.Strength)

	mixed := res.Correlations[2]
	require.InDelta(t, 0.972028, mixed.PearsonR, 1e-6)
	require.InDelta(t, 0.972028, mixed.SpearmanRho, 1e-6)
	require.Less(t, mixed.PearsonP, 0.001)

	require.ElementsMatch(t, []domain.SkippedCharacteristic{
		{CharacteristicID: "flat", N: 12},
		{CharacteristicID: "sparse", N: 3},
	}, res.Skipped)
}

func TestCorrelate_MinSamples(t *testing.T) {
	swing, demo := correlationFixture([]float64{1, 2, 3, 4}, map[string][]float64{"x": {1, 3, 2, 4}})

	require.Empty(t, Correlate(swing, demo, 0).Correlations)
	res := Correlate(swing, demo, 4)
	require.Len(t, res.Correlations, 1)
	require.InDelta(t, 0.8, res.Correlations[0].PearsonR, 1e-12)
	require.Equal(t, "strong", res.Correlations[0].Strength)
}

func TestCorrelationP(t *testing.T) {
	require.InDelta(t, 0.09785, correlationP(0.5, 12), 1e-4)
	require.Equal(t, 0.0, correlationP(1, 12))
	require.InDelta(t, 1.0, correlationP(0, 12), 1e-12)
}

func TestRanksAverageTies(t *testing.T) {
	require.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks([]float64{1, 2, 2, 3}))
	require.Equal(t, []float64{3, 1, 2}, ranks([]float64{9, 1, 5}))
}

func TestStrength(t *testing.T) {
	require.Equal(t, "strong", strength(-0.5))
	require.Equal(t, "moderate", strength(0.3))
	require.Equal(t, "weak", strength(0.29))
}
