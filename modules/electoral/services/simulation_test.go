package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func TestSimulate_ThreeDistrictExample(t *testing.T) {
	h := testHierarchy(t)
	res, err := Simulate(context.Background(), testEstimates(), h, SimulationParams{Trials: 1000, Seed: 42, Workers: 4})
	require.NoError(t, err)

	root, ok := res.Summary(1)
	require.True(t, ok)
	require.Equal(t, 3, root.TotalSeats)
	require.Equal(t, 1000, root.Trials)

	a, ok := root.Party("A")
	require.True(t, ok)
	require.InDelta(t, 2, a.SeatMedian, 1e-9)
	require.InDelta(t, 1.0, a.GovernmentProbability, 1e-9)
	require.InDelta(t, 0.4833, a.VoteShareMean, 1e-3)

	b, ok := root.Party("B")
	require.True(t, ok)
	require.InDelta(t, 1, b.SeatMedian, 1e-9)
	require.InDelta(t, 0, b.GovernmentProbability, 1e-9)
	require.InDelta(t, 0.5167, b.VoteShareMean, 1e-3)

	require.Equal(t, []domain.OmittedNode{{GeoNodeID: 13, Level: domain.LevelDistrict, Reason: domain.OmitNoEstimates}}, res.Omitted)
}

func TestSimulate_QuantilesOrderedAndHistogramNormalised(t *testing.T) {
	h := testHierarchy(t)
	est := testEstimates()
	for k, v := range est {
		v.StdDev = 0.15
		est[k] = v
	}
	res, err := Simulate(context.Background(), est, h, SimulationParams{Trials: 500, Seed: 7})
	require.NoError(t, err)

	for _, s := range res.Summaries {
		var gov float64
		for _, p := range s.Parties {
			require.LessOrEqual(t, p.SeatP05, p.SeatMedian)
			require.LessOrEqual(t, p.SeatMedian, p.SeatP95)
			var total float64
			for _, bin := range p.SeatHistogram {
				require.GreaterOrEqual(t, bin.Seats, 0)
				require.LessOrEqual(t, bin.Seats, s.TotalSeats)
				total += bin.Probability
			}
			require.InDelta(t, 1, total, 1e-9)
			gov += p.GovernmentProbability
		}
		require.LessOrEqual(t, gov, 1+1e-9)
	}
}

func TestSimulate_ReproducibleAcrossWorkerCounts(t *testing.T) {
	h := testHierarchy(t)
	est := testEstimates()
	for k, v := range est {
		v.StdDev = 0.2
		est[k] = v
	}

	base, err := Simulate(context.Background(), est, h, SimulationParams{Trials: 300, Seed: 99, Workers: 1})
	require.NoError(t, err)
	for _, workers := range []int{2, 3, 8, 64} {
		got, err := Simulate(context.Background(), est, h, SimulationParams{Trials: 300, Seed: 99, Workers: workers})
		require.NoError(t, err)
		require.Equal(t, base.Summaries, got.Summaries, "workers=%d", workers)

		d1, err := base.Draws(1)
		require.NoError(t, err)
		d2, err := got.Draws(1)
		require.NoError(t, err)
		require.Equal(t, d1, d2)
	}
}

func TestSimulate_InheritsAncestorEstimates(t *testing.T) {
	h := testHierarchy(t)
	est := domain.Estimates{
		{GeoNodeID: 2, PartyCode: "A"}: {Mean: 0.6},
		{GeoNodeID: 2, PartyCode: "B"}: {Mean: 0.4},
	}
	res, err := Simulate(context.Background(), est, h, SimulationParams{Trials: 10, Seed: 1})
	require.NoError(t, err)
	require.Empty(t, res.Omitted)

	root, ok := res.Summary(1)
	require.True(t, ok)
	require.Equal(t, 4, root.TotalSeats)
	a, _ := root.Party("A")
	require.InDelta(t, 4, a.SeatMedian, 1e-9)
	require.InDelta(t, 0.6, a.VoteShareMean, 1e-12)
}

func TestSimulate_TiesAndGovernmentProbability(t *testing.T) {
	h := testHierarchy(t)
	est := domain.Estimates{
		{GeoNodeID: 10, PartyCode: "A"}: {Mean: 0.6},
		{GeoNodeID: 10, PartyCode: "B"}: {Mean: 0.4},
		{GeoNodeID: 11, PartyCode: "A"}: {Mean: 0.4},
		{GeoNodeID: 11, PartyCode: "B"}: {Mean: 0.6},
		{GeoNodeID: 12, PartyCode: "A"}: {Mean: 0.5},
		{GeoNodeID: 12, PartyCode: "B"}: {Mean: 0.5},
	}
	res, err := Simulate(context.Background(), est, h, SimulationParams{Trials: 20, Seed: 3})
	require.NoError(t, err)

	// Equal shares go to the lower party code.
	d12, ok := res.Summary(12)
	require.True(t, ok)
	a, _ := d12.Party("A")
	require.InDelta(t, 1, a.SeatMedian, 1e-9)

	// One seat each: nobody holds a strict maximum.
	sub, ok := res.Summary(3)
	require.True(t, ok)
	for _, p := range sub.Parties {
		require.InDelta(t, 0, p.GovernmentProbability, 1e-9)
	}
}

func TestSimulate_WeightedVoteShare(t *testing.T) {
	h := testHierarchy(t)
	est := domain.Estimates{
		{GeoNodeID: 10, PartyCode: "A"}: {Mean: 1},
		{GeoNodeID: 11, PartyCode: "A"}: {Mean: 0.5},
		{GeoNodeID: 11, PartyCode: "B"}: {Mean: 0.5},
	}
	res, err := Simulate(context.Background(), est, h, SimulationParams{
		Trials:  5,
		Seed:    1,
		Weights: map[domain.NodeID]float64{10: 3, 11: 1},
	})
	require.NoError(t, err)

	sub, ok := res.Summary(3)
	require.True(t, ok)
	a, _ := sub.Party("A")
	require.InDelta(t, (3*1.0+1*0.5)/4, a.VoteShareMean, 1e-12)
}

func TestSimulate_Draws(t *testing.T) {
	h := testHierarchy(t)
	res, err := Simulate(context.Background(), testEstimates(), h, SimulationParams{Trials: 50, Seed: 5})
	require.NoError(t, err)

	draws, err := res.Draws(3)
	require.NoError(t, err)
	require.Len(t, draws, 50)
	for i, d := range draws {
		require.Equal(t, i, d.Trial)
		require.Equal(t, 2, d.Seats["A"]+d.Seats["B"])
	}

	_, err = res.Draws(13)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = res.Draws(404)
	require.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestSimulate_RejectsBadParameters(t *testing.T) {
	h := testHierarchy(t)

	_, err := Simulate(context.Background(), testEstimates(), h, SimulationParams{Trials: 0})
	require.ErrorIs(t, err, domain.ErrInvalidTrialCount)

	_, err = Simulate(context.Background(), domain.Estimates{{GeoNodeID: 10, PartyCode: "A"}: {Mean: 1.2}}, h, SimulationParams{Trials: 1})
	require.ErrorIs(t, err, domain.ErrInvalidEstimate)

	_, err = Simulate(context.Background(), domain.Estimates{{GeoNodeID: 500, PartyCode: "A"}: {Mean: 0.5}}, h, SimulationParams{Trials: 1})
	require.ErrorIs(t, err, domain.ErrUnknownNode)

	_, err = Simulate(context.Background(), testEstimates(), h, SimulationParams{Trials: 1, Weights: map[domain.NodeID]float64{10: -1}})
	require.ErrorIs(t, err, domain.ErrInvalidEstimate)
}

func TestSimulate_Cancelled(t *testing.T) {
	h := testHierarchy(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, testEstimates(), h, SimulationParams{Trials: 100, Seed: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	require.InDelta(t, 2.5, percentile(sorted, 0.5), 1e-12)
	require.InDelta(t, 1.15, percentile(sorted, 0.05), 1e-12)
	require.InDelta(t, 3.85, percentile(sorted, 0.95), 1e-12)
	require.Equal(t, 1.0, percentile(sorted, 0))
	require.Equal(t, 4.0, percentile(sorted, 1))
	require.Equal(t, 7.0, percentile([]float64{7}, 0.5))
	require.Equal(t, 0.0, percentile(nil, 0.5))
}

func TestEstimatesFromAggregates(t *testing.T) {
	h := testHierarchy(t)
	agg, err := Aggregate(testRecords(1), h)
	require.NoError(t, err)

	est := EstimatesFromAggregates(agg.Records, 0.02)
	e, ok := est[domain.EstimateKey{GeoNodeID: 11, PartyCode: "B"}]
	require.True(t, ok)
	require.InDelta(t, 0.7, e.Mean, 1e-12)
	require.Equal(t, 0.02, e.StdDev)
}
