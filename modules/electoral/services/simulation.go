package services

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// trialBlock is the unit of work handed to a worker. Float sums are reduced per
// block and then across blocks in block order, which keeps results identical
// for any worker count.
const trialBlock = 64

type SimulationParams struct {
	ProjectionID uuid.UUID
	ElectionID   domain.ElectionID
	Trials       int
	Seed         int64
	// Workers <= 0 means runtime.GOMAXPROCS(0).
	Workers int
	// Weights are per-district weights for vote_share_mean; missing districts
	// weigh 1.
	Weights map[domain.NodeID]float64
}

func (p SimulationParams) Validate() error {
	if p.Trials < 1 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidTrialCount, p.Trials)
	}
	for id, w := range p.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %v for district %d", domain.ErrInvalidEstimate, w, id)
		}
	}
	return nil
}

// SimulationResult holds the per-node summaries and the per-trial district
// winners they were reduced from.
type SimulationResult struct {
	Summaries []domain.ProjectionSummary `json:"summaries"`
	Omitted   []domain.OmittedNode       `json:"omitted"`

	projectionID uuid.UUID
	trials       int
	h            *Hierarchy
	parties      []string
	// column maps a simulated district position to its column in winners.
	column  map[int]int
	winners []int16
}

func (r *SimulationResult) Summary(id domain.NodeID) (domain.ProjectionSummary, bool) {
	for _, s := range r.Summaries {
		if s.GeoNodeID == id {
			return s, true
		}
	}
	return domain.ProjectionSummary{}, false
}

// Draws rebuilds the per-trial seat outcome at a node. Draws are not persisted;
// they exist only for inspection of a finished run.
func (r *SimulationResult) Draws(id domain.NodeID) ([]domain.ProjectionDraw, error) {
	i, err := r.h.pos(id)
	if err != nil {
		return nil, err
	}
	cols := r.columnsUnder(i)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: node %d has no simulated districts", domain.ErrNotFound, id)
	}
	width := len(r.column)
	out := make([]domain.ProjectionDraw, r.trials)
	for t := range r.trials {
		seats := make(map[string]int, len(r.parties))
		for _, code := range r.parties {
			seats[code] = 0
		}
		row := r.winners[t*width : (t+1)*width]
		for _, c := range cols {
			seats[r.parties[row[c]]]++
		}
		out[t] = domain.ProjectionDraw{ProjectionID: r.projectionID, GeoNodeID: id, Trial: t, Seats: seats}
	}
	return out, nil
}

func (r *SimulationResult) columnsUnder(i int) []int {
	src := []int{i}
	if r.h.nodes[i].Level != domain.LevelDistrict {
		src = r.h.districtsUnder(i)
	}
	cols := make([]int, 0, len(src))
	for _, d := range src {
		if c, ok := r.column[d]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// districtModel is the estimate vector a district draws from, aligned with
// the global party order.
type districtModel struct {
	pos    int
	mean   []float64
	stddev []float64
}

// Simulate runs a seeded Monte Carlo seat projection. Each district draws from
// its own estimates or, failing that, the nearest ancestor's. Trial t uses a
// PCG stream seeded with (seed, t), so the outcome does not depend on the
// number of workers or on scheduling.
func Simulate(ctx context.Context, estimates domain.Estimates, h *Hierarchy, params SimulationParams) (*SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := estimates.Validate(); err != nil {
		return nil, err
	}
	byNode := estimates.ByNode()
	for id := range byNode {
		if !h.Contains(id) {
			return nil, fmt.Errorf("estimate: %w: %d", domain.ErrUnknownNode, id)
		}
	}

	parties := estimatedParties(estimates)
	if len(parties) > math.MaxInt16 {
		return nil, fmt.Errorf("%w: %d parties", domain.ErrInvalidEstimate, len(parties))
	}
	models := districtModels(byNode, h, parties)

	res := &SimulationResult{
		projectionID: params.ProjectionID,
		trials:       params.Trials,
		h:            h,
		parties:      parties,
		column:       make(map[int]int, len(models)),
	}
	for c, m := range models {
		res.column[m.pos] = c
	}

	shareSums, err := runTrials(ctx, models, len(parties), params, res)
	if err != nil {
		return nil, err
	}
	res.reduce(params, shareSums, models)
	return res, nil
}

func estimatedParties(estimates domain.Estimates) []string {
	set := make(map[string]struct{})
	for k := range estimates {
		set[k.PartyCode] = struct{}{}
	}
	parties := make([]string, 0, len(set))
	for code := range set {
		parties = append(parties, code)
	}
	slices.Sort(parties)
	return parties
}

func districtModels(byNode map[domain.NodeID]map[string]domain.Estimate, h *Hierarchy, parties []string) []districtModel {
	var models []districtModel
	if len(parties) == 0 {
		return nil
	}
	for i, n := range h.nodes {
		if n.Level != domain.LevelDistrict {
			continue
		}
		src, ok := byNode[n.ID]
		for _, a := range h.ancestors[i] {
			if ok {
				break
			}
			src, ok = byNode[h.nodes[a].ID]
		}
		if !ok {
			continue
		}
		m := districtModel{pos: i, mean: make([]float64, len(parties)), stddev: make([]float64, len(parties))}
		for p, code := range parties {
			if e, has := src[code]; has {
				m.mean[p] = e.Mean
				m.stddev[p] = e.StdDev
			}
		}
		models = append(models, m)
	}
	return models
}

// runTrials fills res.winners and returns, per district and party, the sum of
// drawn shares over all trials.
func runTrials(ctx context.Context, models []districtModel, nParties int, params SimulationParams, res *SimulationResult) ([]float64, error) {
	width := len(models)
	res.winners = make([]int16, params.Trials*width)
	blocks := (params.Trials + trialBlock - 1) / trialBlock
	blockSums := make([][]float64, blocks)

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, blocks)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			shares := make([]float64, nParties)
			for b := w; b < blocks; b += workers {
				sums := make([]float64, width*nParties)
				last := min((b+1)*trialBlock, params.Trials)
				for t := b * trialBlock; t < last; t++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					rng := rand.New(rand.NewPCG(uint64(params.Seed), uint64(t)))
					row := res.winners[t*width : (t+1)*width]
					for c := range models {
						row[c] = int16(drawDistrict(rng, &models[c], shares))
						acc := sums[c*nParties : (c+1)*nParties]
						for p, s := range shares {
							acc[p] += s
						}
					}
				}
				blockSums[b] = sums
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make([]float64, width*nParties)
	for _, sums := range blockSums {
		for k, v := range sums {
			total[k] += v
		}
	}
	return total, nil
}

// drawDistrict samples one share vector into shares and returns the winning
// party index. Exactly one normal variate is consumed per party.
func drawDistrict(rng *rand.Rand, m *districtModel, shares []float64) int {
	var sum float64
	for p := range shares {
		v := m.mean[p] + m.stddev[p]*rng.NormFloat64()
		v = min(max(v, 0), 1)
		shares[p] = v
		sum += v
	}
	if sum == 0 {
		copy(shares, m.mean)
		for _, v := range shares {
			sum += v
		}
	}
	if sum == 0 {
		for p := range shares {
			shares[p] = 1
		}
		sum = float64(len(shares))
	}
	winner := 0
	for p := range shares {
		shares[p] /= sum
		if shares[p] > shares[winner] {
			winner = p
		}
	}
	return winner
}

func (r *SimulationResult) reduce(params SimulationParams, shareSums []float64, models []districtModel) {
	nParties := len(r.parties)
	width := len(models)
	for i, n := range r.h.nodes {
		cols := r.columnsUnder(i)
		if len(cols) == 0 {
			r.Omitted = append(r.Omitted, domain.OmittedNode{GeoNodeID: n.ID, Level: n.Level, Reason: domain.OmitNoEstimates})
			continue
		}

		seats := make([][]float64, nParties)
		for p := range seats {
			seats[p] = make([]float64, r.trials)
		}
		govWins := make([]int, nParties)
		counts := make([]int, nParties)
		for t := range r.trials {
			clear(counts)
			row := r.winners[t*width : (t+1)*width]
			for _, c := range cols {
				counts[row[c]]++
			}
			for p, v := range counts {
				seats[p][t] = float64(v)
			}
			if p, ok := strictMax(counts); ok {
				govWins[p]++
			}
		}

		weights := make([]float64, len(cols))
		var weightSum float64
		for k, c := range cols {
			w := 1.0
			if v, ok := params.Weights[r.h.nodes[models[c].pos].ID]; ok {
				w = v
			}
			weights[k] = w
			weightSum += w
		}
		if weightSum <= 0 {
			weights = nil
		}

		summary := domain.ProjectionSummary{
			ProjectionID: params.ProjectionID,
			GeoNodeID:    n.ID,
			Level:        n.Level,
			ElectionID:   params.ElectionID,
			Trials:       r.trials,
			Seed:         params.Seed,
			TotalSeats:   len(cols),
			Parties:      make([]domain.PartyProjection, nParties),
		}
		districtMeans := make([]float64, len(cols))
		for p, code := range r.parties {
			for k, c := range cols {
				districtMeans[k] = shareSums[c*nParties+p] / float64(r.trials)
			}
			sorted := seats[p]
			slices.Sort(sorted)
			summary.Parties[p] = domain.PartyProjection{
				PartyCode:             code,
				SeatMedian:            percentile(sorted, 0.5),
				SeatP05:               percentile(sorted, 0.05),
				SeatP95:               percentile(sorted, 0.95),
				VoteShareMean:         stat.Mean(districtMeans, weights),
				GovernmentProbability: float64(govWins[p]) / float64(r.trials),
				SeatHistogram:         histogram(sorted),
			}
		}
		r.Summaries = append(r.Summaries, summary)
	}
	slices.SortStableFunc(r.Summaries, func(a, b domain.ProjectionSummary) int {
		return cmp.Compare(a.Level.Rank(), b.Level.Rank())
	})
}

// strictMax returns the index holding the single largest count.
func strictMax(counts []int) (int, bool) {
	best, unique := 0, true
	for p := 1; p < len(counts); p++ {
		switch {
		case counts[p] > counts[best]:
			best, unique = p, true
		case counts[p] == counts[best]:
			unique = false
		}
	}
	return best, unique
}

// percentile interpolates linearly between the order statistics of sorted
// (the Hyndman-Fan type 7 estimator).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

func histogram(sorted []float64) []domain.HistogramBin {
	var bins []domain.HistogramBin
	n := float64(len(sorted))
	for k := 0; k < len(sorted); {
		j := k
		for j < len(sorted) && sorted[j] == sorted[k] {
			j++
		}
		bins = append(bins, domain.HistogramBin{Seats: int(sorted[k]), Probability: float64(j-k) / n})
		k = j
	}
	return bins
}

// EstimatesFromAggregates turns observed vote shares into estimates with a
// uniform stddev. Parties with undefined shares are skipped.
func EstimatesFromAggregates(records []domain.AggregateRecord, stddev float64) domain.Estimates {
	out := make(domain.Estimates)
	for _, r := range records {
		for _, p := range r.Parties {
			if p.VoteShare == nil {
				continue
			}
			out[domain.EstimateKey{GeoNodeID: r.GeoNodeID, PartyCode: p.PartyCode}] = domain.Estimate{Mean: *p.VoteShare, StdDev: stddev}
		}
	}
	return out
}
