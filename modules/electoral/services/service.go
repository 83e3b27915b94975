package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/pkg/eventbus"
)

// Store is the read/write boundary the service runs against. Implementations
// live in infrastructure/persistence (Postgres) and infrastructure/csvstore.
type Store interface {
	FetchGeoNodes(ctx context.Context, jurisdictionID int64) ([]domain.GeoNode, error)
	FetchVoteRecords(ctx context.Context, electionID domain.ElectionID) ([]domain.VoteRecord, error)
	FetchVoteEstimates(ctx context.Context, jurisdictionID int64) (domain.Estimates, error)
	FetchDemographics(ctx context.Context, jurisdictionID int64) ([]domain.DemographicRecord, error)

	// SaveAggregates replaces the election's aggregates for the nodes of one
	// jurisdiction only.
	SaveAggregates(ctx context.Context, jurisdictionID int64, electionID domain.ElectionID, records []domain.AggregateRecord) error
	FetchAggregates(ctx context.Context, electionID domain.ElectionID) ([]domain.AggregateRecord, error)
	SaveProjection(ctx context.Context, projectionID uuid.UUID, summaries []domain.ProjectionSummary) error
	FetchProjection(ctx context.Context, projectionID uuid.UUID) ([]domain.ProjectionSummary, error)
	SaveAccuracyReport(ctx context.Context, report domain.AccuracyReport) error
	FetchAccuracyReports(ctx context.Context, projectionIDs []uuid.UUID) ([]domain.AccuracyReport, error)
}

var tracer = otel.Tracer("electoral-services")

type ElectoralService struct {
	store   Store
	cache   ResultCache
	bus     eventbus.EventBus
	log     *logrus.Logger
	workers int
	now     func() time.Time
}

type Option func(*ElectoralService)

func WithCache(c ResultCache) Option {
	return func(s *ElectoralService) { s.cache = c }
}

func WithWorkers(n int) Option {
	return func(s *ElectoralService) { s.workers = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *ElectoralService) { s.now = now }
}

func NewElectoralService(store Store, bus eventbus.EventBus, log *logrus.Logger, opts ...Option) *ElectoralService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if bus == nil {
		bus = eventbus.NewEventPublisher(log)
	}
	s := &ElectoralService{store: store, bus: bus, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "electoral."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *ElectoralService) hierarchy(ctx context.Context, jurisdictionID int64) ([]domain.GeoNode, *Hierarchy, error) {
	nodes, err := s.store.FetchGeoNodes(ctx, jurisdictionID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch geo nodes: %w", err)
	}
	h, err := BuildHierarchy(nodes)
	if err != nil {
		return nil, nil, err
	}
	return nodes, h, nil
}

// inScope drops records of other jurisdictions; the record source is keyed by
// election only.
func (s *ElectoralService) inScope(records []domain.VoteRecord, h *Hierarchy, electionID domain.ElectionID) []domain.VoteRecord {
	out := make([]domain.VoteRecord, 0, len(records))
	for _, r := range records {
		if h.Contains(r.GeoNodeID) {
			out = append(out, r)
		}
	}
	if skipped := len(records) - len(out); skipped > 0 {
		s.log.WithFields(logrus.Fields{"election_id": electionID, "records": skipped}).
			Debug("electoral: vote records outside jurisdiction ignored")
	}
	return out
}

func (s *ElectoralService) computeAggregates(ctx context.Context, jurisdictionID int64, electionID domain.ElectionID) (AggregationResult, string, bool, error) {
	nodes, h, err := s.hierarchy(ctx, jurisdictionID)
	if err != nil {
		return AggregationResult{}, "", false, err
	}
	records, err := s.store.FetchVoteRecords(ctx, electionID)
	if err != nil {
		return AggregationResult{}, "", false, fmt.Errorf("fetch vote records: %w", err)
	}
	records = s.inScope(records, h, electionID)

	version, err := ContentVersion(nodes, records)
	if err != nil {
		return AggregationResult{}, "", false, err
	}
	key := CacheKey("aggregate", version, jurisdictionID, electionID)
	var cached AggregationResult
	if s.cacheGet(ctx, "aggregate", key, &cached) {
		return cached, version, true, nil
	}

	res, err := Aggregate(records, h)
	if err != nil && len(res.Inconsistencies) == 0 {
		return AggregationResult{}, version, false, err
	}
	for _, u := range res.UndefinedShares {
		s.log.WithFields(logrus.Fields{"node_id": u.GeoNodeID, "election_id": electionID, "metric": u.Metric}).
			Warn("electoral: share undefined for zero total votes")
	}
	for _, inc := range res.Inconsistencies {
		s.log.WithFields(logrus.Fields{"node_id": inc.NodeID, "election_id": electionID, "field": inc.Field, "key": inc.Key}).
			Warn(inc.Error())
	}
	if err == nil {
		s.cacheSet(ctx, key, res)
	}
	return res, version, false, err
}

// Aggregate recomputes and wholesale replaces the stored aggregates of one
// election within a jurisdiction. When a subtree is inconsistent the
// remaining records are still stored and the error is returned alongside.
func (s *ElectoralService) Aggregate(ctx context.Context, jurisdictionID int64, electionID domain.ElectionID) (res AggregationResult, err error) {
	ctx, span := startSpan(ctx, "aggregate",
		attribute.Int64("jurisdiction_id", jurisdictionID),
		attribute.Int64("election_id", int64(electionID)))
	defer func() { endSpan(span, err) }()
	defer func() { recordAggregationRun(err) }()

	res, version, cached, aggErr := s.computeAggregates(ctx, jurisdictionID, electionID)
	if aggErr != nil && len(res.Inconsistencies) == 0 {
		return AggregationResult{}, mapError(aggErr)
	}
	recordAggregationIssues(res)

	if err := s.store.SaveAggregates(ctx, jurisdictionID, electionID, res.Records); err != nil {
		return res, mapError(fmt.Errorf("save aggregates: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"jurisdiction_id":  jurisdictionID,
		"election_id":      electionID,
		"records":          len(res.Records),
		"omitted":          len(res.Omitted),
		"undefined_shares": len(res.UndefinedShares),
		"inconsistencies":  len(res.Inconsistencies),
		"cached":           cached,
	}).Info("electoral: aggregation finished")

	s.bus.Publish(&AggregationCompletedEvent{
		JurisdictionID:  jurisdictionID,
		ElectionID:      electionID,
		Records:         len(res.Records),
		Omitted:         len(res.Omitted),
		UndefinedShares: len(res.UndefinedShares),
		Inconsistencies: len(res.Inconsistencies),
		Version:         version,
		Cached:          cached,
	})
	return res, mapError(aggErr)
}

type ProjectionParams struct {
	ProjectionID uuid.UUID
	ElectionID   domain.ElectionID
	Trials       int
	Seed         int64
	Workers      int
	// WeightElectionID, when set, weighs vote_share_mean by the district
	// turnout of that election.
	WeightElectionID domain.ElectionID
	// Estimates overrides the stored poll estimates.
	Estimates domain.Estimates
}

type ProjectionOutcome struct {
	ProjectionID uuid.UUID                  `json:"projection_id"`
	Summaries    []domain.ProjectionSummary `json:"summaries"`
	Omitted      []domain.OmittedNode       `json:"omitted"`
}

// Project simulates seat distributions for a jurisdiction and replaces the
// stored summaries of the projection.
func (s *ElectoralService) Project(ctx context.Context, jurisdictionID int64, params ProjectionParams) (out ProjectionOutcome, err error) {
	if params.ProjectionID == uuid.Nil {
		params.ProjectionID = uuid.New()
	}
	ctx, span := startSpan(ctx, "project",
		attribute.Int64("jurisdiction_id", jurisdictionID),
		attribute.String("projection_id", params.ProjectionID.String()),
		attribute.Int("trials", params.Trials))
	defer func() { endSpan(span, err) }()

	simParams := SimulationParams{
		ProjectionID: params.ProjectionID,
		ElectionID:   params.ElectionID,
		Trials:       params.Trials,
		Seed:         params.Seed,
		Workers:      params.Workers,
	}
	if simParams.Workers <= 0 {
		simParams.Workers = s.workers
	}
	if err := simParams.Validate(); err != nil {
		return ProjectionOutcome{}, mapError(err)
	}

	nodes, h, err := s.hierarchy(ctx, jurisdictionID)
	if err != nil {
		return ProjectionOutcome{}, mapError(err)
	}
	estimates := params.Estimates
	if estimates == nil {
		if estimates, err = s.store.FetchVoteEstimates(ctx, jurisdictionID); err != nil {
			return ProjectionOutcome{}, mapError(fmt.Errorf("fetch vote estimates: %w", err))
		}
	}
	if params.WeightElectionID != 0 {
		if simParams.Weights, err = s.turnoutWeights(ctx, params.WeightElectionID, h); err != nil {
			return ProjectionOutcome{}, mapError(err)
		}
	}

	version, err := ContentVersion(nodes, canonicalEstimates(estimates), simParams.Weights, params.Trials, params.Seed, params.ElectionID)
	if err != nil {
		return ProjectionOutcome{}, mapError(err)
	}
	key := CacheKey("projection", version, jurisdictionID, params.ProjectionID)
	cached := s.cacheGet(ctx, "projection", key, &out)
	if !cached {
		started := time.Now()
		res, err := Simulate(ctx, estimates, h, simParams)
		if err != nil {
			return ProjectionOutcome{}, mapError(err)
		}
		recordSimulation(params.Trials, time.Since(started))
		out = ProjectionOutcome{ProjectionID: params.ProjectionID, Summaries: res.Summaries, Omitted: res.Omitted}
		s.cacheSet(ctx, key, out)
	}

	if err := s.store.SaveProjection(ctx, params.ProjectionID, out.Summaries); err != nil {
		return out, mapError(fmt.Errorf("save projection: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"jurisdiction_id": jurisdictionID,
		"projection_id":   params.ProjectionID,
		"trials":          params.Trials,
		"seed":            params.Seed,
		"nodes":           len(out.Summaries),
		"omitted":         len(out.Omitted),
		"cached":          cached,
	}).Info("electoral: projection finished")

	s.bus.Publish(&ProjectionCompletedEvent{
		JurisdictionID: jurisdictionID,
		ProjectionID:   params.ProjectionID,
		Trials:         params.Trials,
		Seed:           params.Seed,
		Nodes:          len(out.Summaries),
		Omitted:        len(out.Omitted),
		Version:        version,
		Cached:         cached,
	})
	return out, nil
}

func (s *ElectoralService) turnoutWeights(ctx context.Context, electionID domain.ElectionID, h *Hierarchy) (map[domain.NodeID]float64, error) {
	aggs, err := s.store.FetchAggregates(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("fetch weight aggregates: %w", err)
	}
	weights := make(map[domain.NodeID]float64)
	for _, a := range aggs {
		if a.Level == domain.LevelDistrict && h.Contains(a.GeoNodeID) {
			weights[a.GeoNodeID] = float64(a.TotalVotes)
		}
	}
	return weights, nil
}

// Evaluate scores a stored projection at nodeID against the stored real
// aggregate and persists the report. Reports are immutable: a second
// evaluation of the same (projection, election) fails with
// ELECTORAL_REPORT_EXISTS.
func (s *ElectoralService) Evaluate(ctx context.Context, projectionID uuid.UUID, electionID domain.ElectionID, nodeID domain.NodeID) (report domain.AccuracyReport, err error) {
	ctx, span := startSpan(ctx, "evaluate",
		attribute.String("projection_id", projectionID.String()),
		attribute.Int64("election_id", int64(electionID)),
		attribute.Int64("node_id", int64(nodeID)))
	defer func() { endSpan(span, err) }()

	summaries, err := s.store.FetchProjection(ctx, projectionID)
	if err != nil {
		return domain.AccuracyReport{}, mapError(fmt.Errorf("fetch projection: %w", err))
	}
	summary, ok := findSummary(summaries, nodeID)
	if !ok {
		return domain.AccuracyReport{}, mapError(fmt.Errorf("%w: projection %s has no summary for node %d", domain.ErrNotFound, projectionID, nodeID))
	}
	aggs, err := s.store.FetchAggregates(ctx, electionID)
	if err != nil {
		return domain.AccuracyReport{}, mapError(fmt.Errorf("fetch aggregates: %w", err))
	}
	actual, ok := findAggregate(aggs, nodeID)
	if !ok {
		return domain.AccuracyReport{}, mapError(fmt.Errorf("%w: election %d has no aggregate for node %d", domain.ErrNotFound, electionID, nodeID))
	}

	report, err = Evaluate(summary, actual)
	if err != nil {
		if errors.Is(err, domain.ErrDivisionUndefined) {
			s.log.WithFields(logrus.Fields{"projection_id": projectionID, "election_id": electionID, "node_id": nodeID}).
				Warn("electoral: accuracy undefined for zero seats")
		}
		return domain.AccuracyReport{}, mapError(err)
	}
	report.GeneratedAt = s.now().UTC()
	if err := s.store.SaveAccuracyReport(ctx, report); err != nil {
		return domain.AccuracyReport{}, mapError(fmt.Errorf("save accuracy report: %w", err))
	}
	recordEvaluation(actual.Level.String(), report.OverallAccuracy)

	s.log.WithFields(logrus.Fields{
		"projection_id": projectionID,
		"election_id":   electionID,
		"node_id":       nodeID,
		"accuracy":      report.OverallAccuracy,
		"seat_error":    report.SeatErrorSum,
	}).Info("electoral: evaluation finished")
	s.bus.Publish(&EvaluationCompletedEvent{Report: report})
	return report, nil
}

func findSummary(summaries []domain.ProjectionSummary, id domain.NodeID) (domain.ProjectionSummary, bool) {
	for _, s := range summaries {
		if s.GeoNodeID == id {
			return s, true
		}
	}
	return domain.ProjectionSummary{}, false
}

func findAggregate(aggs []domain.AggregateRecord, id domain.NodeID) (domain.AggregateRecord, bool) {
	for _, a := range aggs {
		if a.GeoNodeID == id {
			return a, true
		}
	}
	return domain.AggregateRecord{}, false
}

// Bias computes per-party systematic bias over the stored reports of the given
// projections.
func (s *ElectoralService) Bias(ctx context.Context, projectionIDs []uuid.UUID) (out []domain.PartyBias, err error) {
	ctx, span := startSpan(ctx, "bias", attribute.Int("projections", len(projectionIDs)))
	defer func() { endSpan(span, err) }()

	reports, err := s.store.FetchAccuracyReports(ctx, projectionIDs)
	if err != nil {
		return nil, mapError(fmt.Errorf("fetch accuracy reports: %w", err))
	}
	return SystematicBias(reports), nil
}

// Swing aggregates both elections in memory and returns the party's share
// change per node.
func (s *ElectoralService) Swing(ctx context.Context, jurisdictionID int64, before, after domain.ElectionID, party string) (rows []domain.SwingRow, err error) {
	ctx, span := startSpan(ctx, "swing",
		attribute.Int64("jurisdiction_id", jurisdictionID),
		attribute.String("party", party))
	defer func() { endSpan(span, err) }()

	rows, err = s.swing(ctx, jurisdictionID, before, after, party)
	if err != nil {
		return nil, mapError(err)
	}
	s.bus.Publish(&AnalysisCompletedEvent{Kind: "swing", JurisdictionID: jurisdictionID, Before: before, After: after, PartyCode: party, Rows: len(rows)})
	return rows, nil
}

func (s *ElectoralService) swing(ctx context.Context, jurisdictionID int64, before, after domain.ElectionID, party string) ([]domain.SwingRow, error) {
	var sides [2]AggregationResult
	for k, e := range []domain.ElectionID{before, after} {
		res, _, _, err := s.computeAggregates(ctx, jurisdictionID, e)
		if err != nil && len(res.Inconsistencies) == 0 {
			return nil, fmt.Errorf("election %d: %w", e, err)
		}
		sides[k] = res
	}
	rows := ComputeSwing(sides[0].Records, sides[1].Records, party)
	for _, o := range SwingOmissions(rows) {
		s.log.WithFields(logrus.Fields{"node_id": o.GeoNodeID, "party": party, "reason": o.Reason}).Debug("electoral: swing undefined")
	}
	return rows, nil
}

// Correlate relates district swing between two elections to the
// jurisdiction's demographic rates.
func (s *ElectoralService) Correlate(ctx context.Context, jurisdictionID int64, before, after domain.ElectionID, party string, minSamples int) (res CorrelationResult, err error) {
	ctx, span := startSpan(ctx, "correlate",
		attribute.Int64("jurisdiction_id", jurisdictionID),
		attribute.String("party", party))
	defer func() { endSpan(span, err) }()

	rows, err := s.swing(ctx, jurisdictionID, before, after, party)
	if err != nil {
		return CorrelationResult{}, mapError(err)
	}
	_, h, err := s.hierarchy(ctx, jurisdictionID)
	if err != nil {
		return CorrelationResult{}, mapError(err)
	}
	demo, err := s.store.FetchDemographics(ctx, jurisdictionID)
	if err != nil {
		return CorrelationResult{}, mapError(fmt.Errorf("fetch demographics: %w", err))
	}

	version, err := ContentVersion(rows, demo, minSamples)
	if err != nil {
		return CorrelationResult{}, mapError(err)
	}
	key := CacheKey("correlation", version, jurisdictionID, before, after, party)
	if s.cacheGet(ctx, "correlation", key, &res) {
		return res, nil
	}

	demoRes, err := AggregateDemographics(demo, h)
	if err != nil && len(demoRes.Inconsistencies) == 0 {
		return CorrelationResult{}, mapError(err)
	}
	for _, inc := range demoRes.Inconsistencies {
		s.log.WithField("node_id", inc.NodeID).Warn(inc.Error())
	}
	res = Correlate(rows, demoRes.Records, minSamples)
	for _, sk := range res.Skipped {
		s.log.WithFields(logrus.Fields{"characteristic_id": sk.CharacteristicID, "n": sk.N}).
			Info("electoral: characteristic skipped, too few paired districts")
	}
	s.cacheSet(ctx, key, res)
	s.bus.Publish(&AnalysisCompletedEvent{Kind: "correlation", JurisdictionID: jurisdictionID, Before: before, After: after, PartyCode: party, Rows: len(res.Correlations)})
	return res, nil
}
