package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/pkg/composables"
)

const accuracyReportsPKey = "accuracy_reports_pkey"

type ElectoralRepository struct{}

func NewElectoralRepository() *ElectoralRepository {
	return &ElectoralRepository{}
}

func (r *ElectoralRepository) FetchGeoNodes(ctx context.Context, jurisdictionID int64) ([]domain.GeoNode, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, jurisdiction_id, name, code, level, parent_id
FROM geo_nodes
WHERE jurisdiction_id = $1
ORDER BY id
`, jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.GeoNode, 0, 64)
	for rows.Next() {
		var (
			id, jid int64
			n       domain.GeoNode
			level   string
			parent  pgtype.Int8
		)
		if err := rows.Scan(&id, &jid, &n.Name, &n.Code, &level, &parent); err != nil {
			return nil, err
		}
		if n.Level, err = parseLevel(level, id); err != nil {
			return nil, err
		}
		n.ID = domain.NodeID(id)
		n.JurisdictionID = jid
		n.ParentID = parentFromPg(parent)
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// FetchVoteRecords returns one record per district: the highest rep_order.
func (r *ElectoralRepository) FetchVoteRecords(ctx context.Context, electionID domain.ElectionID) ([]domain.VoteRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT DISTINCT ON (geo_node_id)
	geo_node_id, election_id, rep_order, total_votes, eligible_voters, rejected_ballots, party_results
FROM vote_records
WHERE election_id = $1
ORDER BY geo_node_id, rep_order DESC
`, int64(electionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.VoteRecord, 0, 256)
	for rows.Next() {
		var (
			nodeID, elecID int64
			rec            domain.VoteRecord
			parties        []byte
		)
		if err := rows.Scan(&nodeID, &elecID, &rec.RepOrder, &rec.TotalVotes, &rec.EligibleVoters, &rec.RejectedBallots, &parties); err != nil {
			return nil, err
		}
		if rec.Parties, err = decodeJSON[domain.PartyResult](parties, "party_results"); err != nil {
			return nil, err
		}
		rec.GeoNodeID = domain.NodeID(nodeID)
		rec.ElectionID = domain.ElectionID(elecID)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ElectoralRepository) FetchVoteEstimates(ctx context.Context, jurisdictionID int64) (domain.Estimates, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT e.geo_node_id, e.party_code, e.mean, e.stddev
FROM vote_estimates e
JOIN geo_nodes n ON n.id = e.geo_node_id
WHERE n.jurisdiction_id = $1
`, jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(domain.Estimates)
	for rows.Next() {
		var (
			nodeID int64
			party  string
			est    domain.Estimate
		)
		if err := rows.Scan(&nodeID, &party, &est.Mean, &est.StdDev); err != nil {
			return nil, err
		}
		out[domain.EstimateKey{GeoNodeID: domain.NodeID(nodeID), PartyCode: party}] = est
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ElectoralRepository) FetchDemographics(ctx context.Context, jurisdictionID int64) ([]domain.DemographicRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT d.geo_node_id, d.characteristic_id, d.count, d.universe
FROM demographic_records d
JOIN geo_nodes n ON n.id = d.geo_node_id
WHERE n.jurisdiction_id = $1
ORDER BY d.geo_node_id, d.characteristic_id
`, jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DemographicRecord, 0, 256)
	for rows.Next() {
		var (
			nodeID int64
			rec    domain.DemographicRecord
		)
		if err := rows.Scan(&nodeID, &rec.CharacteristicID, &rec.Count, &rec.Universe); err != nil {
			return nil, err
		}
		rec.GeoNodeID = domain.NodeID(nodeID)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SaveAggregates replaces the stored aggregates of the election for the nodes
// of one jurisdiction. Other jurisdictions' rows are left untouched.
func (r *ElectoralRepository) SaveAggregates(ctx context.Context, jurisdictionID int64, electionID domain.ElectionID, records []domain.AggregateRecord) error {
	for _, rec := range records {
		if rec.ElectionID != electionID {
			return fmt.Errorf("%w: aggregate for node %d belongs to election %d, not %d",
				domain.ErrInvalidRecord, rec.GeoNodeID, rec.ElectionID, electionID)
		}
	}
	return composables.InTx(ctx, func(ctx context.Context) error {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
DELETE FROM aggregate_records
WHERE election_id = $1
  AND geo_node_id IN (SELECT id FROM geo_nodes WHERE jurisdiction_id = $2)
`, int64(electionID), jurisdictionID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			parties, err := encodeJSON(rec.Parties)
			if err != nil {
				return err
			}
			batch.Queue(`
INSERT INTO aggregate_records (geo_node_id, election_id, level, total_votes, total_seats, source_district_count, source_district_ids, parties)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
`, int64(rec.GeoNodeID), int64(rec.ElectionID), rec.Level.String(), rec.TotalVotes, rec.TotalSeats,
				rec.SourceDistrictCount, nodeIDsToInt64(rec.SourceDistrictIDs), parties)
		}
		return sendBatch(ctx, tx, batch)
	})
}

func (r *ElectoralRepository) FetchAggregates(ctx context.Context, electionID domain.ElectionID) ([]domain.AggregateRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT geo_node_id, election_id, level, total_votes, total_seats, source_district_count, source_district_ids, parties
FROM aggregate_records
WHERE election_id = $1
ORDER BY geo_node_id
`, int64(electionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AggregateRecord, 0, 256)
	for rows.Next() {
		var (
			nodeID, elecID int64
			rec            domain.AggregateRecord
			level          string
			sources        []int64
			parties        []byte
		)
		if err := rows.Scan(&nodeID, &elecID, &level, &rec.TotalVotes, &rec.TotalSeats, &rec.SourceDistrictCount, &sources, &parties); err != nil {
			return nil, err
		}
		if rec.Level, err = parseLevel(level, nodeID); err != nil {
			return nil, err
		}
		if rec.Parties, err = decodeJSON[domain.PartyAggregate](parties, "parties"); err != nil {
			return nil, err
		}
		rec.GeoNodeID = domain.NodeID(nodeID)
		rec.ElectionID = domain.ElectionID(elecID)
		rec.SourceDistrictIDs = int64sToNodeIDs(sources)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SaveProjection replaces every stored summary of the projection.
func (r *ElectoralRepository) SaveProjection(ctx context.Context, projectionID uuid.UUID, summaries []domain.ProjectionSummary) error {
	return composables.InTx(ctx, func(ctx context.Context) error {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM projection_summaries WHERE projection_id = $1`, projectionID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, s := range summaries {
			parties, err := encodeJSON(s.Parties)
			if err != nil {
				return err
			}
			batch.Queue(`
INSERT INTO projection_summaries (projection_id, geo_node_id, level, election_id, trials, seed, total_seats, parties)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
`, projectionID, int64(s.GeoNodeID), s.Level.String(), pgElection(s.ElectionID), s.Trials, s.Seed, s.TotalSeats, parties)
		}
		return sendBatch(ctx, tx, batch)
	})
}

func (r *ElectoralRepository) FetchProjection(ctx context.Context, projectionID uuid.UUID) ([]domain.ProjectionSummary, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT geo_node_id, level, election_id, trials, seed, total_seats, parties
FROM projection_summaries
WHERE projection_id = $1
ORDER BY geo_node_id
`, projectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProjectionSummary, 0, 64)
	for rows.Next() {
		var (
			nodeID   int64
			s        domain.ProjectionSummary
			level    string
			election pgtype.Int8
			parties  []byte
		)
		if err := rows.Scan(&nodeID, &level, &election, &s.Trials, &s.Seed, &s.TotalSeats, &parties); err != nil {
			return nil, err
		}
		if s.Level, err = parseLevel(level, nodeID); err != nil {
			return nil, err
		}
		if s.Parties, err = decodeJSON[domain.PartyProjection](parties, "parties"); err != nil {
			return nil, err
		}
		s.ProjectionID = projectionID
		s.GeoNodeID = domain.NodeID(nodeID)
		if election.Valid {
			s.ElectionID = domain.ElectionID(election.Int64)
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SaveAccuracyReport inserts the report once; a second report for the same
// (projection, election) fails with domain.ErrReportExists.
func (r *ElectoralRepository) SaveAccuracyReport(ctx context.Context, report domain.AccuracyReport) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	parties, err := encodeJSON(report.Parties)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO accuracy_reports (projection_id, election_id, geo_node_id, total_seats, overall_accuracy, seat_error_sum, parties, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
`, report.ProjectionID, int64(report.ElectionID), int64(report.GeoNodeID), report.TotalSeats,
		report.OverallAccuracy, report.SeatErrorSum, parties, report.GeneratedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == accuracyReportsPKey {
			return fmt.Errorf("%w: projection %s election %d", domain.ErrReportExists, report.ProjectionID, report.ElectionID)
		}
		return err
	}
	return nil
}

// FetchAccuracyReports returns the reports of the given projections, or every
// report when projectionIDs is empty.
func (r *ElectoralRepository) FetchAccuracyReports(ctx context.Context, projectionIDs []uuid.UUID) ([]domain.AccuracyReport, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `
SELECT projection_id, election_id, geo_node_id, total_seats, overall_accuracy, seat_error_sum, parties, generated_at
FROM accuracy_reports
`
	args := []any{}
	if len(projectionIDs) > 0 {
		query += "WHERE projection_id = ANY($1)\n"
		args = append(args, projectionIDs)
	}
	query += "ORDER BY projection_id, election_id\n"

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AccuracyReport, 0, len(projectionIDs))
	for rows.Next() {
		var (
			rep            domain.AccuracyReport
			elecID, nodeID int64
			parties        []byte
		)
		if err := rows.Scan(&rep.ProjectionID, &elecID, &nodeID, &rep.TotalSeats, &rep.OverallAccuracy, &rep.SeatErrorSum, &parties, &rep.GeneratedAt); err != nil {
			return nil, err
		}
		if rep.Parties, err = decodeJSON[domain.PartyAccuracy](parties, "parties"); err != nil {
			return nil, err
		}
		rep.ElectionID = domain.ElectionID(elecID)
		rep.GeoNodeID = domain.NodeID(nodeID)
		rep.GeneratedAt = rep.GeneratedAt.UTC()
		out = append(out, rep)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func sendBatch(ctx context.Context, tx composables.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
