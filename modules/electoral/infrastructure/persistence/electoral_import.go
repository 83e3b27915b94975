package persistence

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
	"github.com/iota-uz/iota-electoral/pkg/composables"
)

type ImportStats struct {
	Nodes        int64 `json:"nodes"`
	Elections    int   `json:"elections"`
	VoteRecords  int64 `json:"vote_records"`
	Estimates    int64 `json:"estimates"`
	Demographics int64 `json:"demographics"`
}

// Import bulk-loads a dataset in one transaction. Existing rows are not
// touched; duplicates fail the whole load.
func (r *ElectoralRepository) Import(ctx context.Context, ds *domain.Dataset) (ImportStats, error) {
	var stats ImportStats
	err := composables.InTx(ctx, func(ctx context.Context) error {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return err
		}

		stats.Nodes, err = tx.CopyFrom(ctx,
			pgx.Identifier{"geo_nodes"},
			[]string{"id", "jurisdiction_id", "name", "code", "level", "parent_id"},
			pgx.CopyFromSlice(len(ds.Nodes), func(i int) ([]any, error) {
				n := ds.Nodes[i]
				return []any{int64(n.ID), n.JurisdictionID, n.Name, n.Code, n.Level.String(), pgParent(n.ParentID)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy geo_nodes: %w", err)
		}

		elections := ds.ElectionIDs()
		batch := &pgx.Batch{}
		for _, id := range elections {
			batch.Queue(`INSERT INTO elections (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, int64(id))
		}
		if err := sendBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("insert elections: %w", err)
		}
		stats.Elections = len(elections)

		stats.VoteRecords, err = tx.CopyFrom(ctx,
			pgx.Identifier{"vote_records"},
			[]string{"geo_node_id", "election_id", "rep_order", "total_votes", "eligible_voters", "rejected_ballots", "party_results"},
			pgx.CopyFromSlice(len(ds.VoteRecords), func(i int) ([]any, error) {
				rec := ds.VoteRecords[i]
				parties, err := encodeJSON(rec.Parties)
				if err != nil {
					return nil, err
				}
				return []any{int64(rec.GeoNodeID), int64(rec.ElectionID), rec.RepOrder, rec.TotalVotes, rec.EligibleVoters, rec.RejectedBallots, parties}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy vote_records: %w", err)
		}

		keys := make([]domain.EstimateKey, 0, len(ds.Estimates))
		for k := range ds.Estimates {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].GeoNodeID != keys[j].GeoNodeID {
				return keys[i].GeoNodeID < keys[j].GeoNodeID
			}
			return keys[i].PartyCode < keys[j].PartyCode
		})
		stats.Estimates, err = tx.CopyFrom(ctx,
			pgx.Identifier{"vote_estimates"},
			[]string{"geo_node_id", "party_code", "mean", "stddev"},
			pgx.CopyFromSlice(len(keys), func(i int) ([]any, error) {
				k := keys[i]
				e := ds.Estimates[k]
				return []any{int64(k.GeoNodeID), k.PartyCode, e.Mean, e.StdDev}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy vote_estimates: %w", err)
		}

		stats.Demographics, err = tx.CopyFrom(ctx,
			pgx.Identifier{"demographic_records"},
			[]string{"geo_node_id", "characteristic_id", "count", "universe"},
			pgx.CopyFromSlice(len(ds.Demographics), func(i int) ([]any, error) {
				d := ds.Demographics[i]
				return []any{int64(d.GeoNodeID), d.CharacteristicID, d.Count, d.Universe}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy demographic_records: %w", err)
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
