package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// JSONB columns hold the party arrays in their domain JSON form.

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON[T any](raw []byte, column string) ([]T, error) {
	if len(raw) == 0 {
		return []T{}, nil
	}
	out := make([]T, 0, 8)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", column, err)
	}
	return out, nil
}

func nodeIDsToInt64(ids []domain.NodeID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func int64sToNodeIDs(ids []int64) []domain.NodeID {
	out := make([]domain.NodeID, len(ids))
	for i, id := range ids {
		out[i] = domain.NodeID(id)
	}
	return out
}

func pgParent(id *domain.NodeID) pgtype.Int8 {
	if id == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(*id), Valid: true}
}

func parentFromPg(v pgtype.Int8) *domain.NodeID {
	if !v.Valid {
		return nil
	}
	id := domain.NodeID(v.Int64)
	return &id
}

// Projection summaries without a target election store NULL.
func pgElection(id domain.ElectionID) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(id), Valid: true}
}

func parseLevel(raw string, nodeID int64) (domain.Level, error) {
	lvl, err := domain.ParseLevel(raw)
	if err != nil {
		return "", fmt.Errorf("node %d: %w", nodeID, err)
	}
	return lvl, nil
}
