package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrSchemaNotReady = errors.New("electoral schema not ready")

// RequiredTables lists the tables the repository reads and writes.
var RequiredTables = []string{
	"accuracy_reports",
	"aggregate_records",
	"demographic_records",
	"elections",
	"geo_nodes",
	"projection_summaries",
	"vote_estimates",
	"vote_records",
}

// SchemaReady fails with ErrSchemaNotReady naming every missing table.
func SchemaReady(ctx context.Context, db *sqlx.DB) error {
	var present []string
	if err := db.SelectContext(ctx, &present, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema()
	AND table_name = ANY($1)
`, pq.Array(RequiredTables)); err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}

	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[name] = struct{}{}
	}
	var missing []string
	for _, name := range RequiredTables {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing tables %v (run `electoral migrate up`)", ErrSchemaNotReady, missing)
	}
	return nil
}
