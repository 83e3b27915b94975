package csvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

const (
	ResultsDir          = "results"
	accuracyReportsFile = "accuracy_reports.json"
)

// Store serves source data from the CSV files of one directory. Computed
// results are kept as JSON files under <dir>/results so later runs can read
// them back; the source CSVs are never written.
type Store struct {
	mu      sync.Mutex
	ds      *domain.Dataset
	results string
}

func NewStore(dir string) (*Store, error) {
	ds, err := LoadDataset(dir)
	if err != nil {
		return nil, err
	}
	return NewStoreFromDataset(ds, filepath.Join(dir, ResultsDir)), nil
}

func NewStoreFromDataset(ds *domain.Dataset, resultsDir string) *Store {
	return &Store{ds: ds, results: resultsDir}
}

func (s *Store) Dataset() *domain.Dataset { return s.ds }

func (s *Store) jurisdictionNodes(jurisdictionID int64) map[domain.NodeID]struct{} {
	out := make(map[domain.NodeID]struct{})
	for _, n := range s.ds.Nodes {
		if n.JurisdictionID == jurisdictionID {
			out[n.ID] = struct{}{}
		}
	}
	return out
}

func (s *Store) FetchGeoNodes(_ context.Context, jurisdictionID int64) ([]domain.GeoNode, error) {
	out := make([]domain.GeoNode, 0, len(s.ds.Nodes))
	for _, n := range s.ds.Nodes {
		if n.JurisdictionID == jurisdictionID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchVoteRecords returns one record per district: the highest rep_order.
func (s *Store) FetchVoteRecords(_ context.Context, electionID domain.ElectionID) ([]domain.VoteRecord, error) {
	latest := make(map[domain.NodeID]domain.VoteRecord)
	for _, r := range s.ds.VoteRecords {
		if r.ElectionID != electionID {
			continue
		}
		if cur, ok := latest[r.GeoNodeID]; !ok || r.RepOrder > cur.RepOrder {
			latest[r.GeoNodeID] = r
		}
	}
	out := make([]domain.VoteRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeoNodeID < out[j].GeoNodeID })
	return out, nil
}

func (s *Store) FetchVoteEstimates(_ context.Context, jurisdictionID int64) (domain.Estimates, error) {
	nodes := s.jurisdictionNodes(jurisdictionID)
	out := make(domain.Estimates)
	for k, v := range s.ds.Estimates {
		if _, ok := nodes[k.GeoNodeID]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Store) FetchDemographics(_ context.Context, jurisdictionID int64) ([]domain.DemographicRecord, error) {
	nodes := s.jurisdictionNodes(jurisdictionID)
	out := make([]domain.DemographicRecord, 0, len(s.ds.Demographics))
	for _, d := range s.ds.Demographics {
		if _, ok := nodes[d.GeoNodeID]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) aggregatesPath(electionID domain.ElectionID) string {
	return filepath.Join(s.results, fmt.Sprintf("aggregates_%d.json", electionID))
}

func (s *Store) projectionPath(id uuid.UUID) string {
	return filepath.Join(s.results, "projection_"+id.String()+".json")
}

// SaveAggregates replaces the election's aggregates of one jurisdiction's
// nodes and keeps the rows of every other jurisdiction in the file.
func (s *Store) SaveAggregates(_ context.Context, jurisdictionID int64, electionID domain.ElectionID, records []domain.AggregateRecord) error {
	nodes := s.jurisdictionNodes(jurisdictionID)
	for _, r := range records {
		if r.ElectionID != electionID {
			return fmt.Errorf("%w: aggregate for node %d belongs to election %d, not %d",
				domain.ErrInvalidRecord, r.GeoNodeID, r.ElectionID, electionID)
		}
		if _, ok := nodes[r.GeoNodeID]; !ok {
			return fmt.Errorf("%w: aggregate for node %d outside jurisdiction %d",
				domain.ErrInvalidRecord, r.GeoNodeID, jurisdictionID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.aggregatesPath(electionID)
	stored := []domain.AggregateRecord{}
	if err := readJSONFile(path, &stored); err != nil {
		return err
	}
	merged := make([]domain.AggregateRecord, 0, len(stored)+len(records))
	for _, r := range stored {
		if _, ok := nodes[r.GeoNodeID]; !ok {
			merged = append(merged, r)
		}
	}
	merged = append(merged, records...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].GeoNodeID < merged[j].GeoNodeID })
	return writeJSONFile(path, merged)
}

func (s *Store) FetchAggregates(_ context.Context, electionID domain.ElectionID) ([]domain.AggregateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.AggregateRecord{}
	if err := readJSONFile(s.aggregatesPath(electionID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveProjection(_ context.Context, projectionID uuid.UUID, summaries []domain.ProjectionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.projectionPath(projectionID), summaries)
}

func (s *Store) FetchProjection(_ context.Context, projectionID uuid.UUID) ([]domain.ProjectionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.ProjectionSummary{}
	if err := readJSONFile(s.projectionPath(projectionID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveAccuracyReport(_ context.Context, report domain.AccuracyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.results, accuracyReportsFile)
	reports := []domain.AccuracyReport{}
	if err := readJSONFile(path, &reports); err != nil {
		return err
	}
	for _, r := range reports {
		if r.ProjectionID == report.ProjectionID && r.ElectionID == report.ElectionID {
			return fmt.Errorf("%w: projection %s election %d", domain.ErrReportExists, report.ProjectionID, report.ElectionID)
		}
	}
	return writeJSONFile(path, append(reports, report))
}

// FetchAccuracyReports returns the reports of the given projections, or every
// report when projectionIDs is empty.
func (s *Store) FetchAccuracyReports(_ context.Context, projectionIDs []uuid.UUID) ([]domain.AccuracyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := []domain.AccuracyReport{}
	if err := readJSONFile(filepath.Join(s.results, accuracyReportsFile), &reports); err != nil {
		return nil, err
	}
	if len(projectionIDs) == 0 {
		return reports, nil
	}
	want := make(map[uuid.UUID]struct{}, len(projectionIDs))
	for _, id := range projectionIDs {
		want[id] = struct{}{}
	}
	out := make([]domain.AccuracyReport, 0, len(reports))
	for _, r := range reports {
		if _, ok := want[r.ProjectionID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// writeJSONFile replaces path atomically.
func writeJSONFile(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readJSONFile leaves out untouched when path does not exist.
func readJSONFile(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
