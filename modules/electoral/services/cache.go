package services

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// ResultCache stores finished results under content-versioned keys. A key
// changes whenever any input changes, so entries are never invalidated, only
// left to expire.
type ResultCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// CacheKey joins a result kind, the scope ids and a content version.
func CacheKey(kind string, version string, scope ...any) string {
	parts := make([]string, 0, len(scope)+3)
	parts = append(parts, "electoral", kind)
	for _, s := range scope {
		parts = append(parts, fmt.Sprint(s))
	}
	parts = append(parts, version)
	return strings.Join(parts, ":")
}

// ContentVersion hashes the canonical JSON encoding of its inputs.
func ContentVersion(inputs ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, in := range inputs {
		if err := enc.Encode(in); err != nil {
			return "", fmt.Errorf("content version: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type estimateEntry struct {
	GeoNodeID domain.NodeID `json:"geo_node_id"`
	PartyCode string        `json:"party_code"`
	Mean      float64       `json:"mean"`
	StdDev    float64       `json:"stddev"`
}

// canonicalEstimates flattens the estimate map into a stable order so it can
// be hashed.
func canonicalEstimates(e domain.Estimates) []estimateEntry {
	out := make([]estimateEntry, 0, len(e))
	for k, v := range e {
		out = append(out, estimateEntry{GeoNodeID: k.GeoNodeID, PartyCode: k.PartyCode, Mean: v.Mean, StdDev: v.StdDev})
	}
	slices.SortFunc(out, func(a, b estimateEntry) int {
		if c := cmp.Compare(a.GeoNodeID, b.GeoNodeID); c != 0 {
			return c
		}
		return cmp.Compare(a.PartyCode, b.PartyCode)
	})
	return out
}

func (s *ElectoralService) cacheGet(ctx context.Context, kind, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("electoral: cache read failed")
		hit = false
	}
	recordCacheRequest(kind, hit)
	return hit
}

func (s *ElectoralService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("electoral: cache write failed")
	}
}
