package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

// scenarioFile is the --estimates document: a flat list of poll estimates,
// written as YAML or TOML.
//
//	estimates:
//	  - geo_node_id: 10
//	    party_code: A
//	    mean: 0.52
//	    stddev: 0.03
type scenarioFile struct {
	Estimates []scenarioEstimate `yaml:"estimates" toml:"estimates"`
}

type scenarioEstimate struct {
	GeoNodeID int64   `yaml:"geo_node_id" toml:"geo_node_id"`
	PartyCode string  `yaml:"party_code" toml:"party_code"`
	Mean      float64 `yaml:"mean" toml:"mean"`
	StdDev    float64 `yaml:"stddev" toml:"stddev"`
}

var errUnsupportedScenario = errors.New("unsupported scenario format")

func loadScenario(path string) (domain.Estimates, error) {
	var doc scenarioFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		md, err := toml.DecodeFile(path, &doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q (want .yaml, .yml or .toml)", errUnsupportedScenario, ext)
	}

	if len(doc.Estimates) == 0 {
		return nil, fmt.Errorf("%s: %w: no estimates", path, domain.ErrInvalidEstimate)
	}
	out := make(domain.Estimates, len(doc.Estimates))
	for i, e := range doc.Estimates {
		if e.GeoNodeID <= 0 || strings.TrimSpace(e.PartyCode) == "" {
			return nil, fmt.Errorf("%s: estimate %d: %w: geo_node_id and party_code are required", path, i+1, domain.ErrInvalidEstimate)
		}
		k := domain.EstimateKey{GeoNodeID: domain.NodeID(e.GeoNodeID), PartyCode: e.PartyCode}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%s: estimate %d: %w: duplicate %d/%s", path, i+1, domain.ErrInvalidEstimate, e.GeoNodeID, e.PartyCode)
		}
		out[k] = domain.Estimate{Mean: e.Mean, StdDev: e.StdDev}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
