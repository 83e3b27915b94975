package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	want := domain.Estimates{
		{GeoNodeID: 10, PartyCode: "A"}: {Mean: 0.52, StdDev: 0.03},
		{GeoNodeID: 10, PartyCode: "B"}: {Mean: 0.48, StdDev: 0.03},
	}

	yamlPath := writeScenario(t, "s.yaml", `estimates:
  - geo_node_id: 10
    party_code: A
    mean: 0.52
    stddev: 0.03
  - geo_node_id: 10
    party_code: B
    mean: 0.48
    stddev: 0.03
`)
	got, err := loadScenario(yamlPath)
	require.NoError(t, err)
	require.Equal(t, want, got)

	tomlPath := writeScenario(t, "s.toml", `
[[estimates]]
geo_node_id = 10
party_code = "A"
mean = 0.52
stddev = 0.03

[[estimates]]
geo_node_id = 10
party_code = "B"
mean = 0.48
stddev = 0.03
`)
	got, err = loadScenario(tomlPath)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadScenario_Errors(t *testing.T) {
	cases := []struct {
		name   string
		file   string
		body   string
		target error
	}{
		{"extension", "s.json", `{}`, errUnsupportedScenario},
		{"empty", "s.yaml", "estimates: []\n", domain.ErrInvalidEstimate},
		{"duplicate", "s.yaml", "estimates:\n  - {geo_node_id: 1, party_code: A, mean: 0.5, stddev: 0}\n  - {geo_node_id: 1, party_code: A, mean: 0.4, stddev: 0}\n", domain.ErrInvalidEstimate},
		{"mean range", "s.toml", "[[estimates]]\ngeo_node_id = 1\nparty_code = \"A\"\nmean = 1.5\nstddev = 0.1\n", domain.ErrInvalidEstimate},
		{"missing party", "s.yaml", "estimates:\n  - {geo_node_id: 1, mean: 0.5, stddev: 0}\n", domain.ErrInvalidEstimate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadScenario(writeScenario(t, tc.file, tc.body))
			require.ErrorIs(t, err, tc.target)
		})
	}

	_, err := loadScenario(writeScenario(t, "s.yaml", "estimates:\n  - {geo_node_id: 1, party_code: A, mean: 0.5, sd: 0}\n"))
	require.Error(t, err)

	_, err = loadScenario(writeScenario(t, "s.toml", "[[estimates]]\ngeo_node_id = 1\nparty_code = \"A\"\nmean = 0.5\nsd = 0.1\n"))
	require.ErrorContains(t, err, "unknown keys")
}
