package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roblaszczak/go-cleanarch/cleanarch"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gocleanarch.yml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
ignore_tests: true
aliases:
  application: [services]
allow_violations:
  - "pkg/eventbus"
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ".", cfg.Root)
	require.True(t, cfg.IgnoreTests)
	require.Equal(t, []string{"services"}, cfg.Aliases.Application)

	aliases := layerAliases(cfg)
	require.Equal(t, cleanarch.LayerApplication, aliases["services"])
	require.Equal(t, cleanarch.LayerDomain, aliases["domain"])
	require.Equal(t, cleanarch.LayerInfrastructure, aliases["infrastructure"])
	_, hasApp := aliases["app"]
	require.False(t, hasApp)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	_, err = resolveRoot("")
	require.Error(t, err)
}

func TestFilterValidationErrors(t *testing.T) {
	cfg := &config{
		SharedModules:     []string{"core"},
		AllowedViolations: []string{"csvstore"},
	}
	errs := []cleanarch.ValidationError{
		cleanarch.ValidationError(errors.New("cannot import between core and electoral modules")),
		cleanarch.ValidationError(errors.New("domain imports infrastructure/csvstore")),
		cleanarch.ValidationError(errors.New("domain imports services")),
	}

	got := filterValidationErrors(errs, cfg)
	require.Len(t, got, 1)
	require.Equal(t, "domain imports services", got[0].Error())
	require.Nil(t, filterValidationErrors(nil, cfg))
}
