package domain

import (
	"fmt"
	"strings"
)

type NodeID int64

type ElectionID int64

// Level is the aggregation tier of a geographic node. Levels are ordered from
// finest (district) to coarsest (jurisdiction general).
type Level string

const (
	LevelDistrict            Level = "DISTRICT"
	LevelSubregion           Level = "SUBREGION"
	LevelSubnational         Level = "SUBNATIONAL"
	LevelRegion              Level = "REGION"
	LevelJurisdictionGeneral Level = "JURISDICTION_GENERAL"
)

var Levels = []Level{
	LevelDistrict,
	LevelSubregion,
	LevelSubnational,
	LevelRegion,
	LevelJurisdictionGeneral,
}

// Rank returns the position of the level in Levels, or -1 for unknown levels.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i
		}
	}
	return -1
}

func (l Level) Valid() bool { return l.Rank() >= 0 }

func (l Level) String() string { return string(l) }

func ParseLevel(raw string) (Level, error) {
	v := Level(strings.ToUpper(strings.TrimSpace(raw)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
	return v, nil
}
