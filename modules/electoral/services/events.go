package services

import (
	"github.com/google/uuid"

	"github.com/iota-uz/iota-electoral/modules/electoral/domain"
)

type AggregationCompletedEvent struct {
	JurisdictionID  int64
	ElectionID      domain.ElectionID
	Records         int
	Omitted         int
	UndefinedShares int
	Inconsistencies int
	Version         string
	Cached          bool
}

type ProjectionCompletedEvent struct {
	JurisdictionID int64
	ProjectionID   uuid.UUID
	Trials         int
	Seed           int64
	Nodes          int
	Omitted        int
	Version        string
	Cached         bool
}

type EvaluationCompletedEvent struct {
	Report domain.AccuracyReport
}

type AnalysisCompletedEvent struct {
	Kind           string
	JurisdictionID int64
	Before         domain.ElectionID
	After          domain.ElectionID
	PartyCode      string
	Rows           int
}
