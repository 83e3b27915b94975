package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycleDetected            = errors.New("cycle detected")
	ErrMultipleRoots            = errors.New("jurisdiction must have exactly one JURISDICTION_GENERAL root")
	ErrUnknownNode              = errors.New("unknown geo node")
	ErrUnknownParent            = errors.New("unknown parent node")
	ErrDuplicateNode            = errors.New("duplicate geo node")
	ErrInvalidLevel             = errors.New("invalid aggregation level")
	ErrInvalidLevelOrder        = errors.New("parent level must be coarser than child level")
	ErrInvalidRecord            = errors.New("invalid record")
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")
	ErrDivisionUndefined        = errors.New("division undefined: zero denominator")
	ErrScopeMismatch            = errors.New("scope mismatch")
	ErrInvalidTrialCount        = errors.New("trial count must be >= 1")
	ErrInvalidEstimate          = errors.New("invalid vote estimate")
	ErrReportExists             = errors.New("accuracy report already exists")
	ErrNotFound                 = errors.New("not found")
)

// CycleError reports the ancestor chain that revisits NodeID.
type CycleError struct {
	NodeID NodeID
	Path   []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		parts = append(parts, fmt.Sprint(id))
	}
	return fmt.Sprintf("cycle detected at node %d (path %s)", e.NodeID, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// RootError reports a tree whose top is not a single JURISDICTION_GENERAL node,
// or a jurisdiction without exactly one root of its own. TopID is the
// parentless node reached from the offending subtree; RootIDs lists the
// JURISDICTION_GENERAL nodes found on the same tree, or in the jurisdiction
// when JurisdictionID is set.
type RootError struct {
	JurisdictionID int64
	TopID          NodeID
	RootIDs        []NodeID
}

func (e *RootError) Error() string {
	if e.JurisdictionID != 0 {
		switch len(e.RootIDs) {
		case 0:
			return fmt.Sprintf("jurisdiction %d has no JURISDICTION_GENERAL root; its nodes reach node %d", e.JurisdictionID, e.TopID)
		case 1:
			return fmt.Sprintf("jurisdiction %d has nodes outside its root %d; they reach node %d", e.JurisdictionID, e.RootIDs[0], e.TopID)
		}
		return fmt.Sprintf("jurisdiction %d has %d JURISDICTION_GENERAL nodes %v", e.JurisdictionID, len(e.RootIDs), e.RootIDs)
	}
	if len(e.RootIDs) == 0 {
		return fmt.Sprintf("jurisdiction topped by node %d has no JURISDICTION_GENERAL root", e.TopID)
	}
	return fmt.Sprintf("jurisdiction topped by node %d has %d JURISDICTION_GENERAL nodes %v", e.TopID, len(e.RootIDs), e.RootIDs)
}

func (e *RootError) Unwrap() error { return ErrMultipleRoots }

// RecordError is a record rejected at the engine boundary.
type RecordError struct {
	NodeID     NodeID
	ElectionID ElectionID
	Reason     string
}

func (e *RecordError) Error() string {
	if e.ElectionID != 0 {
		return fmt.Sprintf("invalid record for node %d election %d: %s", e.NodeID, e.ElectionID, e.Reason)
	}
	return fmt.Sprintf("invalid record for node %d: %s", e.NodeID, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrInvalidRecord }

// InconsistencyError carries the offending node and the two disagreeing sums.
// Expected is the node's own value, Actual the sum over its children.
type InconsistencyError struct {
	NodeID   NodeID
	Level    Level
	Field    string
	Key      string
	Expected int64
	Actual   int64
	Subtree  []NodeID
}

func (e *InconsistencyError) Error() string {
	key := ""
	if e.Key != "" {
		key = "[" + e.Key + "]"
	}
	return fmt.Sprintf("aggregation inconsistency at node %d (%s): %s%s expected %d, children sum %d",
		e.NodeID, e.Level, e.Field, key, e.Expected, e.Actual)
}

func (e *InconsistencyError) Unwrap() error { return ErrAggregationInconsistency }

type ScopeError struct {
	ProjectionNode NodeID
	ActualNode     NodeID
	ProjectionElec ElectionID
	ActualElec     ElectionID
}

func (e *ScopeError) Error() string {
	if e.ProjectionNode != e.ActualNode {
		return fmt.Sprintf("scope mismatch: projection node %d vs actual node %d", e.ProjectionNode, e.ActualNode)
	}
	return fmt.Sprintf("scope mismatch: projection targets election %d, actual is election %d", e.ProjectionElec, e.ActualElec)
}

func (e *ScopeError) Unwrap() error { return ErrScopeMismatch }
