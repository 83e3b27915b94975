package main

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-electoral/modules/electoral/services"
	"github.com/iota-uz/iota-electoral/pkg/eventbus"
)

func subscribeEventLog(bus eventbus.EventBus, log *logrus.Logger) {
	bus.Subscribe(func(e *services.AggregationCompletedEvent) {
		log.WithFields(logrus.Fields{
			"jurisdiction_id": e.JurisdictionID,
			"election_id":     e.ElectionID,
			"records":         e.Records,
			"inconsistencies": e.Inconsistencies,
			"version":         e.Version,
		}).Debug("event: aggregation completed")
	})
	bus.Subscribe(func(e *services.ProjectionCompletedEvent) {
		log.WithFields(logrus.Fields{
			"jurisdiction_id": e.JurisdictionID,
			"projection_id":   e.ProjectionID,
			"trials":          e.Trials,
			"nodes":           e.Nodes,
			"version":         e.Version,
		}).Debug("event: projection completed")
	})
	bus.Subscribe(func(e *services.EvaluationCompletedEvent) {
		log.WithFields(logrus.Fields{
			"projection_id": e.Report.ProjectionID,
			"election_id":   e.Report.ElectionID,
			"node_id":       e.Report.GeoNodeID,
			"accuracy":      e.Report.OverallAccuracy,
		}).Debug("event: evaluation completed")
	})
	bus.Subscribe(func(e *services.AnalysisCompletedEvent) {
		log.WithFields(logrus.Fields{
			"kind":            e.Kind,
			"jurisdiction_id": e.JurisdictionID,
			"before":          e.Before,
			"after":           e.After,
			"party":           e.PartyCode,
			"rows":            e.Rows,
		}).Debug("event: analysis completed")
	})
}
