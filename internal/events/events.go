// Package events defines the closed set of update events the dashboard
// engine merges, and their JSON wire envelope.
package events

import (
	"github.com/signalsfoundry/edgeview/model"
)

// Kind is the wire tag of an event.
type Kind string

const (
	KindNodeUpdate   Kind = "NODE_UPDATE"
	KindMetricUpdate Kind = "METRIC_UPDATE"
	KindAIDecision   Kind = "AI_DECISION"
	KindSystemStatus Kind = "SYSTEM_STATUS"
)

// Event is one update delivered to the engine. The set of implementations is
// closed: NodeUpdate, MetricUpdate, DecisionLogged, StatusReplaced and the
// catch-all Unknown.
type Event interface {
	Kind() Kind
	isEvent()
}

// NodeUpdate is a partial update of one node. Nil fields are left untouched
// by the merge.
type NodeUpdate struct {
	ID       string
	Name     *string
	Category *model.Category
	Status   *model.Health
	Position *model.Point
	Metrics  *model.NodeMetrics
}

// MetricUpdate appends one sample to a metric series.
type MetricUpdate struct {
	Metric model.MetricKind
	Sample model.Sample
}

// DecisionLogged prepends an entry to the decision log.
type DecisionLogged struct {
	Decision model.Decision
}

// StatusReplaced overwrites the system status.
type StatusReplaced struct {
	Status model.SystemStatus
}

// Unknown carries an event whose tag this build does not understand.
// The engine ignores it.
type Unknown struct {
	Type string
}

func (NodeUpdate) Kind() Kind     { return KindNodeUpdate }
func (MetricUpdate) Kind() Kind   { return KindMetricUpdate }
func (DecisionLogged) Kind() Kind { return KindAIDecision }
func (StatusReplaced) Kind() Kind { return KindSystemStatus }
func (u Unknown) Kind() Kind      { return Kind(u.Type) }

func (NodeUpdate) isEvent()     {}
func (MetricUpdate) isEvent()   {}
func (DecisionLogged) isEvent() {}
func (StatusReplaced) isEvent() {}
func (Unknown) isEvent()        {}

// StatusUpdate is a shorthand for a NodeUpdate that only changes the status.
func StatusUpdate(id string, status model.Health) NodeUpdate {
	return NodeUpdate{ID: id, Status: &status}
}

// Label returns a bounded-cardinality name for metrics and logs. Unknown
// events collapse into a single label.
func Label(ev Event) string {
	switch ev.(type) {
	case NodeUpdate, *NodeUpdate:
		return string(KindNodeUpdate)
	case MetricUpdate, *MetricUpdate:
		return string(KindMetricUpdate)
	case DecisionLogged, *DecisionLogged:
		return string(KindAIDecision)
	case StatusReplaced, *StatusReplaced:
		return string(KindSystemStatus)
	default:
		return "UNKNOWN"
	}
}
