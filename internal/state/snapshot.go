package state

import "github.com/signalsfoundry/edgeview/model"

// Snapshot returns a deep copy of the whole state. The copy shares nothing
// with the store and may be modified freely.
func (s *Store) Snapshot() model.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make(model.MetricSet, len(s.series))
	for kind, series := range s.series {
		metrics[kind] = series.Samples()
	}
	return model.Dataset{
		Nodes:          append([]model.Node{}, s.nodes...),
		Links:          append([]model.Link{}, s.links...),
		Metrics:        metrics,
		AIDecisions:    append([]model.Decision{}, s.decisions...),
		SystemStatus:   s.status,
		ActiveScenario: cloneScenario(s.active),
	}
}

// Nodes returns the nodes in load order.
func (s *Store) Nodes() []model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Node{}, s.nodes...)
}

// Links returns the links in load order.
func (s *Store) Links() []model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Link{}, s.links...)
}

// Topology returns nodes and links observed under one lock acquisition.
func (s *Store) Topology() ([]model.Node, []model.Link) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Node{}, s.nodes...), append([]model.Link{}, s.links...)
}

// Node returns the node with id.
func (s *Store) Node(id string) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.nodeIndex[id]
	if !ok {
		return model.Node{}, false
	}
	return s.nodes[idx], true
}

// NodeAt returns the node at position i in load order.
func (s *Store) NodeAt(i int) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.nodes) {
		return model.Node{}, false
	}
	return s.nodes[i], true
}

// Series returns the samples of kind, oldest first.
func (s *Store) Series(kind model.MetricKind) ([]model.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[kind]
	if !ok {
		return nil, ErrUnknownMetric
	}
	return series.Samples(), nil
}

// Decisions returns the decision log, most recent first.
func (s *Store) Decisions() []model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Decision{}, s.decisions...)
}

// SystemStatus returns the current system status.
func (s *Store) SystemStatus() model.SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ActiveScenario returns the last triggered scenario, or nil.
func (s *Store) ActiveScenario() *model.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneScenario(s.active)
}
