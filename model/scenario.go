package model

// NodeChange is a status change a scenario applies to a node.
type NodeChange struct {
	NodeID    string `json:"nodeId" yaml:"nodeId"`
	NewStatus Health `json:"newStatus" yaml:"newStatus"`
}

// LinkChange is a status change a scenario applies to a link.
type LinkChange struct {
	LinkID    string `json:"linkId" yaml:"linkId"`
	NewStatus Health `json:"newStatus" yaml:"newStatus"`
}

// MetricChanges are relative shifts of the network-wide metrics.
type MetricChanges struct {
	Throughput *float64 `json:"throughput,omitempty" yaml:"throughput,omitempty"`
	Latency    *float64 `json:"latency,omitempty" yaml:"latency,omitempty"`
	PacketLoss *float64 `json:"packetLoss,omitempty" yaml:"packetLoss,omitempty"`
}

// ScenarioEffects describes what a simulated scenario would do to the network.
// The dashboard records them for display only.
type ScenarioEffects struct {
	NodeChanges   []NodeChange   `json:"nodeChanges,omitempty" yaml:"nodeChanges,omitempty"`
	LinkChanges   []LinkChange   `json:"linkChanges,omitempty" yaml:"linkChanges,omitempty"`
	MetricChanges *MetricChanges `json:"metricChanges,omitempty" yaml:"metricChanges,omitempty"`
}

// Scenario is a simulation scenario an operator can trigger.
type Scenario struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Effects     ScenarioEffects `json:"effects" yaml:"effects"`
}
