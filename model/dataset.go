package model

import "time"

// Decision is an entry of the AI decision log. The engine treats it as an
// opaque record produced upstream.
type Decision struct {
	ID          string    `json:"id" yaml:"id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Action      string    `json:"action" yaml:"action"`
	Description string    `json:"description" yaml:"description"`
	Impact      string    `json:"impact" yaml:"impact"`
}

// SystemStatus is the overall status banner. It is always replaced as a whole.
type SystemStatus struct {
	Overall               Health `json:"overall" yaml:"overall"`
	Uptime                string `json:"uptime" yaml:"uptime"`
	PerformanceScore      int    `json:"performanceScore" yaml:"performanceScore"`
	PredictedImprovements string `json:"predictedImprovements" yaml:"predictedImprovements"`
}

// DefaultSystemStatus is the status shown before any SYSTEM_STATUS event.
func DefaultSystemStatus() SystemStatus {
	return SystemStatus{
		Overall:               HealthOptimal,
		Uptime:                "99.8%",
		PerformanceScore:      92,
		PredictedImprovements: "15% latency reduction",
	}
}

// Dataset is the full dashboard snapshot exchanged with the initial-data
// endpoint and loaded from seed files.
type Dataset struct {
	Nodes          []Node       `json:"nodes" yaml:"nodes"`
	Links          []Link       `json:"links" yaml:"links"`
	Metrics        MetricSet    `json:"metrics" yaml:"metrics"`
	AIDecisions    []Decision   `json:"aiDecisions" yaml:"aiDecisions"`
	SystemStatus   SystemStatus `json:"systemStatus" yaml:"systemStatus"`
	ActiveScenario *Scenario    `json:"activeScenario" yaml:"activeScenario,omitempty"`
}
