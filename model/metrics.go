package model

import (
	"fmt"
	"time"
)

// MetricKind names one of the network-wide time series.
type MetricKind string

const (
	MetricThroughput       MetricKind = "throughput"
	MetricLatency          MetricKind = "latency"
	MetricPacketLoss       MetricKind = "packetLoss"
	MetricUserConnectivity MetricKind = "userConnectivity"
)

// MetricKinds returns every known metric kind in display order.
func MetricKinds() []MetricKind {
	return []MetricKind{MetricThroughput, MetricLatency, MetricPacketLoss, MetricUserConnectivity}
}

// ParseMetricKind validates s against the known metric kinds.
func ParseMetricKind(s string) (MetricKind, error) {
	for _, k := range MetricKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric kind %q", s)
}

// Sample is one (timestamp, value) point of a metric series.
type Sample struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
}

// MetricSet holds one series per metric kind.
type MetricSet map[MetricKind][]Sample

// NominalRange returns the usual operating range of a metric: Mbps for
// throughput, ms for latency and percent for the other two.
func NominalRange(k MetricKind) (lo, hi float64) {
	switch k {
	case MetricThroughput:
		return 50, 100
	case MetricLatency:
		return 10, 50
	case MetricPacketLoss:
		return 0, 5
	case MetricUserConnectivity:
		return 70, 100
	default:
		return 0, 0
	}
}
