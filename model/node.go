package model

import "math"

// Health is the three-way health classification shared by nodes, links and
// the overall system status.
type Health string

const (
	HealthOptimal  Health = "optimal"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Valid reports whether h is one of the known health values.
func (h Health) Valid() bool {
	switch h {
	case HealthOptimal, HealthWarning, HealthCritical:
		return true
	default:
		return false
	}
}

// Category is the kind of site a node represents.
type Category string

const (
	CategorySettlement    Category = "village"
	CategoryRelayTower    Category = "tower"
	CategorySatelliteLink Category = "satellite"
)

// Point is a 2D coordinate. Depending on context it is expressed in logical
// map units or in surface pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p with both components multiplied by f.
func (p Point) Scale(f float64) Point { return Point{X: p.X * f, Y: p.Y * f} }

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// NodeMetrics holds the live per-node figures shown in tooltips.
type NodeMetrics struct {
	Throughput float64 `json:"throughput" yaml:"throughput"` // Mbps
	Latency    float64 `json:"latency" yaml:"latency"`       // ms
	Users      int     `json:"users" yaml:"users"`           // connected users
}

// Node is a site in the edge network.
// Nodes are never deleted at runtime; they only change through merges.
type Node struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Category Category    `json:"type" yaml:"type"`
	Status   Health      `json:"status" yaml:"status"`
	Position Point       `json:"coordinates" yaml:"coordinates"`
	Metrics  NodeMetrics `json:"metrics" yaml:"metrics"`
}

// Link connects two nodes by id. Either endpoint may be missing from the
// node set; consumers skip such links.
type Link struct {
	ID        string  `json:"id" yaml:"id"`
	Source    string  `json:"source" yaml:"source"`
	Target    string  `json:"target" yaml:"target"`
	Status    Health  `json:"status" yaml:"status"`
	Bandwidth float64 `json:"bandwidth" yaml:"bandwidth"` // Mbps
}
