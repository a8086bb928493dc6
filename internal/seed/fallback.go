package seed

import (
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/edgeview/model"
)

// FallbackPoints is the length of every fallback metric series.
const FallbackPoints = 24

// Fallback returns the built-in dataset: six nodes, six links, three
// decisions and one FallbackPoints-long series per metric, sampled a minute
// apart up to now. Equal (now, seed) pairs give equal datasets.
func Fallback(now time.Time, seed uint64) model.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	metrics := make(model.MetricSet, len(model.MetricKinds()))
	for _, k := range model.MetricKinds() {
		lo, hi := model.NominalRange(k)
		series := make([]model.Sample, FallbackPoints)
		for i := range series {
			series[i] = model.Sample{
				Timestamp: now.Add(-time.Duration(FallbackPoints-i) * time.Minute),
				Value:     rng.Float64()*(hi-lo) + lo,
			}
		}
		metrics[k] = series
	}

	return model.Dataset{
		Nodes:        fallbackNodes(),
		Links:        fallbackLinks(),
		Metrics:      metrics,
		AIDecisions:  fallbackDecisions(now),
		SystemStatus: model.DefaultSystemStatus(),
	}
}

func fallbackNodes() []model.Node {
	node := func(id, name string, cat model.Category, status model.Health, x, y, tp, lat float64, users int) model.Node {
		return model.Node{
			ID:       id,
			Name:     name,
			Category: cat,
			Status:   status,
			Position: model.Point{X: x, Y: y},
			Metrics:  model.NodeMetrics{Throughput: tp, Latency: lat, Users: users},
		}
	}
	return []model.Node{
		node("1", "Village A", model.CategorySettlement, model.HealthOptimal, 100, 100, 25, 15, 45),
		node("2", "Village B", model.CategorySettlement, model.HealthWarning, 250, 150, 18, 25, 32),
		node("3", "Village C", model.CategorySettlement, model.HealthOptimal, 150, 250, 22, 18, 38),
		node("4", "Tower 1", model.CategoryRelayTower, model.HealthOptimal, 180, 180, 85, 8, 115),
		node("5", "Tower 2", model.CategoryRelayTower, model.HealthCritical, 300, 220, 45, 35, 78),
		node("6", "Satellite Link", model.CategorySatelliteLink, model.HealthOptimal, 220, 80, 120, 250, 200),
	}
}

func fallbackLinks() []model.Link {
	return []model.Link{
		{ID: "1", Source: "1", Target: "4", Status: model.HealthOptimal, Bandwidth: 30},
		{ID: "2", Source: "2", Target: "4", Status: model.HealthWarning, Bandwidth: 25},
		{ID: "3", Source: "3", Target: "4", Status: model.HealthOptimal, Bandwidth: 28},
		{ID: "4", Source: "4", Target: "5", Status: model.HealthOptimal, Bandwidth: 80},
		{ID: "5", Source: "5", Target: "6", Status: model.HealthCritical, Bandwidth: 40},
		{ID: "6", Source: "4", Target: "6", Status: model.HealthOptimal, Bandwidth: 100},
	}
}

// fallbackDecisions is most recent first.
func fallbackDecisions(now time.Time) []model.Decision {
	return []model.Decision{
		{
			ID:          "1",
			Timestamp:   now.Add(-time.Minute),
			Action:      "Activated backup link",
			Description: "Detected high latency on Tower 2, activated backup satellite link",
			Impact:      "Latency reduced by 45%",
		},
		{
			ID:          "2",
			Timestamp:   now.Add(-3 * time.Minute),
			Action:      "Bandwidth reallocation",
			Description: "Optimized bandwidth allocation for Village B during peak hours",
			Impact:      "Throughput increased by 22%",
		},
		{
			ID:          "3",
			Timestamp:   now.Add(-6 * time.Minute),
			Action:      "Packet routing optimization",
			Description: "Modified routing algorithm to reduce congestion at Tower 1",
			Impact:      "Packet loss reduced from 3.2% to 0.8%",
		},
	}
}
