package stream

import (
	"errors"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/edgeview/model"
)

// EarthRadiusKm is the mean Earth radius used for the ground station position.
const EarthRadiusKm = 6371.0

const speedOfLightKmPerMs = 299.792458

// ErrInvalidTLE is returned when a two-line element set is obviously malformed.
var ErrInvalidTLE = errors.New("invalid TLE")

// GroundStation is the terrestrial end of a satellite link.
type GroundStation struct {
	LatitudeDeg  float64 `yaml:"latitudeDeg" json:"latitudeDeg"`
	LongitudeDeg float64 `yaml:"longitudeDeg" json:"longitudeDeg"`
	AltitudeKm   float64 `yaml:"altitudeKm" json:"altitudeKm"`
}

type vec3 struct{ X, Y, Z float64 }

func (v vec3) sub(o vec3) vec3      { return vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v vec3) dot(o vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v vec3) norm() float64        { return math.Sqrt(v.dot(v)) }
func (v vec3) scale(f float64) vec3 { return vec3{v.X * f, v.Y * f, v.Z * f} }

// ecef places the station on a spherical Earth, in kilometres.
func (g GroundStation) ecef() vec3 {
	lat := g.LatitudeDeg * math.Pi / 180
	lon := g.LongitudeDeg * math.Pi / 180
	r := EarthRadiusKm + g.AltitudeKm
	return vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// SatelliteLink models the latency of a bent-pipe link between a ground
// station and one satellite propagated with SGP4.
type SatelliteLink struct {
	sat     satellite.Satellite
	station GroundStation
	// ProcessingMs is added to the propagation delay of every hop pair.
	ProcessingMs float64
}

// LinkGeometry is the satellite position relative to the ground station.
type LinkGeometry struct {
	SlantRangeKm float64
	ElevationDeg float64
}

// Visible reports whether the satellite is above the station's horizon.
func (g LinkGeometry) Visible() bool { return g.ElevationDeg >= 0 }

// NewSatelliteLink parses the TLE and returns a link to station.
func NewSatelliteLink(line1, line2 string, station GroundStation) (*SatelliteLink, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return nil, ErrInvalidTLE
	}
	return &SatelliteLink{
		sat:          satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		station:      station,
		ProcessingMs: 8,
	}, nil
}

// Geometry propagates the satellite to t and returns its slant range and
// elevation as seen from the ground station.
func (l *SatelliteLink) Geometry(t time.Time) LinkGeometry {
	t = t.UTC()
	year, month, day := t.Date()
	hh, mm, ss := t.Clock()

	posECI, _ := satellite.Propagate(l.sat, year, int(month), day, hh, mm, ss)
	jd := satellite.JDay(year, int(month), day, hh, mm, ss)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	sat := vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	obs := l.station.ecef()
	v := sat.sub(obs)
	rng := v.norm()
	if rng == 0 {
		return LinkGeometry{ElevationDeg: 90}
	}
	zenith := obs.scale(1 / obs.norm())
	cosGamma := max(-1, min(1, v.dot(zenith)/rng))
	return LinkGeometry{
		SlantRangeKm: rng,
		ElevationDeg: 90 - math.Acos(cosGamma)*180/math.Pi,
	}
}

// LatencyMs returns the round-trip latency over the link at t, clamped to
// the nominal latency range. A satellite below the horizon reports the top
// of the range.
func (l *SatelliteLink) LatencyMs(t time.Time) float64 {
	lo, hi := model.NominalRange(model.MetricLatency)
	g := l.Geometry(t)
	if !g.Visible() {
		return hi
	}
	ms := 2*g.SlantRangeKm/speedOfLightKmPerMs + l.ProcessingMs
	return max(lo, min(hi, ms))
}
