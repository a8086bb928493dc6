package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/edgeview/model"
)

// ErrMalformed is returned when a message cannot be decoded into an event.
var ErrMalformed = errors.New("events: malformed message")

// Envelope is the JSON frame every event travels in.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type nodeUpdateWire struct {
	ID          string             `json:"id"`
	Name        *string            `json:"name,omitempty"`
	Category    *model.Category    `json:"type,omitempty"`
	Status      *model.Health      `json:"status,omitempty"`
	Coordinates *model.Point       `json:"coordinates,omitempty"`
	Metrics     *model.NodeMetrics `json:"metrics,omitempty"`
}

// metricUpdateWire accepts both {kind, sample} and the upstream
// {type, value} spelling.
type metricUpdateWire struct {
	Kind   string        `json:"kind,omitempty"`
	Sample *model.Sample `json:"sample,omitempty"`
	Type   string        `json:"type,omitempty"`
	Value  *model.Sample `json:"value,omitempty"`
}

// Decode parses one envelope. Unrecognised types decode to Unknown without
// error; broken JSON or a missing required field yields ErrMalformed.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope converts an already split envelope into an event.
func DecodeEnvelope(env Envelope) (Event, error) {
	switch Kind(env.Type) {
	case KindNodeUpdate:
		var w nodeUpdateWire
		if err := unmarshalData(env, &w); err != nil {
			return nil, err
		}
		if w.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, env.Type)
		}
		return NodeUpdate{
			ID:       w.ID,
			Name:     w.Name,
			Category: w.Category,
			Status:   w.Status,
			Position: w.Coordinates,
			Metrics:  w.Metrics,
		}, nil

	case KindMetricUpdate:
		var w metricUpdateWire
		if err := unmarshalData(env, &w); err != nil {
			return nil, err
		}
		kind, sample := w.Kind, w.Sample
		if kind == "" {
			kind = w.Type
		}
		if sample == nil {
			sample = w.Value
		}
		if kind == "" || sample == nil {
			return nil, fmt.Errorf("%w: %s needs a metric kind and a sample", ErrMalformed, env.Type)
		}
		return MetricUpdate{Metric: model.MetricKind(kind), Sample: *sample}, nil

	case KindAIDecision:
		var d model.Decision
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return DecisionLogged{Decision: d}, nil

	case KindSystemStatus:
		var s model.SystemStatus
		if err := unmarshalData(env, &s); err != nil {
			return nil, err
		}
		return StatusReplaced{Status: s}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return Unknown{Type: env.Type}, nil
	}
}

func unmarshalData(env Envelope, v any) error {
	if len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// Encode renders ev in the canonical envelope form.
func Encode(ev Event) ([]byte, error) {
	if u, ok := ev.(Unknown); ok {
		return json.Marshal(Envelope{Type: u.Type})
	}
	payload, err := MarshalData(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(ev.Kind()), Data: payload})
}

// MarshalData renders only the data part of ev's envelope.
func MarshalData(ev Event) (json.RawMessage, error) {
	var data any
	switch e := ev.(type) {
	case NodeUpdate:
		data = nodeUpdateWire{
			ID:          e.ID,
			Name:        e.Name,
			Category:    e.Category,
			Status:      e.Status,
			Coordinates: e.Position,
			Metrics:     e.Metrics,
		}
	case MetricUpdate:
		s := e.Sample
		data = metricUpdateWire{Kind: string(e.Metric), Sample: &s}
	case DecisionLogged:
		data = e.Decision
	case StatusReplaced:
		data = e.Status
	case Unknown:
		return nil, nil
	default:
		return nil, fmt.Errorf("events: cannot encode %T", ev)
	}
	return json.Marshal(data)
}

// Applied is the notification pushed to dashboard clients after the engine
// merged an event.
type Applied struct {
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Type    string          `json:"type"`
	Outcome string          `json:"outcome"`
	Data    json.RawMessage `json:"data,omitempty"`
}
