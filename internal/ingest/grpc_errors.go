package ingest

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/edgeview/internal/engine"
	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/state"
)

// ErrInvalidRequest is used for requests rejected before reaching the engine.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps engine and store errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, state.ErrNodeNotFound),
		errors.Is(err, scenario.ErrUnknownScenario):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, events.ErrMalformed),
		errors.Is(err, state.ErrUnknownMetric):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, engine.ErrClosed),
		errors.Is(err, state.ErrDisposed):
		return status.Error(codes.Unavailable, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
