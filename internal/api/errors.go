package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/signalsfoundry/edgeview/internal/engine"
	"github.com/signalsfoundry/edgeview/internal/interaction"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/viewport"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, state.ErrNodeNotFound),
		errors.Is(err, scenario.ErrUnknownScenario):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, state.ErrUnknownMetric),
		errors.Is(err, viewport.ErrInvalidMode),
		errors.Is(err, viewport.ErrInvalidSize),
		errors.Is(err, interaction.ErrUnknownPointerEvent):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed),
		errors.Is(err, state.ErrDisposed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := statusFor(err)
	log := logging.FromContext(ctx, nil)
	if status >= http.StatusInternalServerError {
		log.Warn(ctx, "request failed", logging.Int("status", status), logging.Err(err))
	} else {
		log.Debug(ctx, "request rejected", logging.Int("status", status), logging.Err(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: logging.RequestIDFromContext(ctx)})
}

// decodeBody decodes a JSON body of at most 1 MiB into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
