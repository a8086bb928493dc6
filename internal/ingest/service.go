// Package ingest exposes the engine over gRPC: upstream producers publish
// event envelopes, operators trigger scenarios and dashboards watch the
// stream of applied events.
//
// Messages are google.protobuf.Struct carrying the same JSON documents as the
// websocket feed, so the service needs no generated code of its own.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/model"
)

// Fully-qualified names of the ingest service and its methods.
const (
	ServiceName           = "edgeview.ingest.v1.EventIngest"
	PublishMethod         = "/" + ServiceName + "/Publish"
	TriggerScenarioMethod = "/" + ServiceName + "/TriggerScenario"
	WatchMethod           = "/" + ServiceName + "/Watch"
)

const defaultWatchBuffer = 64

// Engine is the part of the engine the service drives.
type Engine interface {
	SubmitRaw(ctx context.Context, raw []byte) error
	TriggerScenario(ctx context.Context, sc model.Scenario) (scenario.Ack, error)
	OnApplied(fn func(events.Applied)) (cancel func())
}

// EventIngestServer is the server API of the ingest service.
type EventIngestServer interface {
	Publish(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	TriggerScenario(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*emptypb.Empty, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// Service implements EventIngestServer on top of an Engine.
type Service struct {
	eng         Engine
	catalog     *scenario.Catalog
	log         logging.Logger
	watchBuffer int
	dropped     atomic.Uint64
}

// NewService returns a service; a nil catalog means the built-in one.
func NewService(eng Engine, catalog *scenario.Catalog, log logging.Logger) *Service {
	if catalog == nil {
		catalog = scenario.Default()
	}
	return &Service{
		eng:         eng,
		catalog:     catalog,
		log:         logging.OrNoop(log).With(logging.Component("ingest")),
		watchBuffer: defaultWatchBuffer,
	}
}

// Dropped returns how many notifications slow watchers missed.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Publish decodes the envelope in req and queues it on the engine.
func (s *Service) Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, ToStatusError(fmt.Errorf("%w: empty envelope", ErrInvalidRequest))
	}
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if err := s.eng.SubmitRaw(ctx, raw); err != nil {
		logging.FromContext(ctx, s.log).Warn(ctx, "publish rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// TriggerScenario resolves req against the catalog and triggers it. The
// response carries success, message and estimatedDuration.
func (s *Service) TriggerScenario(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var tr scenario.TriggerRequest
	if req != nil {
		raw, err := protojson.Marshal(req)
		if err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
	}
	sc, err := s.catalog.Resolve(tr)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ack, err := s.eng.TriggerScenario(ctx, sc)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"success":           ack.Success,
		"message":           ack.Message,
		"estimatedDuration": ack.EstimatedDuration,
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// Watch streams every applied event until the client goes away. A watcher
// that falls more than the buffer behind loses notifications.
func (s *Service) Watch(_ *emptypb.Empty, stream WatchServer) error {
	ctx := stream.Context()
	log := logging.FromContext(ctx, s.log)
	ch := make(chan events.Applied, s.watchBuffer)
	cancel := s.eng.OnApplied(func(note events.Applied) {
		select {
		case ch <- note:
		default:
			s.dropped.Add(1)
		}
	})
	defer cancel()
	log.Debug(ctx, "watch started")

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "watch ended")
			return nil
		case note := <-ch:
			msg, err := appliedToStruct(note)
			if err != nil {
				log.Warn(ctx, "encode applied event", logging.Err(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func appliedToStruct(note events.Applied) (*structpb.Struct, error) {
	raw, err := json.Marshal(note)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceDesc describes the ingest service to grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventIngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
		{MethodName: "TriggerScenario", Handler: triggerScenarioHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "edgeview/ingest/v1/ingest.proto",
}

// RegisterEventIngestServer registers srv on s.
func RegisterEventIngestServer(s grpc.ServiceRegistrar, srv EventIngestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func publishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventIngestServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventIngestServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func triggerScenarioHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventIngestServer).TriggerScenario(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriggerScenarioMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventIngestServer).TriggerScenario(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EventIngestServer).Watch(in, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}
