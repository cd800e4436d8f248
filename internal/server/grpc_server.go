package server

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/obby/fsclassify/internal/database"
	"github.com/obby/fsclassify/internal/hub"
)

// EventStreamServiceName is the fully qualified gRPC service name
const EventStreamServiceName = "fsclassify.v1.EventStream"

const defaultRecentLimit = 50

// EventLog is the journal read by RecentEvents
type EventLog interface {
	RecentEvents(ctx context.Context, limit int) ([]database.EventRecord, error)
}

// EventStreamServer is the server API for the EventStream service.
// Requests and responses are google.protobuf.Struct messages.
type EventStreamServer interface {
	// StreamEvents streams live events. Request: {"topics": ["created", ...]}
	StreamEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
	// RecentEvents streams journaled events, newest first. Request: {"limit": 20}
	RecentEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// EventStreamServiceDesc describes the EventStream service for registration
var EventStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: EventStreamServiceName,
	HandlerType: (*EventStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "RecentEvents",
			Handler:       recentEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "fsclassify/v1/events.proto",
}

func streamEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(EventStreamServer).StreamEvents(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

func recentEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(EventStreamServer).RecentEvents(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// EventStreamService implements EventStreamServer on top of the hub and the
// optional journal
type EventStreamService struct {
	hub     *hub.Hub
	journal EventLog
	logger  hclog.Logger
}

// NewEventStreamService creates the service. journal may be nil.
func NewEventStreamService(h *hub.Hub, journal EventLog, logger hclog.Logger) *EventStreamService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventStreamService{hub: h, journal: journal, logger: logger}
}

// StreamEvents implements the StreamEvents RPC
func (s *EventStreamService) StreamEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	topics := stringList(req, "topics")
	client := s.hub.NewClient(topics...)
	if !s.hub.Register(client) {
		return status.Error(codes.Unavailable, "event hub stopped")
	}
	defer s.hub.Unregister(client)

	s.logger.Info("grpc client subscribed", "client", client.ID, "topics", topics)

	ctx := stream.Context()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return nil
			}
			out, err := messageToStruct(msg)
			if err != nil {
				s.logger.Error("convert message", "error", err)
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-ctx.Done():
			s.logger.Info("grpc client disconnected", "client", client.ID)
			return nil
		}
	}
}

// RecentEvents implements the RecentEvents RPC
func (s *EventStreamService) RecentEvents(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.journal == nil {
		return status.Error(codes.FailedPrecondition, "event journal disabled")
	}

	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	records, err := s.journal.RecentEvents(stream.Context(), limit)
	if err != nil {
		return status.Errorf(codes.Internal, "read journal: %v", err)
	}

	for _, rec := range records {
		out, err := recordToStruct(rec)
		if err != nil {
			return status.Errorf(codes.Internal, "convert record: %v", err)
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
	return nil
}

// GRPCServer hosts the EventStream and health services
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	port   int
	logger hclog.Logger
}

// NewGRPCServer creates the gRPC server and registers its services
func NewGRPCServer(svc EventStreamServer, port int, logger hclog.Logger) *GRPCServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := grpc.NewServer()
	s.RegisterService(&EventStreamServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus(EventStreamServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for development
	reflection.Register(s)

	return &GRPCServer{server: s, health: hs, port: port, logger: logger}
}

// Start listens on the configured port and serves until Stop
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop marks the services as not serving and stops gracefully
func (s *GRPCServer) Stop() {
	s.logger.Info("grpc server shutting down")
	s.health.Shutdown()
	s.server.GracefulStop()
}

// EventStreamClient is a client for the EventStream service
type EventStreamClient struct {
	cc grpc.ClientConnInterface
}

// NewEventStreamClient wraps a client connection
func NewEventStreamClient(cc grpc.ClientConnInterface) *EventStreamClient {
	return &EventStreamClient{cc: cc}
}

// StreamEvents subscribes to live events on the given topics
func (c *EventStreamClient) StreamEvents(ctx context.Context, topics ...string) (grpc.ServerStreamingClient[structpb.Struct], error) {
	list := make([]interface{}, len(topics))
	for i, t := range topics {
		list[i] = t
	}
	req, err := structpb.NewStruct(map[string]interface{}{"topics": list})
	if err != nil {
		return nil, err
	}
	return c.call(ctx, 0, req)
}

// RecentEvents reads up to limit journaled events
func (c *EventStreamClient) RecentEvents(ctx context.Context, limit int) (grpc.ServerStreamingClient[structpb.Struct], error) {
	req, err := structpb.NewStruct(map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}
	return c.call(ctx, 1, req)
}

func (c *EventStreamClient) call(ctx context.Context, idx int, req *structpb.Struct) (grpc.ServerStreamingClient[structpb.Struct], error) {
	desc := &EventStreamServiceDesc.Streams[idx]
	method := "/" + EventStreamServiceName + "/" + desc.StreamName

	stream, err := c.cc.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func stringList(req *structpb.Struct, key string) []string {
	var out []string
	for _, v := range req.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func messageToStruct(msg hub.Message) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(msg.Data), out); err != nil {
		return nil, err
	}
	if out.Fields == nil {
		out.Fields = make(map[string]*structpb.Value)
	}
	out.Fields["topic"] = structpb.NewStringValue(msg.Topic)
	return out, nil
}

func recordToStruct(rec database.EventRecord) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":        rec.ID,
		"kind":      rec.Kind,
		"path":      rec.Path,
		"new_path":  rec.NewPath,
		"rule":      rec.Rule,
		"errors":    rec.Errors,
		"timestamp": rec.Timestamp,
	})
}
