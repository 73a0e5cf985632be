package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "poa.v1.ConsensusEngine"

// CodecName is the content-subtype clients must select with grpc.CallContentSubtype.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals messages as JSON so the wire types need no generated code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return CodecName }

// BatchRequest carries several consensus requests.
type BatchRequest struct {
	Requests []core.ConsensusRequest `json:"requests"`
}

// BatchReply answers a BatchRequest in order.
type BatchReply struct {
	Replies []core.ConsensusReply `json:"replies"`
}

// HealthRequest is the empty HealthCheck request.
type HealthRequest struct{}

// HealthResponse reports service health.
type HealthResponse struct {
	Healthy       bool           `json:"healthy"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	NativeEngine  bool           `json:"native_engine"`
	Pool          core.PoolStats `json:"pool"`
}

// ConsensusEngineServer is the server API for the ConsensusEngine service.
type ConsensusEngineServer interface {
	Compute(context.Context, *core.ConsensusRequest) (*core.ConsensusReply, error)
	ComputeBatch(context.Context, *BatchRequest) (*BatchReply, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
}

// RegisterConsensusEngineServer registers srv on s.
func RegisterConsensusEngineServer(s grpc.ServiceRegistrar, srv ConsensusEngineServer) {
	s.RegisterService(&consensusEngineServiceDesc, srv)
}

var consensusEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsensusEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compute", Handler: computeHandler},
		{MethodName: "ComputeBatch", Handler: computeBatchHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "poa/v1/consensus.proto",
}

func computeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(core.ConsensusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsensusEngineServer).Compute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Compute"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsensusEngineServer).Compute(ctx, req.(*core.ConsensusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func computeBatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsensusEngineServer).ComputeBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ComputeBatch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsensusEngineServer).ComputeBatch(ctx, req.(*BatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsensusEngineServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/HealthCheck"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConsensusEngineServer).HealthCheck(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServerConfig holds configuration for the gRPC server.
type GRPCServerConfig struct {
	// MaxRecvMsgSize is the maximum message size in bytes
	MaxRecvMsgSize int
	// MaxSendMsgSize is the maximum message size in bytes
	MaxSendMsgSize int
	// MaxBatch caps the number of requests in one ComputeBatch call. Zero means no cap.
	MaxBatch int

	Logger  *slog.Logger
	Metrics *monitoring.Metrics
}

// DefaultGRPCServerConfig returns a GRPCServerConfig with sensible defaults.
func DefaultGRPCServerConfig() GRPCServerConfig {
	return GRPCServerConfig{
		MaxRecvMsgSize: 16 * 1024 * 1024,
		MaxSendMsgSize: 16 * 1024 * 1024,
		MaxBatch:       10000,
	}
}

// GRPCServer implements ConsensusEngineServer over a ConsensusService.
type GRPCServer struct {
	service *core.ConsensusService
	config  GRPCServerConfig
	logger  *slog.Logger

	grpcServer *grpc.Server
	listener   net.Listener
	startTime  time.Time
	running    bool
	mu         sync.RWMutex
}

// NewGRPCServer creates a new gRPC server instance.
func NewGRPCServer(service *core.ConsensusService, config GRPCServerConfig) *GRPCServer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &GRPCServer{
		service:   service,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(config.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(config.MaxSendMsgSize),
		grpc.ChainUnaryInterceptor(s.metricsInterceptor),
	)
	RegisterConsensusEngineServer(s.grpcServer, s)
	return s
}

func (s *GRPCServer) listen(address string) (net.Listener, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return lis, nil
}

// Serve serves on lis until Stop. It blocks.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.listener = lis
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("grpc server listening", slog.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Start starts the gRPC server on address. It blocks.
func (s *GRPCServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// StartAsync starts the gRPC server asynchronously and returns immediately.
func (s *GRPCServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go func() {
		_ = s.Serve(lis)
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.grpcServer.GracefulStop()
}

// Compute computes one consensus. Failures are returned as gRPC status errors.
func (s *GRPCServer) Compute(ctx context.Context, req *core.ConsensusRequest) (*core.ConsensusReply, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "empty request")
	}
	reply := s.service.Handle(ctx, req)
	if reply.Error != "" {
		return nil, status.Error(codeOf(reply.Reason), reply.Error)
	}
	return &reply, nil
}

// ComputeBatch computes every request. Per-request failures are reported in
// the replies; only batch-level failures are status errors.
func (s *GRPCServer) ComputeBatch(ctx context.Context, req *BatchRequest) (*BatchReply, error) {
	if req == nil || len(req.Requests) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty consensus batch")
	}
	if s.config.MaxBatch > 0 && len(req.Requests) > s.config.MaxBatch {
		return nil, status.Errorf(codes.InvalidArgument, "batch of %d exceeds limit %d", len(req.Requests), s.config.MaxBatch)
	}

	replies, err := s.service.HandleBatch(ctx, req.Requests)
	if err != nil {
		return nil, status.Error(codeOf(core.ReasonOf(err)), err.Error())
	}
	return &BatchReply{Replies: replies}, nil
}

// HealthCheck returns the health status of the engine.
func (s *GRPCServer) HealthCheck(ctx context.Context, _ *HealthRequest) (*HealthResponse, error) {
	s.mu.RLock()
	running := s.running
	startTime := s.startTime
	s.mu.RUnlock()

	return &HealthResponse{
		Healthy:       running && s.service.Health() == nil,
		Version:       Version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		NativeEngine:  binding.NativeAvailable(),
		Pool:          s.service.Stats(),
	}, nil
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.config.Metrics.RecordRequest("grpc", methodName(info.FullMethod), status.Code(err).String(), time.Since(start))
	return resp, err
}

func methodName(full string) string {
	return full[strings.LastIndex(full, "/")+1:]
}

// codeOf maps a failure reason to a gRPC status code.
func codeOf(reason string) codes.Code {
	switch reason {
	case core.ReasonUnterminated, core.ReasonEmbeddedSentinel, core.ReasonCountMismatch, core.ReasonInvalidMode:
		return codes.InvalidArgument
	case core.ReasonEngineUnavailable:
		return codes.Unavailable
	case core.ReasonEngineFailure, core.ReasonInternal:
		return codes.Internal
	case core.ReasonCanceled:
		return codes.Canceled
	default:
		return codes.Unknown
	}
}
