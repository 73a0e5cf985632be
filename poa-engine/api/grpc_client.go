package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

// GRPCClient calls a remote ConsensusEngine service.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// Compute computes one consensus.
func (c *GRPCClient) Compute(ctx context.Context, req *core.ConsensusRequest, opts ...grpc.CallOption) (*core.ConsensusReply, error) {
	out := new(core.ConsensusReply)
	if err := c.invoke(ctx, "Compute", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeBatch computes several consensus requests.
func (c *GRPCClient) ComputeBatch(ctx context.Context, req *BatchRequest, opts ...grpc.CallOption) (*BatchReply, error) {
	out := new(BatchReply)
	if err := c.invoke(ctx, "ComputeBatch", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck queries service health.
func (c *GRPCClient) HealthCheck(ctx context.Context, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, "HealthCheck", &HealthRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
