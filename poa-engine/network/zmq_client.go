package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

// ZmqClient sends consensus requests to a ZmqEndpoint over a DEALER socket.
// It is safe for concurrent use; replies are matched by request ID.
type ZmqClient struct {
	dealer zmq4.Socket
	ctx    context.Context
	cancel context.CancelFunc

	sendMu  sync.Mutex
	mu      sync.Mutex
	pending map[string]chan core.ConsensusReply
	closed  bool
	wg      sync.WaitGroup
}

// DialZmq connects a client to endpoint.
func DialZmq(endpoint string) (*ZmqClient, error) {
	ctx, cancel := context.WithCancel(context.Background())
	dealer := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())))
	if err := dealer.Dial(endpoint); err != nil {
		cancel()
		_ = dealer.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	c := &ZmqClient{
		dealer:  dealer,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan core.ConsensusReply),
	}
	c.wg.Add(1)
	go c.receiverLoop()
	return c, nil
}

// Compute sends req and waits for its reply or for ctx to end. A missing
// request ID is generated.
func (c *ZmqClient) Compute(ctx context.Context, req core.ConsensusRequest) (core.ConsensusReply, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return core.ConsensusReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ch := make(chan core.ConsensusReply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ConsensusReply{}, ErrClientClosed
	}
	c.pending[req.RequestID] = ch
	c.mu.Unlock()
	defer c.forget(req.RequestID)

	c.sendMu.Lock()
	err = c.dealer.Send(zmq4.NewMsg(payload))
	c.sendMu.Unlock()
	if err != nil {
		return core.ConsensusReply{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return core.ConsensusReply{}, ctx.Err()
	case <-c.ctx.Done():
		return core.ConsensusReply{}, ErrClientClosed
	}
}

func (c *ZmqClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *ZmqClient) receiverLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.dealer.Recv()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}

		var reply core.ConsensusReply
		if err := json.Unmarshal(msg.Frames[len(msg.Frames)-1], &reply); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.RequestID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- reply:
			default:
			}
		}
	}
}

// Close closes the socket. Pending calls return ErrClientClosed.
func (c *ZmqClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.dealer.Close()
	c.wg.Wait()
	return err
}
