package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
)

// MaxNetworkMessageSize is the default cap on one request frame (16MB).
const MaxNetworkMessageSize = 16 * 1024 * 1024

// Transport-level failure reasons, in addition to core's.
const (
	ReasonTooLarge  = "message_too_large"
	ReasonMalformed = "malformed_request"
)

// Common errors for network operations
var (
	ErrEndpointNotRunning = errors.New("endpoint is not running")
	ErrClientClosed       = errors.New("client is closed")
)

// ZmqConfig holds configuration for a ZmqEndpoint.
type ZmqConfig struct {
	// Address is a ZeroMQ endpoint such as "tcp://127.0.0.1:5560".
	Address string
	// MaxMessageSize caps one request frame. Zero means MaxNetworkMessageSize.
	MaxMessageSize int
	// Concurrency bounds in-flight requests. Zero means 64.
	Concurrency int

	Logger  *slog.Logger
	Metrics *monitoring.Metrics
}

// EndpointStats contains endpoint statistics.
type EndpointStats struct {
	Address   string `json:"address"`
	IsRunning bool   `json:"is_running"`
	Received  int64  `json:"received"`
	Replied   int64  `json:"replied"`
	Rejected  int64  `json:"rejected"`
	InFlight  int    `json:"in_flight"`
}

// ZmqEndpoint serves consensus requests on a ROUTER socket. A DEALER request is
// [identity, JSON ConsensusRequest] and is answered with [identity, JSON
// ConsensusReply]. REQ peers add an empty delimiter, which is echoed back.
type ZmqEndpoint struct {
	service *core.ConsensusService
	config  ZmqConfig
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	router zmq4.Socket
	sendMu sync.Mutex
	sem    chan struct{}

	received int64
	replied  int64
	rejected int64

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewZmqEndpoint creates a new endpoint over service.
func NewZmqEndpoint(service *core.ConsensusService, config ZmqConfig) *ZmqEndpoint {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = MaxNetworkMessageSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 64
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ZmqEndpoint{
		service: service,
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, config.Concurrency),
	}
}

// Start binds the ROUTER socket and begins serving.
func (e *ZmqEndpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("endpoint already running")
	}
	if e.ctx.Err() != nil {
		return ErrEndpointNotRunning
	}

	e.router = zmq4.NewRouter(e.ctx)
	if err := e.router.Listen(e.config.Address); err != nil {
		_ = e.router.Close()
		return fmt.Errorf("failed to bind router: %w", err)
	}
	e.running = true

	e.wg.Add(1)
	go e.receiverLoop()

	e.logger.Info("zmq endpoint listening", slog.String("addr", e.Endpoint()))
	return nil
}

// Endpoint returns the bound address in ZeroMQ form, resolving port 0.
func (e *ZmqEndpoint) Endpoint() string {
	if e.router == nil {
		return e.config.Address
	}
	addr := e.router.Addr()
	if addr == nil {
		return e.config.Address
	}
	scheme := "tcp"
	if i := strings.Index(e.config.Address, "://"); i > 0 {
		scheme = e.config.Address[:i]
	}
	return scheme + "://" + addr.String()
}

// Stop closes the socket and waits for in-flight requests. A stopped endpoint
// cannot be restarted.
func (e *ZmqEndpoint) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()
	_ = e.router.Close()
	e.wg.Wait()
}

// GetStats returns current endpoint statistics.
func (e *ZmqEndpoint) GetStats() EndpointStats {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	return EndpointStats{
		Address:   e.Endpoint(),
		IsRunning: running,
		Received:  atomic.LoadInt64(&e.received),
		Replied:   atomic.LoadInt64(&e.replied),
		Rejected:  atomic.LoadInt64(&e.rejected),
		InFlight:  len(e.sem),
	}
}

func (e *ZmqEndpoint) receiverLoop() {
	defer e.wg.Done()

	for {
		msg, err := e.router.Recv()
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Debug("zmq receive failed", slog.String("error", err.Error()))
			continue
		}
		if len(msg.Frames) < 2 {
			atomic.AddInt64(&e.rejected, 1)
			continue
		}
		atomic.AddInt64(&e.received, 1)

		// DEALER peers send [payload]; REQ peers add an empty delimiter that
		// must be echoed back. Everything before the payload is the envelope.
		envelope := msg.Frames[:len(msg.Frames)-1]
		payload := msg.Frames[len(msg.Frames)-1]

		select {
		case e.sem <- struct{}{}:
		case <-e.ctx.Done():
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.handle(envelope, payload)
		}()
	}
}

func (e *ZmqEndpoint) handle(envelope [][]byte, payload []byte) {
	start := time.Now()
	reply := e.process(payload)

	status := "ok"
	if reply.Error != "" {
		status = reply.Reason
	}
	e.config.Metrics.RecordRequest("zmq", "Compute", status, time.Since(start))

	out, err := json.Marshal(reply)
	if err != nil {
		e.logger.Error("zmq reply encode failed", slog.String("error", err.Error()))
		return
	}

	frames := make([][]byte, 0, len(envelope)+1)
	frames = append(frames, envelope...)
	frames = append(frames, out)

	e.sendMu.Lock()
	err = e.router.Send(zmq4.NewMsgFrom(frames...))
	e.sendMu.Unlock()
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Warn("zmq reply failed", slog.String("error", err.Error()))
		}
		return
	}
	atomic.AddInt64(&e.replied, 1)
}

func (e *ZmqEndpoint) process(payload []byte) core.ConsensusReply {
	if len(payload) > e.config.MaxMessageSize {
		atomic.AddInt64(&e.rejected, 1)
		return core.ConsensusReply{
			Error:  fmt.Sprintf("request of %d bytes exceeds limit %d", len(payload), e.config.MaxMessageSize),
			Reason: ReasonTooLarge,
		}
	}

	var req core.ConsensusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		atomic.AddInt64(&e.rejected, 1)
		return core.ConsensusReply{Error: err.Error(), Reason: ReasonMalformed}
	}

	return e.service.Handle(e.ctx, &req)
}
