package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
)

// ArrowServerConfig holds configuration for the Arrow TCP server.
type ArrowServerConfig struct {
	// Auth is optional; nil or disabled accepts every connection.
	Auth *Authenticator
	// IdleTimeout closes connections that send nothing for this long. Zero disables it.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *monitoring.Metrics
}

// ArrowServer is a TCP server that answers Arrow IPC request batches.
type ArrowServer struct {
	handler *ArrowHandler
	config  ArrowServerConfig
	logger  *slog.Logger

	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	mu       sync.Mutex
	quit     chan struct{}
}

// NewArrowServer creates a new ArrowServer instance.
func NewArrowServer(handler *ArrowHandler, config ArrowServerConfig) *ArrowServer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ArrowServer{
		handler: handler,
		config:  config,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(chan struct{}),
	}
}

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	return lis, nil
}

// Start starts the Arrow server on the specified address.
// This method blocks until the server is stopped or fails.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	s.logger.Info("arrow server listening", slog.String("addr", lis.Addr().String()))
	return s.serve(lis)
}

// StartAsync starts the server in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go func() {
		_ = s.serve(lis)
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *ArrowServer) serve(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("arrow accept failed", slog.String("error", err.Error()))
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		go s.handleConnection(conn)
	}
}

func (s *ArrowServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *ArrowServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Stop closes the listener and every open connection, then waits for
// connection handlers to return.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// handleConnection serves one client until it disconnects.
func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	if s.config.Auth.IsEnabled() {
		s.setDeadline(conn)
		if err := s.config.Auth.Handshake(conn); err != nil {
			s.config.Metrics.RecordAuthFailure()
			s.logger.Warn("arrow auth rejected", slog.String("remote", remote), slog.String("error", err.Error()))
			return
		}
	}

	for {
		s.setDeadline(conn)
		payload, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("arrow read failed", slog.String("remote", remote), slog.String("error", err.Error()))
			}
			if errors.Is(err, ErrMessageTooLarge) {
				_ = WriteError(conn, err.Error())
			}
			return
		}

		start := time.Now()
		response, err := s.handler.ProcessBatch(s.ctx, payload)
		status := "ok"
		if err != nil {
			status = "error"
			s.logger.Warn("arrow batch failed", slog.String("remote", remote), slog.String("error", err.Error()))
			err = WriteError(conn, err.Error())
		} else {
			err = WriteResponse(conn, response)
		}
		s.config.Metrics.RecordRequest("arrow", "ProcessBatch", status, time.Since(start))
		if err != nil {
			return
		}
	}
}

func (s *ArrowServer) setDeadline(conn net.Conn) {
	if s.config.IdleTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.config.IdleTimeout))
	}
}
