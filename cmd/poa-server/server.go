package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/POA-Engine/poa-engine/api"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/cache"
	"github.com/VanDung-dev/POA-Engine/poa-engine/config"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
	"github.com/VanDung-dev/POA-Engine/poa-engine/network"
)

const shutdownTimeout = 10 * time.Second

// server owns the service and every enabled transport.
type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *core.ConsensusService
	cache   *cache.ResultCache

	registry *prometheus.Registry
	arrow    *api.ArrowServer
	grpc     *api.GRPCServer
	zmq      *network.ZmqEndpoint
	metrics  *monitoring.MetricsServer
}

func newServer(cfg *config.Config, engine binding.Engine, logger *slog.Logger) (*server, error) {
	b, err := binding.New(engine, cfg.BindingOptions(logger)...)
	if err != nil {
		return nil, err
	}
	defaults, err := cfg.AlignmentConfig()
	if err != nil {
		return nil, err
	}

	s := &server{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(cfg.Metrics.Namespace, s.registry)

	opts := []core.ServiceOption{
		core.WithDefaults(defaults),
		core.WithMetrics(metrics),
		core.WithServiceLogger(logger),
		core.WithWorkers(cfg.Workers.Count, cfg.Workers.QueueSize),
	}
	if cfg.Cache.Enabled {
		s.cache, err = cache.Open(cfg.CacheOptions(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithCache(s.cache))
	}

	s.service, err = core.NewConsensusService(b, opts...)
	if err != nil {
		s.close()
		return nil, err
	}

	if cfg.Arrow.Enabled {
		auth, err := api.NewAuthenticator(api.AuthConfig{
			Enabled: cfg.Arrow.AuthEnabled,
			Token:   cfg.Arrow.AuthToken,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		if auth.IsEnabled() && cfg.Arrow.AuthToken == "" {
			logger.Warn("arrow auth token generated", slog.String("token", auth.Token()))
		}
		s.arrow = api.NewArrowServer(api.NewArrowHandler(s.service, logger), api.ArrowServerConfig{
			Auth:        auth,
			IdleTimeout: cfg.Arrow.IdleTimeout,
			Logger:      logger,
			Metrics:     metrics,
		})
	}

	if cfg.GRPC.Enabled {
		gcfg := api.DefaultGRPCServerConfig()
		if cfg.GRPC.MaxMsgSize > 0 {
			gcfg.MaxRecvMsgSize = cfg.GRPC.MaxMsgSize
			gcfg.MaxSendMsgSize = cfg.GRPC.MaxMsgSize
		}
		gcfg.MaxBatch = cfg.GRPC.MaxBatch
		gcfg.Logger = logger
		gcfg.Metrics = metrics
		s.grpc = api.NewGRPCServer(s.service, gcfg)
	}

	if cfg.ZMQ.Enabled {
		s.zmq = network.NewZmqEndpoint(s.service, network.ZmqConfig{
			Address:        cfg.ZMQ.Address,
			MaxMessageSize: cfg.ZMQ.MaxMessageSize,
			Concurrency:    cfg.ZMQ.Concurrency,
			Logger:         logger,
			Metrics:        metrics,
		})
	}

	if cfg.Metrics.Enabled {
		s.metrics = monitoring.NewMetricsServer(cfg.Metrics.Address, s.registry, s.service.Health)
	}
	return s, nil
}

// run serves until ctx is cancelled or a transport fails, then stops
// every transport.
func (s *server) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.zmq != nil {
		if err := s.zmq.Start(); err != nil {
			return fmt.Errorf("start zmq endpoint: %w", err)
		}
		s.logger.Info("zmq endpoint listening", slog.String("addr", s.zmq.Endpoint()))
	}
	if s.arrow != nil {
		g.Go(func() error { return s.arrow.Start(s.cfg.Arrow.Address) })
	}
	if s.grpc != nil {
		g.Go(func() error { return s.grpc.Start(s.cfg.GRPC.Address) })
	}
	if s.metrics != nil {
		g.Go(s.metrics.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		s.stop()
		return nil
	})

	s.logger.Info("poa server started",
		slog.String("version", api.Version),
		slog.Bool("native_engine", binding.NativeAvailable()),
		slog.String("strategy", fmt.Sprintf("%T", s.cfg.ResultStrategy())),
		slog.Int("workers", s.cfg.Workers.Count),
	)
	return g.Wait()
}

func (s *server) stop() {
	if s.arrow != nil {
		s.arrow.Stop()
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.zmq != nil {
		s.zmq.Stop()
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.metrics.Stop(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}
	}
}

// close releases the service and the cache. Transports must be stopped first.
func (s *server) close() {
	if s.service != nil {
		s.service.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("cache close", slog.String("error", err.Error()))
		}
	}
}
