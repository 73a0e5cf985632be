package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/cache"
	"github.com/VanDung-dev/POA-Engine/poa-engine/monitoring"
)

var tracer = otel.Tracer("poa-engine/core")

// ConsensusService runs consensus requests on a worker pool.
//
// Each group is framed into sentinel-terminated records and handed to the
// binding. A started foreign call always runs to completion; context
// cancellation only stops waiting for it.
type ConsensusService struct {
	binding  *binding.Binding
	pool     *WorkerPool
	cache    *cache.ResultCache
	metrics  *monitoring.Metrics
	logger   *slog.Logger
	defaults binding.AlignmentConfig
	workers  int
	queue    int
}

// ServiceOption configures a ConsensusService.
type ServiceOption func(*ConsensusService)

// WithCache enables the result cache.
func WithCache(c *cache.ResultCache) ServiceOption {
	return func(s *ConsensusService) { s.cache = c }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *monitoring.Metrics) ServiceOption {
	return func(s *ConsensusService) { s.metrics = m }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *ConsensusService) { s.logger = l }
}

// WithDefaults sets the alignment config used when a request carries none.
func WithDefaults(cfg binding.AlignmentConfig) ServiceOption {
	return func(s *ConsensusService) { s.defaults = cfg }
}

// WithWorkers sizes the worker pool.
func WithWorkers(workers, queueSize int) ServiceOption {
	return func(s *ConsensusService) {
		s.workers = workers
		s.queue = queueSize
	}
}

// NewConsensusService creates a service over b.
func NewConsensusService(b *binding.Binding, opts ...ServiceOption) (*ConsensusService, error) {
	if b == nil {
		return nil, fmt.Errorf("consensus service: %w", binding.ErrEngineUnavailable)
	}
	s := &ConsensusService{
		binding:  b,
		logger:   slog.Default(),
		defaults: binding.DefaultAlignmentConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.defaults.Validate(); err != nil {
		return nil, fmt.Errorf("consensus service defaults: %w", err)
	}
	s.pool = NewWorkerPool("consensus", s.workers, s.queue)
	return s, nil
}

// Defaults returns the alignment config applied to requests without overrides.
func (s *ConsensusService) Defaults() binding.AlignmentConfig {
	return s.defaults
}

// Stats returns worker pool statistics.
func (s *ConsensusService) Stats() PoolStats {
	return s.pool.GetStats()
}

// Health reports whether the service accepts work.
func (s *ConsensusService) Health() error {
	if !s.pool.IsRunning() {
		return ErrPoolClosed
	}
	return nil
}

// Close stops the worker pool after in-flight groups complete.
func (s *ConsensusService) Close() {
	s.pool.Shutdown()
}

// Compute computes the consensus of one group on the calling goroutine.
func (s *ConsensusService) Compute(ctx context.Context, group ReadGroup, cfg binding.AlignmentConfig) GroupResult {
	if err := ctx.Err(); err != nil {
		return GroupResult{GroupID: group.ID, Err: err}
	}
	return s.compute(ctx, group, cfg)
}

// ComputeBatch computes every group on the worker pool. Results are returned in
// input order; per-group failures are reported in GroupResult.Err. The error
// return is non-nil only when ctx ends or the pool is shut down before all
// groups complete.
func (s *ConsensusService) ComputeBatch(ctx context.Context, groups []ReadGroup, cfg binding.AlignmentConfig) ([]GroupResult, error) {
	items := make([]batchItem, len(groups))
	for i := range groups {
		items[i] = batchItem{group: groups[i], cfg: cfg}
	}
	return s.runBatch(ctx, items)
}

// HandleBatch serves several wire requests, each with its own overrides.
func (s *ConsensusService) HandleBatch(ctx context.Context, reqs []ConsensusRequest) ([]ConsensusReply, error) {
	items := make([]batchItem, len(reqs))
	for i := range reqs {
		group := reqs[i].Group()
		if group.ID == "" {
			group.ID = uuid.NewString()
		}
		cfg, err := reqs[i].Alignment.Apply(s.defaults)
		items[i] = batchItem{group: group, cfg: cfg, err: err}
	}
	results, err := s.runBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	replies := make([]ConsensusReply, len(results))
	for i, r := range results {
		replies[i] = ReplyOf(r)
	}
	return replies, nil
}

// batchItem is one group with its resolved config. A non-nil err skips the
// computation and is reported as the group's result.
type batchItem struct {
	group ReadGroup
	cfg   binding.AlignmentConfig
	err   error
}

func (s *ConsensusService) runBatch(ctx context.Context, items []batchItem) ([]GroupResult, error) {
	s.metrics.RecordBatch(len(items))

	results := make([]GroupResult, len(items))
	tasks := make([]*Task, len(items))
	for i := range items {
		item := items[i]
		if item.err != nil {
			results[i] = GroupResult{GroupID: item.group.ID, Err: item.err}
			continue
		}
		tasks[i] = NewTask(ctx, item.group.ID, func(ctx context.Context) (interface{}, error) {
			return s.compute(ctx, item.group, item.cfg), nil
		})
		if err := s.pool.SubmitContext(ctx, tasks[i]); err != nil {
			return nil, fmt.Errorf("submit group %d: %w", i, err)
		}
	}
	s.updatePoolMetrics()

	for i, task := range tasks {
		if task == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case tr := <-task.Done():
			if res, ok := tr.Data.(GroupResult); ok && tr.Error == nil {
				results[i] = res
			} else {
				results[i] = GroupResult{GroupID: items[i].group.ID, Err: tr.Error, Duration: tr.Duration}
			}
		}
	}
	s.updatePoolMetrics()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Handle serves one wire request. req is not modified; a missing RequestID is
// generated for the reply only.
func (s *ConsensusService) Handle(ctx context.Context, req *ConsensusRequest) ConsensusReply {
	group := req.Group()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	cfg, err := req.Alignment.Apply(s.defaults)
	if err != nil {
		return ReplyOf(GroupResult{GroupID: group.ID, Err: err})
	}
	return ReplyOf(s.Compute(ctx, group, cfg))
}

func (s *ConsensusService) compute(ctx context.Context, group ReadGroup, cfg binding.AlignmentConfig) GroupResult {
	_, span := tracer.Start(ctx, "consensus.Compute",
		trace.WithAttributes(
			attribute.String("poa.group_id", group.ID),
			attribute.Int("poa.records", len(group.Sequences)),
			attribute.Bool("poa.weighted", group.Qualities != nil),
			attribute.String("poa.mode", cfg.Mode.String()),
		),
	)
	defer span.End()

	start := time.Now()
	res, cached, err := s.run(group, cfg)
	dur := time.Since(start)

	span.SetAttributes(attribute.Bool("poa.cached", cached))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("consensus failed",
			slog.String("group_id", group.ID),
			slog.Int("records", len(group.Sequences)),
			slog.String("reason", ReasonOf(err)),
			slog.String("error", err.Error()),
		)
	} else {
		span.SetAttributes(
			attribute.Int("poa.consensus_len", len(res.Consensus)),
			attribute.Bool("poa.truncated", res.Truncated),
		)
	}
	s.metrics.RecordConsensus(reasonLabel(err), len(group.Sequences), res.Truncated, dur)

	return GroupResult{
		GroupID:   group.ID,
		Consensus: res.Consensus,
		Truncated: res.Truncated,
		Err:       err,
		Duration:  dur,
	}
}

// run frames the group, consults the cache and calls the binding.
func (s *ConsensusService) run(group ReadGroup, cfg binding.AlignmentConfig) (binding.Result, bool, error) {
	seqs, quals, err := group.records()
	if err != nil {
		return binding.Result{}, false, err
	}

	var key []byte
	if s.cache != nil && cfg.Validate() == nil {
		key = cache.Key(cfg, s.binding.Strategy(), seqs, quals)
		hit, ok, err := s.cache.Get(key)
		if err != nil {
			s.logger.Warn("cache lookup failed", slog.String("error", err.Error()))
		}
		s.metrics.RecordCache(ok)
		if ok {
			return hit, true, nil
		}
	}

	res, err := s.binding.ComputeConsensus(seqs, quals, cfg)
	if err != nil {
		return binding.Result{}, false, err
	}

	if key != nil {
		if err := s.cache.Put(key, res); err != nil {
			s.logger.Warn("cache store failed", slog.String("error", err.Error()))
		}
	}
	return res, false, nil
}

func (s *ConsensusService) updatePoolMetrics() {
	stats := s.pool.GetStats()
	s.metrics.UpdateWorkerPool(int(stats.Active), stats.Pending)
}

func reasonLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return ReasonOf(err)
}
