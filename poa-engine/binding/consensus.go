package binding

import (
	"fmt"
	"log/slog"
)

// Binding turns validated sequences into a consensus through one foreign call.
// A Binding holds no per-call state and is safe for concurrent use as long
// as its Engine is.
type Binding struct {
	engine   Engine
	strategy ResultStrategy
	logger   *slog.Logger
}

// Option configures a Binding.
type Option func(*Binding)

// WithStrategy selects the result calling convention. Default is OwnedResult.
func WithStrategy(s ResultStrategy) Option {
	return func(b *Binding) { b.strategy = s }
}

// WithLogger sets the logger used for rejected requests.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binding) { b.logger = l }
}

// New creates a Binding over engine.
func New(engine Engine, opts ...Option) (*Binding, error) {
	b := &Binding{
		engine:   engine,
		strategy: OwnedResult{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if engine == nil {
		return nil, ErrEngineUnavailable
	}
	if bounded, ok := b.strategy.(BoundedResult); ok && bounded.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return b, nil
}

// Strategy returns the configured result strategy.
func (b *Binding) Strategy() ResultStrategy { return b.strategy }

// ComputeConsensus validates the request and, unless seqs is empty, invokes the
// engine exactly once.
//
// quals may be nil. When present it must hold one record per sequence. Every
// record must end with the sentinel and contain no other zero byte. Violations
// are returned as *PreconditionError before the engine is reached.
//
// The returned consensus is copied out of any engine buffer and stays valid
// after seqs and quals are discarded.
func (b *Binding) ComputeConsensus(seqs []Sequence, quals []Quality, cfg AlignmentConfig) (Result, error) {
	call := &Call{Sequences: seqs, Qualities: quals, Config: cfg}
	if err := validate(call); err != nil {
		b.logger.Debug("consensus request rejected", slog.String("error", err.Error()))
		return Result{}, err
	}
	if len(seqs) == 0 {
		return Result{}, nil
	}

	res, err := b.strategy.collect(b.engine, call)
	if err != nil {
		return Result{}, err
	}
	if res.ReportedLen == 0 && call.hasPayload() {
		return Result{}, &EngineError{Records: call.Records(), Detail: "empty consensus for non-empty input"}
	}
	return res, nil
}

func validate(call *Call) error {
	if err := call.Config.Validate(); err != nil {
		return err
	}
	if call.Qualities != nil && len(call.Qualities) != len(call.Sequences) {
		return &PreconditionError{
			Err:    ErrCountMismatch,
			Index:  -1,
			Detail: fmt.Sprintf("sequences=%d qualities=%d", len(call.Sequences), len(call.Qualities)),
		}
	}
	for i, s := range call.Sequences {
		if err := checkRecord(RecordSequence, i, s); err != nil {
			return err
		}
	}
	for i, q := range call.Qualities {
		if err := checkRecord(RecordQuality, i, q); err != nil {
			return err
		}
	}
	return nil
}
