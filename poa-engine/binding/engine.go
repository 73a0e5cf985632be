package binding

// Call is one validated request for the foreign engine.
// Every record is sentinel-terminated; Qualities is nil or index-aligned with Sequences.
type Call struct {
	Sequences []Sequence
	Qualities []Quality
	Config    AlignmentConfig
}

// Records returns the number of input records.
func (c *Call) Records() int { return len(c.Sequences) }

// weights returns the quality records to hand the engine. The native engine
// dereferences every quality slot, so an unweighted call gets uniform records.
func (c *Call) weights() []Quality {
	if c.Qualities != nil {
		return c.Qualities
	}
	return UniformQualities(c.Sequences)
}

// hasPayload reports whether at least one sequence carries residues.
func (c *Call) hasPayload() bool {
	for _, s := range c.Sequences {
		if len(s) > 1 {
			return true
		}
	}
	return false
}

// Engine is the foreign alignment engine. Implementations must not retain
// any record after returning and must not modify them.
type Engine interface {
	// ConsensusOwned runs the engine-allocates convention. The returned slice
	// must be owned by the Go heap; any engine buffer is already released.
	ConsensusOwned(call *Call) ([]byte, error)

	// ConsensusBounded runs the caller-buffer convention. It writes at most
	// len(dst) bytes and returns the consensus length reported by the engine,
	// which may exceed len(dst).
	ConsensusBounded(call *Call, dst []byte) (int, error)
}

// ResultStrategy selects the calling convention used for the result.
type ResultStrategy interface {
	collect(e Engine, call *Call) (Result, error)
	String() string
}

// OwnedResult lets the engine allocate the consensus, which is copied and released.
type OwnedResult struct{}

func (OwnedResult) String() string { return "owned" }

func (OwnedResult) collect(e Engine, call *Call) (Result, error) {
	out, err := e.ConsensusOwned(call)
	if err != nil {
		return Result{}, err
	}
	if out == nil {
		return Result{}, &EngineError{Records: call.Records(), Detail: "null consensus"}
	}
	return Result{Consensus: string(out), ReportedLen: len(out)}, nil
}

// BoundedResult writes into a caller buffer of Capacity bytes.
// Longer consensus output is truncated to Capacity; shorter output is trimmed.
type BoundedResult struct {
	Capacity int
}

func (b BoundedResult) String() string { return "bounded" }

func (b BoundedResult) collect(e Engine, call *Call) (Result, error) {
	buf := make([]byte, b.Capacity)
	n, err := e.ConsensusBounded(call, buf)
	if err != nil {
		return Result{}, err
	}
	if n < 0 {
		return Result{}, &EngineError{Records: call.Records(), Detail: "negative consensus length"}
	}
	written := n
	if written > len(buf) {
		written = len(buf)
	}
	return Result{
		Consensus:   string(buf[:written]),
		Truncated:   n > len(buf),
		ReportedLen: n,
	}, nil
}

// Result is an owned, immutable consensus.
type Result struct {
	Consensus string
	// Truncated is set when a bounded buffer was shorter than the engine output.
	Truncated bool
	// ReportedLen is the consensus length reported by the engine.
	ReportedLen int
}

// Bytes returns a fresh copy of the consensus.
func (r Result) Bytes() []byte { return []byte(r.Consensus) }

// Empty reports whether the consensus has no residues.
func (r Result) Empty() bool { return len(r.Consensus) == 0 }
