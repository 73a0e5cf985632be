package binding_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding/bindingtest"
)

func mustSequences(t testing.TB, raw ...string) []binding.Sequence {
	t.Helper()
	out := make([]binding.Sequence, 0, len(raw))
	for _, r := range raw {
		s, err := binding.NewSequence([]byte(r))
		if err != nil {
			t.Fatalf("NewSequence(%q) failed: %v", r, err)
		}
		out = append(out, s)
	}
	return out
}

func mustQualities(t testing.TB, raw ...string) []binding.Quality {
	t.Helper()
	out := make([]binding.Quality, 0, len(raw))
	for _, r := range raw {
		q, err := binding.NewQuality([]byte(r))
		if err != nil {
			t.Fatalf("NewQuality(%q) failed: %v", r, err)
		}
		out = append(out, q)
	}
	return out
}

func newBinding(t testing.TB, engine binding.Engine, opts ...binding.Option) *binding.Binding {
	t.Helper()
	b, err := binding.New(engine, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestComputeConsensus_EmptyInput(t *testing.T) {
	engine := &bindingtest.Engine{}
	b := newBinding(t, engine)

	res, err := b.ComputeConsensus(nil, nil, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !res.Empty() {
		t.Errorf("Expected empty consensus, got %q", res.Consensus)
	}
	if engine.Calls() != 0 {
		t.Errorf("Engine must not be invoked for empty input, got %d calls", engine.Calls())
	}

	res, err = b.ComputeConsensus([]binding.Sequence{}, []binding.Quality{}, binding.DefaultAlignmentConfig())
	if err != nil || !res.Empty() {
		t.Errorf("Expected empty consensus without error, got %q, %v", res.Consensus, err)
	}
	if engine.Calls() != 0 {
		t.Errorf("Engine must not be invoked for empty input, got %d calls", engine.Calls())
	}
}

func TestComputeConsensus_Preconditions(t *testing.T) {
	good := []byte("ACGT\x00")

	tests := []struct {
		name   string
		seqs   []binding.Sequence
		quals  []binding.Quality
		mode   binding.Mode
		want   error
		record binding.RecordKind
		index  int
	}{
		{
			name:   "sequence without sentinel",
			seqs:   []binding.Sequence{good, binding.Sequence("ACGT")},
			mode:   binding.ModeGlobal,
			want:   binding.ErrUnterminated,
			record: binding.RecordSequence,
			index:  1,
		},
		{
			name:   "zero-length sequence",
			seqs:   []binding.Sequence{{}},
			mode:   binding.ModeGlobal,
			want:   binding.ErrUnterminated,
			record: binding.RecordSequence,
			index:  0,
		},
		{
			name:   "embedded sentinel",
			seqs:   []binding.Sequence{binding.Sequence("AC\x00GT\x00")},
			mode:   binding.ModeLocal,
			want:   binding.ErrEmbeddedSentinel,
			record: binding.RecordSequence,
			index:  0,
		},
		{
			name:   "quality without sentinel",
			seqs:   []binding.Sequence{good, good},
			quals:  []binding.Quality{binding.Quality("!!!!\x00"), binding.Quality("!!!!")},
			mode:   binding.ModeGlobal,
			want:   binding.ErrUnterminated,
			record: binding.RecordQuality,
			index:  1,
		},
		{
			name:  "quality count mismatch",
			seqs:  []binding.Sequence{good, good},
			quals: []binding.Quality{binding.Quality("!!!!\x00")},
			mode:  binding.ModeGlobal,
			want:  binding.ErrCountMismatch,
			index: -1,
		},
		{
			name:  "empty non-nil qualities",
			seqs:  []binding.Sequence{good},
			quals: []binding.Quality{},
			mode:  binding.ModeGlobal,
			want:  binding.ErrCountMismatch,
			index: -1,
		},
		{
			name:  "mode above range",
			seqs:  []binding.Sequence{good},
			mode:  binding.Mode(3),
			want:  binding.ErrInvalidMode,
			index: -1,
		},
		{
			name:  "negative mode",
			seqs:  []binding.Sequence{good},
			mode:  binding.Mode(-1),
			want:  binding.ErrInvalidMode,
			index: -1,
		},
		{
			name:  "invalid mode with empty input",
			mode:  binding.Mode(7),
			want:  binding.ErrInvalidMode,
			index: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &bindingtest.Engine{}
			b := newBinding(t, engine)

			cfg := binding.DefaultAlignmentConfig()
			cfg.Mode = tt.mode

			_, err := b.ComputeConsensus(tt.seqs, tt.quals, cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if !binding.IsPrecondition(err) {
				t.Errorf("Expected a precondition error, got %T", err)
			}

			var pe *binding.PreconditionError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected *PreconditionError, got %T", err)
			}
			if pe.Index != tt.index {
				t.Errorf("Expected index %d, got %d", tt.index, pe.Index)
			}
			if tt.record != binding.RecordNone && pe.Record != tt.record {
				t.Errorf("Expected record kind %s, got %s", tt.record, pe.Record)
			}
			if engine.Calls() != 0 {
				t.Errorf("Engine must not be reached, got %d calls", engine.Calls())
			}
		})
	}
}

func TestComputeConsensus_PassesThroughVerbatim(t *testing.T) {
	engine := &bindingtest.Engine{Output: []byte("ATTGCCCATT")}
	b := newBinding(t, engine)

	seqs := mustSequences(t, "ATTGCCCATT", "ATTGCCCGTT", "ATTGCCCATT", "ATTGCCCGTT")
	quals := mustQualities(t, "IIIIIIIIII", "IIIIIII!II", "IIIIIIIIII", "IIIIIII!II")
	cfg := binding.AlignmentConfig{
		Mode:      binding.ModeGapped,
		Match:     127,
		Mismatch:  -128,
		Gap:       binding.GapPenalty{Open: -8, Extend: -6},
		SecondGap: &binding.GapPenalty{Open: -10, Extend: -2},
	}

	res, err := b.ComputeConsensus(seqs, quals, cfg)
	if err != nil {
		t.Fatalf("ComputeConsensus failed: %v", err)
	}
	if res.Consensus != "ATTGCCCATT" {
		t.Errorf("Expected ATTGCCCATT, got %s", res.Consensus)
	}

	call, ok := engine.Last()
	if !ok {
		t.Fatal("Engine was not invoked")
	}
	if engine.Calls() != 1 {
		t.Errorf("Expected exactly one engine call, got %d", engine.Calls())
	}
	if call.Config.Match != 127 || call.Config.Mismatch != -128 {
		t.Errorf("Scores were not passed verbatim: %+v", call.Config)
	}
	if call.Config.SecondTier() != (binding.GapPenalty{Open: -10, Extend: -2}) {
		t.Errorf("Second gap tier lost: %+v", call.Config.SecondTier())
	}
	if len(call.Qualities) != len(seqs) {
		t.Fatalf("Expected %d quality records, got %d", len(seqs), len(call.Qualities))
	}
	for i := range seqs {
		if !bytes.Equal(call.Sequences[i], seqs[i]) {
			t.Errorf("Sequence %d altered: %q", i, call.Sequences[i])
		}
		if !bytes.Equal(call.Qualities[i], quals[i]) {
			t.Errorf("Quality %d altered: %q", i, call.Qualities[i])
		}
	}
}

func TestComputeConsensus_NoQualities(t *testing.T) {
	engine := &bindingtest.Engine{}
	b := newBinding(t, engine)

	_, err := b.ComputeConsensus(mustSequences(t, "ACGT", "ACGA"), nil, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatalf("ComputeConsensus failed: %v", err)
	}
	call, _ := engine.Last()
	if call.Qualities != nil {
		t.Errorf("Expected nil qualities at the boundary, got %d records", len(call.Qualities))
	}
	if call.Config.SecondTier() != call.Config.Gap {
		t.Errorf("Single affine model should repeat the primary tier, got %+v", call.Config.SecondTier())
	}
}

func TestComputeConsensus_Idempotent(t *testing.T) {
	b := newBinding(t, &bindingtest.Engine{})
	seqs := mustSequences(t, "AATGCCCGTT", "AATGCCGTT")
	cfg := binding.DefaultAlignmentConfig()

	first, err := b.ComputeConsensus(seqs, nil, cfg)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := b.ComputeConsensus(seqs, nil, cfg)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
}

func TestComputeConsensus_ResultOutlivesEngineBuffer(t *testing.T) {
	shared := []byte("AATGCCCGTT")
	engine := &bindingtest.Engine{Func: func(*binding.Call) ([]byte, error) {
		return shared, nil
	}}
	b := newBinding(t, engine)

	seqs := mustSequences(t, "AATGCCCGTT")
	res, err := b.ComputeConsensus(seqs, nil, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatalf("ComputeConsensus failed: %v", err)
	}

	// Engine reuses its buffer and the caller drops its inputs.
	copy(shared, "XXXXXXXXXX")
	for i := range seqs[0] {
		seqs[0][i] = 'N'
	}

	if res.Consensus != "AATGCCCGTT" {
		t.Errorf("Result changed after engine buffer reuse: %q", res.Consensus)
	}
	out := res.Bytes()
	out[0] = 'Z'
	if res.Consensus != "AATGCCCGTT" {
		t.Errorf("Bytes must return a copy, result is now %q", res.Consensus)
	}
}

func TestComputeConsensus_DoesNotMutateInputs(t *testing.T) {
	engine := &bindingtest.Engine{Func: func(call *binding.Call) ([]byte, error) {
		return []byte("ACGT"), nil
	}}
	b := newBinding(t, engine)

	seqs := mustSequences(t, "ACGT", "ACCT")
	quals := mustQualities(t, "!!!!", "####")
	before := make([][]byte, 0, 4)
	for _, s := range seqs {
		before = append(before, bytes.Clone(s))
	}
	for _, q := range quals {
		before = append(before, bytes.Clone(q))
	}

	if _, err := b.ComputeConsensus(seqs, quals, binding.DefaultAlignmentConfig()); err != nil {
		t.Fatalf("ComputeConsensus failed: %v", err)
	}

	after := append(append([][]byte{}, toBytes(seqs)...), toBytesQ(quals)...)
	for i := range before {
		if !bytes.Equal(before[i], after[i]) {
			t.Errorf("Record %d mutated: %q -> %q", i, before[i], after[i])
		}
	}
}

func toBytes(seqs []binding.Sequence) [][]byte {
	out := make([][]byte, len(seqs))
	for i, s := range seqs {
		out[i] = s
	}
	return out
}

func toBytesQ(quals []binding.Quality) [][]byte {
	out := make([][]byte, len(quals))
	for i, q := range quals {
		out[i] = q
	}
	return out
}

func TestComputeConsensus_BoundedTruncation(t *testing.T) {
	seqs := mustSequences(t, "ATTGCCCGTT", "AATGCCGTT", "AATGCCCGAT")

	tests := []struct {
		name      string
		capacity  int
		want      string
		truncated bool
	}{
		{"shorter buffer truncates", 4, "AATG", true},
		{"exact buffer", 10, "AATGCCCGTT", false},
		{"longer buffer trims", 20, "AATGCCCGTT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &bindingtest.Engine{Output: []byte("AATGCCCGTT")}
			b := newBinding(t, engine, binding.WithStrategy(binding.BoundedResult{Capacity: tt.capacity}))

			res, err := b.ComputeConsensus(seqs, nil, binding.DefaultAlignmentConfig())
			if err != nil {
				t.Fatalf("Truncation must not be an error: %v", err)
			}
			if res.Consensus != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, res.Consensus)
			}
			if len(res.Consensus) > tt.capacity {
				t.Errorf("Result overran the bound: %d > %d", len(res.Consensus), tt.capacity)
			}
			if res.Truncated != tt.truncated {
				t.Errorf("Expected truncated=%v, got %v", tt.truncated, res.Truncated)
			}
			if res.ReportedLen != 10 {
				t.Errorf("Expected reported length 10, got %d", res.ReportedLen)
			}

			call, _ := engine.Last()
			if !call.Bounded || call.Capacity != tt.capacity {
				t.Errorf("Expected bounded call with capacity %d, got %+v", tt.capacity, call)
			}
		})
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := binding.New(&bindingtest.Engine{}, binding.WithStrategy(binding.BoundedResult{Capacity: c}))
		if !errors.Is(err, binding.ErrInvalidCapacity) {
			t.Errorf("Capacity %d: expected ErrInvalidCapacity, got %v", c, err)
		}
	}
	if _, err := binding.New(nil); !errors.Is(err, binding.ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable for nil engine, got %v", err)
	}
}

func TestComputeConsensus_EngineFailures(t *testing.T) {
	seqs := mustSequences(t, "ACGT", "ACGA")
	boom := errors.New("engine exploded")

	tests := []struct {
		name   string
		engine *bindingtest.Engine
		want   error
	}{
		{"engine error propagates", &bindingtest.Engine{Fail: boom}, boom},
		{"null result", &bindingtest.Engine{Func: func(*binding.Call) ([]byte, error) { return nil, nil }}, binding.ErrEngineFailure},
		{"empty result for non-empty input", &bindingtest.Engine{Output: []byte{}}, binding.ErrEngineFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBinding(t, tt.engine)
			res, err := b.ComputeConsensus(seqs, nil, binding.DefaultAlignmentConfig())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if binding.IsPrecondition(err) {
				t.Error("Engine failure must not be reported as a precondition error")
			}
			if !res.Empty() {
				t.Errorf("Failed request must not return a consensus, got %q", res.Consensus)
			}
			if tt.engine.Calls() != 1 {
				t.Errorf("Expected exactly one engine call (no retry), got %d", tt.engine.Calls())
			}
		})
	}
}

func TestComputeConsensus_EmptyPayloadsAllowEmptyResult(t *testing.T) {
	engine := &bindingtest.Engine{Output: []byte{}}
	b := newBinding(t, engine)

	res, err := b.ComputeConsensus(mustSequences(t, "", ""), nil, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatalf("Expected no error for empty payloads, got %v", err)
	}
	if !res.Empty() {
		t.Errorf("Expected empty consensus, got %q", res.Consensus)
	}
	if engine.Calls() != 1 {
		t.Errorf("Expected one engine call, got %d", engine.Calls())
	}
}

func TestNativeEngineUnavailable(t *testing.T) {
	if binding.NativeAvailable() {
		t.Skip("native engine is linked")
	}
	b := newBinding(t, binding.NewNativeEngine())
	_, err := b.ComputeConsensus(mustSequences(t, "ACGT"), nil, binding.DefaultAlignmentConfig())
	if !errors.Is(err, binding.ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable, got %v", err)
	}
}

func TestComputeConsensus_Concurrent(t *testing.T) {
	engine := &bindingtest.Engine{}
	b := newBinding(t, engine)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("ACGT%d", i)
			seqs := []binding.Sequence{binding.Sequence(want + "\x00")}
			res, err := b.ComputeConsensus(seqs, nil, binding.DefaultAlignmentConfig())
			if err != nil {
				errs <- err
				return
			}
			if res.Consensus != want {
				errs <- fmt.Errorf("goroutine %d: expected %s, got %s", i, want, res.Consensus)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if engine.Calls() != 64 {
		t.Errorf("Expected 64 engine calls, got %d", engine.Calls())
	}
}

func BenchmarkComputeConsensus(b *testing.B) {
	bnd := newBinding(b, &bindingtest.Engine{Output: []byte("AATGCCCGTT")})
	seqs := mustSequences(b, "ATTGCCCGTT", "AATGCCGTT", "AATGCCCGAT", "AACGCCCGTC", "AGTGCTCGTT", "AATGCTCGTT")
	cfg := binding.DefaultAlignmentConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = bnd.ComputeConsensus(seqs, nil, cfg)
	}
}
