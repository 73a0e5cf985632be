// Package bindingtest provides an in-process Engine for tests of code built on
// package binding. It performs no alignment.
package bindingtest

import (
	"bytes"
	"sync"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

// Engine is a scripted binding.Engine.
//
// By default it answers with the residues of the first sequence. Set Output to
// return a fixed consensus, Fail to return an error, or Func for full control.
type Engine struct {
	Output []byte
	Fail   error
	Func   func(call *binding.Call) ([]byte, error)

	mu    sync.Mutex
	calls []Recorded
}

// Recorded is a snapshot of one engine invocation.
type Recorded struct {
	Sequences [][]byte
	Qualities [][]byte
	Config    binding.AlignmentConfig
	Bounded   bool
	Capacity  int
}

// Calls returns the number of engine invocations so far.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Last returns the most recent invocation.
func (e *Engine) Last() (Recorded, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return Recorded{}, false
	}
	return e.calls[len(e.calls)-1], true
}

func (e *Engine) record(call *binding.Call, bounded bool, capacity int) {
	r := Recorded{Config: call.Config, Bounded: bounded, Capacity: capacity}
	for _, s := range call.Sequences {
		r.Sequences = append(r.Sequences, bytes.Clone(s))
	}
	if call.Qualities != nil {
		r.Qualities = make([][]byte, 0, len(call.Qualities))
		for _, q := range call.Qualities {
			r.Qualities = append(r.Qualities, bytes.Clone(q))
		}
	}
	e.mu.Lock()
	e.calls = append(e.calls, r)
	e.mu.Unlock()
}

func (e *Engine) answer(call *binding.Call) ([]byte, error) {
	switch {
	case e.Func != nil:
		return e.Func(call)
	case e.Fail != nil:
		return nil, e.Fail
	case e.Output != nil:
		return bytes.Clone(e.Output), nil
	case len(call.Sequences) > 0:
		return bytes.Clone(call.Sequences[0].Residues()), nil
	}
	return []byte{}, nil
}

// ConsensusOwned implements binding.Engine.
func (e *Engine) ConsensusOwned(call *binding.Call) ([]byte, error) {
	e.record(call, false, 0)
	return e.answer(call)
}

// ConsensusBounded implements binding.Engine.
func (e *Engine) ConsensusBounded(call *binding.Call, dst []byte) (int, error) {
	e.record(call, true, len(dst))
	out, err := e.answer(call)
	if err != nil {
		return 0, err
	}
	copy(dst, out)
	return len(out), nil
}
