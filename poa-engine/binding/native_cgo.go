//go:build cgo && spoa

package binding

/*
#cgo CFLAGS: -I${SRCDIR}/../include
#cgo linux LDFLAGS: -L${SRCDIR}/../../target/release -lspoa_shim -lspoa -lstdc++ -lm
#cgo darwin LDFLAGS: -L${SRCDIR}/../../target/release -lspoa_shim -lspoa -lc++

#include <stdlib.h>
#include <string.h>
#include "poa_func.h"
*/
import "C"

import (
	"fmt"
	"math"
	"unsafe"
)

// NativeEngine calls the SPOA shim through cgo. It keeps no state.
type NativeEngine struct{}

// NewNativeEngine returns the cgo-backed engine.
func NewNativeEngine() Engine { return NativeEngine{} }

// NativeAvailable reports whether the native engine is linked into this binary.
func NativeAvailable() bool { return true }

// cRecords is a C-heap copy of a record collection plus the flat pointer array
// addressing it. C memory never moves, so every address stays valid until free.
type cRecords struct {
	array **C.char
	bufs  []unsafe.Pointer
}

func newCRecords[T ~[]byte](records []T) *cRecords {
	r := &cRecords{bufs: make([]unsafe.Pointer, 0, len(records))}
	if len(records) == 0 {
		return r
	}
	size := C.size_t(len(records)) * C.size_t(unsafe.Sizeof((*C.char)(nil)))
	r.array = (**C.char)(C.malloc(size))
	slots := unsafe.Slice(r.array, len(records))
	for i, rec := range records {
		buf := C.CBytes([]byte(rec))
		r.bufs = append(r.bufs, buf)
		slots[i] = (*C.char)(buf)
	}
	return r
}

// free releases every allocation exactly once; later calls are no-ops.
func (r *cRecords) free() {
	for _, b := range r.bufs {
		C.free(b)
	}
	r.bufs = nil
	if r.array != nil {
		C.free(unsafe.Pointer(r.array))
		r.array = nil
	}
}

// scores is the argument tail shared by both conventions.
type scores struct {
	mode, match, mismatch, gapOpen, gapExtend, gap2Open, gap2Extend C.int
}

func scoresOf(cfg AlignmentConfig) scores {
	second := cfg.SecondTier()
	return scores{
		mode:       C.int(cfg.Mode),
		match:      C.int(cfg.Match),
		mismatch:   C.int(cfg.Mismatch),
		gapOpen:    C.int(cfg.Gap.Open),
		gapExtend:  C.int(cfg.Gap.Extend),
		gap2Open:   C.int(second.Open),
		gap2Extend: C.int(second.Extend),
	}
}

func checkArity(call *Call) error {
	if call.Records() > math.MaxInt32 {
		return &EngineError{Records: call.Records(), Detail: "record count exceeds C int"}
	}
	return nil
}

// ConsensusOwned implements Engine.
func (NativeEngine) ConsensusOwned(call *Call) ([]byte, error) {
	if err := checkArity(call); err != nil {
		return nil, err
	}

	seqs := newCRecords(call.Sequences)
	defer seqs.free()

	quals := newCRecords(call.weights())
	defer quals.free()

	s := scoresOf(call.Config)
	out := C.poa_func(seqs.array, quals.array, C.int(call.Records()),
		s.mode, s.match, s.mismatch, s.gapOpen, s.gapExtend, s.gap2Open, s.gap2Extend)
	if out == nil {
		return nil, &EngineError{Records: call.Records(), Detail: "null consensus"}
	}
	defer C.poa_free(out)

	n := C.strlen(out)
	if n > math.MaxInt32 {
		return nil, &EngineError{Records: call.Records(), Detail: fmt.Sprintf("consensus length %d", n)}
	}
	return C.GoBytes(unsafe.Pointer(out), C.int(n)), nil
}

// ConsensusBounded implements Engine.
func (NativeEngine) ConsensusBounded(call *Call, dst []byte) (int, error) {
	if err := checkArity(call); err != nil {
		return 0, err
	}
	if len(dst) == 0 || len(dst) > math.MaxInt32 {
		return 0, ErrInvalidCapacity
	}

	seqs := newCRecords(call.Sequences)
	defer seqs.free()

	quals := newCRecords(call.weights())
	defer quals.free()

	s := scoresOf(call.Config)
	n := C.poa_func_bounded(seqs.array, quals.array, C.int(call.Records()),
		(*C.char)(unsafe.Pointer(&dst[0])), C.int(len(dst)),
		s.mode, s.match, s.mismatch, s.gapOpen, s.gapExtend, s.gap2Open, s.gap2Extend)
	return int(n), nil
}
