package binding

import (
	"bytes"
	"fmt"
)

// Sentinel terminates every record handed to the engine.
const Sentinel byte = 0

// Sequence is a sentinel-terminated run of residues (DNA bases or amino-acid codes).
// Any byte value 1-255 is passed through; no alphabet check is made.
type Sequence []byte

// Quality is a sentinel-terminated run of per-residue weights, index-aligned with a Sequence.
type Quality []byte

// RecordKind names the collection a record belongs to.
type RecordKind int

const (
	RecordNone RecordKind = iota
	RecordSequence
	RecordQuality
)

func (k RecordKind) String() string {
	switch k {
	case RecordNone:
		return "none"
	case RecordSequence:
		return "sequence"
	case RecordQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// UniformWeight fills the quality records of an unweighted request. The engine
// reads a quality byte as weight byte-33, so '"' is weight 1.
const UniformWeight byte = '"'

// UniformQualities returns one sentinel-terminated quality record per sequence,
// as long as its residues and filled with UniformWeight.
func UniformQualities(seqs []Sequence) []Quality {
	out := make([]Quality, len(seqs))
	for i, s := range seqs {
		n := len(payload(s))
		q := make(Quality, n+1)
		for j := 0; j < n; j++ {
			q[j] = UniformWeight
		}
		q[n] = Sentinel
		out[i] = q
	}
	return out
}

// NewSequence copies residues and appends the sentinel.
// Returns ErrEmbeddedSentinel if residues already contain a zero byte.
func NewSequence(residues []byte) (Sequence, error) {
	b, err := terminate(RecordSequence, residues)
	return Sequence(b), err
}

// NewQuality copies weights and appends the sentinel.
func NewQuality(weights []byte) (Quality, error) {
	b, err := terminate(RecordQuality, weights)
	return Quality(b), err
}

// Residues returns the payload without the sentinel. The slice aliases s.
func (s Sequence) Residues() []byte { return payload(s) }

// Weights returns the payload without the sentinel. The slice aliases q.
func (q Quality) Weights() []byte { return payload(q) }

func (s Sequence) String() string { return string(payload(s)) }

func terminate(kind RecordKind, raw []byte) ([]byte, error) {
	if i := bytes.IndexByte(raw, Sentinel); i >= 0 {
		return nil, &PreconditionError{
			Err:    ErrEmbeddedSentinel,
			Record: kind,
			Index:  -1,
			Detail: fmt.Sprintf("zero byte at offset %d", i),
		}
	}
	out := make([]byte, len(raw)+1)
	copy(out, raw)
	out[len(raw)] = Sentinel
	return out, nil
}

func payload(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == Sentinel {
		return b[:n-1]
	}
	return b
}

// checkRecord enforces the framing invariant: the sentinel is the last byte and nowhere earlier.
func checkRecord(kind RecordKind, index int, b []byte) error {
	n := len(b)
	if n == 0 || b[n-1] != Sentinel {
		return &PreconditionError{Err: ErrUnterminated, Record: kind, Index: index}
	}
	if i := bytes.IndexByte(b[:n-1], Sentinel); i >= 0 {
		return &PreconditionError{
			Err:    ErrEmbeddedSentinel,
			Record: kind,
			Index:  index,
			Detail: fmt.Sprintf("zero byte at offset %d", i),
		}
	}
	return nil
}
