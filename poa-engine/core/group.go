package core

import (
	"errors"
	"time"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

// ReadGroup is a set of reads that share one consensus. Sequences and
// Qualities hold raw residues without the sentinel. Qualities is nil when the
// group is unweighted.
type ReadGroup struct {
	ID        string
	Sequences [][]byte
	Qualities [][]byte
}

// GroupResult is the outcome for one ReadGroup.
type GroupResult struct {
	GroupID   string
	Consensus string
	Truncated bool
	Err       error
	Duration  time.Duration
}

// records frames the group as sentinel-terminated binding records.
func (g *ReadGroup) records() ([]binding.Sequence, []binding.Quality, error) {
	seqs := make([]binding.Sequence, len(g.Sequences))
	for i, s := range g.Sequences {
		seq, err := binding.NewSequence(s)
		if err != nil {
			return nil, nil, indexed(err, binding.RecordSequence, i)
		}
		seqs[i] = seq
	}
	if g.Qualities == nil {
		return seqs, nil, nil
	}
	quals := make([]binding.Quality, len(g.Qualities))
	for i, q := range g.Qualities {
		qual, err := binding.NewQuality(q)
		if err != nil {
			return nil, nil, indexed(err, binding.RecordQuality, i)
		}
		quals[i] = qual
	}
	return seqs, quals, nil
}

// indexed attaches the record position to a framing error.
func indexed(err error, kind binding.RecordKind, i int) error {
	var pe *binding.PreconditionError
	if errors.As(err, &pe) {
		cp := *pe
		cp.Record = kind
		cp.Index = i
		return &cp
	}
	return err
}
