package data

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

// Conversion errors.
var (
	ErrEmptyBatch   = errors.New("empty batch")
	ErrEmptyGroup   = errors.New("group has no sequences")
	ErrMixedQuality = errors.New("group mixes weighted and unweighted reads")
	ErrNullValue    = errors.New("unexpected null value")
)

// Converter builds and reads request and result batches.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{allocator: memory.DefaultAllocator}
}

// NewConverterWithAllocator creates a Converter that allocates from mem.
func NewConverterWithAllocator(mem memory.Allocator) *Converter {
	return &Converter{allocator: mem}
}

// GroupsToRecord flattens groups into a request batch, one row per read.
// When cfg is non-nil it is attached as schema metadata.
func (c *Converter) GroupsToRecord(groups []core.ReadGroup, cfg *binding.AlignmentConfig) (arrow.Record, error) {
	if len(groups) == 0 {
		return nil, ErrEmptyBatch
	}

	schema := ReadSchema()
	if cfg != nil {
		schema = ReadSchemaWithConfig(*cfg)
	}

	builder := array.NewRecordBuilder(c.allocator, schema)
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	seqBuilder := builder.Field(1).(*array.BinaryBuilder)
	qualBuilder := builder.Field(2).(*array.BinaryBuilder)

	for _, g := range groups {
		if len(g.Sequences) == 0 {
			return nil, fmt.Errorf("group %q: %w", g.ID, ErrEmptyGroup)
		}
		if g.Qualities != nil && len(g.Qualities) != len(g.Sequences) {
			return nil, fmt.Errorf("group %q: %w", g.ID, binding.ErrCountMismatch)
		}
		for i, seq := range g.Sequences {
			idBuilder.Append(g.ID)
			seqBuilder.Append(seq)
			if g.Qualities != nil {
				qualBuilder.Append(g.Qualities[i])
			} else {
				qualBuilder.AppendNull()
			}
		}
	}

	return builder.NewRecord(), nil
}

// RecordToGroups regroups a request batch. Groups are returned in order of
// first appearance; rows of one group need not be contiguous.
func (c *Converter) RecordToGroups(record arrow.Record) ([]core.ReadGroup, error) {
	if err := ValidateSchema(record, ReadSchema()); err != nil {
		return nil, fmt.Errorf("invalid request batch: %w", err)
	}
	if record.NumRows() == 0 {
		return nil, ErrEmptyBatch
	}

	ids := record.Column(0).(*array.String)
	seqs := record.Column(1).(*array.Binary)
	quals := record.Column(2).(*array.Binary)

	var groups []core.ReadGroup
	index := make(map[string]int)

	for row := 0; row < int(record.NumRows()); row++ {
		if ids.IsNull(row) {
			return nil, fmt.Errorf("row %d group_id: %w", row, ErrNullValue)
		}
		if seqs.IsNull(row) {
			return nil, fmt.Errorf("row %d sequence: %w", row, ErrNullValue)
		}
		id := ids.Value(row)
		weighted := !quals.IsNull(row)

		gi, seen := index[id]
		if !seen {
			gi = len(groups)
			index[id] = gi
			g := core.ReadGroup{ID: id}
			if weighted {
				g.Qualities = [][]byte{}
			}
			groups = append(groups, g)
		}
		g := &groups[gi]
		if weighted != (g.Qualities != nil) {
			return nil, fmt.Errorf("group %q row %d: %w", id, row, ErrMixedQuality)
		}

		// Values alias the record's buffers, which the caller will release.
		g.Sequences = append(g.Sequences, bytes.Clone(seqs.Value(row)))
		if weighted {
			g.Qualities = append(g.Qualities, bytes.Clone(quals.Value(row)))
		}
	}

	return groups, nil
}

// AlignmentFromRecord returns base overridden by any alignment metadata on record.
func AlignmentFromRecord(record arrow.Record, base binding.AlignmentConfig) (binding.AlignmentConfig, error) {
	return ConfigFromMetadata(record.Schema().Metadata(), base)
}

// ResultsToRecord builds a result batch, one row per group.
func (c *Converter) ResultsToRecord(results []core.GroupResult) (arrow.Record, error) {
	builder := array.NewRecordBuilder(c.allocator, ConsensusSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	consensusBuilder := builder.Field(1).(*array.BinaryBuilder)
	truncatedBuilder := builder.Field(2).(*array.BooleanBuilder)
	reasonBuilder := builder.Field(3).(*array.StringBuilder)
	errorBuilder := builder.Field(4).(*array.StringBuilder)

	for _, r := range results {
		idBuilder.Append(r.GroupID)
		truncatedBuilder.Append(r.Truncated)
		if r.Err != nil {
			consensusBuilder.AppendNull()
			reasonBuilder.Append(core.ReasonOf(r.Err))
			errorBuilder.Append(r.Err.Error())
			continue
		}
		consensusBuilder.Append([]byte(r.Consensus))
		reasonBuilder.AppendNull()
		errorBuilder.AppendNull()
	}

	return builder.NewRecord(), nil
}

// RecordToResults reads a result batch. Failed rows carry a *core.RemoteError.
func (c *Converter) RecordToResults(record arrow.Record) ([]core.GroupResult, error) {
	if err := ValidateSchema(record, ConsensusSchema()); err != nil {
		return nil, fmt.Errorf("invalid result batch: %w", err)
	}

	ids := record.Column(0).(*array.String)
	consensus := record.Column(1).(*array.Binary)
	truncated := record.Column(2).(*array.Boolean)
	reasons := record.Column(3).(*array.String)
	messages := record.Column(4).(*array.String)

	results := make([]core.GroupResult, record.NumRows())
	for row := range results {
		r := core.GroupResult{
			GroupID:   ids.Value(row),
			Truncated: truncated.Value(row),
		}
		if !reasons.IsNull(row) || !messages.IsNull(row) {
			r.Err = &core.RemoteError{Reason: reasons.Value(row), Message: messages.Value(row)}
		} else if !consensus.IsNull(row) {
			r.Consensus = string(consensus.Value(row))
		}
		results[row] = r
	}
	return results, nil
}
