package data

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

// Schema metadata keys for alignment parameters.
const (
	MetaMode            = "poa.mode"
	MetaMatch           = "poa.match"
	MetaMismatch        = "poa.mismatch"
	MetaGapOpen         = "poa.gap_open"
	MetaGapExtend       = "poa.gap_extend"
	MetaSecondGapOpen   = "poa.second_gap_open"
	MetaSecondGapExtend = "poa.second_gap_extend"
)

// ReadSchema returns the Arrow schema for a request batch.
//
// Fields:
//   - group_id: string - Reads with the same id share one consensus
//   - sequence: binary - Raw residues, no sentinel
//   - quality: binary (nullable) - Per-residue weights; null for unweighted groups
func ReadSchema() *arrow.Schema {
	return arrow.NewSchema(readFields(), nil)
}

// ReadSchemaWithConfig returns ReadSchema carrying cfg as metadata.
func ReadSchemaWithConfig(cfg binding.AlignmentConfig) *arrow.Schema {
	md := ConfigMetadata(cfg)
	return arrow.NewSchema(readFields(), &md)
}

func readFields() []arrow.Field {
	return []arrow.Field{
		{Name: "group_id", Type: arrow.BinaryTypes.String},
		{Name: "sequence", Type: arrow.BinaryTypes.Binary},
		{Name: "quality", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}
}

// ConsensusSchema returns the Arrow schema for a result batch.
//
// Fields:
//   - group_id: string - Group identifier
//   - consensus: binary (nullable) - Consensus residues; null on failure
//   - truncated: bool - Bounded output was cut short
//   - reason: string (nullable) - Stable failure reason
//   - error: string (nullable) - Failure message
func ConsensusSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "group_id", Type: arrow.BinaryTypes.String},
			{Name: "consensus", Type: arrow.BinaryTypes.Binary, Nullable: true},
			{Name: "truncated", Type: arrow.FixedWidthTypes.Boolean},
			{Name: "reason", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
		},
		nil,
	)
}

// ConfigMetadata encodes cfg as schema metadata.
func ConfigMetadata(cfg binding.AlignmentConfig) arrow.Metadata {
	keys := []string{MetaMode, MetaMatch, MetaMismatch, MetaGapOpen, MetaGapExtend}
	vals := []string{
		cfg.Mode.String(),
		itoa(cfg.Match),
		itoa(cfg.Mismatch),
		itoa(cfg.Gap.Open),
		itoa(cfg.Gap.Extend),
	}
	if cfg.SecondGap != nil {
		keys = append(keys, MetaSecondGapOpen, MetaSecondGapExtend)
		vals = append(vals, itoa(cfg.SecondGap.Open), itoa(cfg.SecondGap.Extend))
	}
	return arrow.NewMetadata(keys, vals)
}

// ConfigFromMetadata applies any alignment keys in md over base.
func ConfigFromMetadata(md arrow.Metadata, base binding.AlignmentConfig) (binding.AlignmentConfig, error) {
	cfg := base

	if v, ok := lookup(md, MetaMode); ok {
		mode, err := binding.ParseMode(v)
		if err != nil {
			return base, err
		}
		cfg.Mode = mode
	}

	ints := []struct {
		key string
		dst *int32
	}{
		{MetaMatch, &cfg.Match},
		{MetaMismatch, &cfg.Mismatch},
		{MetaGapOpen, &cfg.Gap.Open},
		{MetaGapExtend, &cfg.Gap.Extend},
	}
	for _, f := range ints {
		if err := parseInto(md, f.key, f.dst); err != nil {
			return base, err
		}
	}

	open, hasOpen := lookup(md, MetaSecondGapOpen)
	extend, hasExtend := lookup(md, MetaSecondGapExtend)
	switch {
	case hasOpen && hasExtend:
		second := binding.GapPenalty{}
		if err := parseValue(MetaSecondGapOpen, open, &second.Open); err != nil {
			return base, err
		}
		if err := parseValue(MetaSecondGapExtend, extend, &second.Extend); err != nil {
			return base, err
		}
		cfg.SecondGap = &second
	case hasOpen || hasExtend:
		return base, errors.New("second gap needs both open and extend")
	}

	return cfg, nil
}

func lookup(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

func parseInto(md arrow.Metadata, key string, dst *int32) error {
	v, ok := lookup(md, key)
	if !ok {
		return nil
	}
	return parseValue(key, v, dst)
}

func parseValue(key, v string, dst *int32) error {
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("metadata %s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func itoa(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

// ValidateSchema checks that a record has the expected field names, types and
// nullability. Metadata is not compared.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}

		if actualField.Nullable && !expectedField.Nullable {
			return fmt.Errorf("field %s must not be nullable", actualField.Name)
		}
	}

	return nil
}
