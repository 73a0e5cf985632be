package data

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

func sampleGroups() []core.ReadGroup {
	return []core.ReadGroup{
		{
			ID:        "read-1",
			Sequences: [][]byte{[]byte("AATGTTCAGT"), []byte("AATGCCCGTT")},
			Qualities: [][]byte{[]byte("IIIIIIIIII"), []byte("#IIIIIII#I")},
		},
		{
			ID:        "read-2",
			Sequences: [][]byte{[]byte("FNLKPSWDDCQ"), []byte(""), []byte("FNLKPSWDD")},
		},
	}
}

func TestGroupsRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	c := NewConverterWithAllocator(mem)

	cfg := binding.DefaultAlignmentConfig()
	cfg.Mode = binding.ModeLocal

	record, err := c.GroupsToRecord(sampleGroups(), &cfg)
	if err != nil {
		t.Fatalf("GroupsToRecord failed: %v", err)
	}
	defer record.Release()

	if record.NumRows() != 5 {
		t.Errorf("Expected 5 rows, got %d", record.NumRows())
	}

	groups, err := c.RecordToGroups(record)
	if err != nil {
		t.Fatalf("RecordToGroups failed: %v", err)
	}
	want := sampleGroups()
	if len(groups) != len(want) {
		t.Fatalf("Expected %d groups, got %d", len(want), len(groups))
	}
	for i := range want {
		if groups[i].ID != want[i].ID {
			t.Errorf("Group %d: expected id %s, got %s", i, want[i].ID, groups[i].ID)
		}
		for j := range want[i].Sequences {
			if string(groups[i].Sequences[j]) != string(want[i].Sequences[j]) {
				t.Errorf("Group %d seq %d: %q", i, j, groups[i].Sequences[j])
			}
		}
		if (want[i].Qualities == nil) != (groups[i].Qualities == nil) {
			t.Errorf("Group %d: weighting changed", i)
		}
	}

	got, err := AlignmentFromRecord(record, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatalf("AlignmentFromRecord failed: %v", err)
	}
	if got.Mode != binding.ModeLocal {
		t.Errorf("Expected local mode from metadata, got %s", got.Mode)
	}
}

func TestRecordToGroups_Interleaved(t *testing.T) {
	c := NewConverter()
	groups := []core.ReadGroup{
		{ID: "b", Sequences: [][]byte{[]byte("A")}},
		{ID: "a", Sequences: [][]byte{[]byte("C")}},
		{ID: "b", Sequences: [][]byte{[]byte("G")}},
	}
	record, err := c.GroupsToRecord(groups, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer record.Release()

	got, err := c.RecordToGroups(record)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("Unexpected grouping %+v", got)
	}
	if len(got[0].Sequences) != 2 || string(got[0].Sequences[1]) != "G" {
		t.Errorf("Rows of b not merged: %+v", got[0])
	}
}

func TestRecordToGroups_MixedQuality(t *testing.T) {
	c := NewConverter()
	builder := array.NewRecordBuilder(memory.DefaultAllocator, ReadSchema())
	defer builder.Release()

	builder.Field(0).(*array.StringBuilder).AppendValues([]string{"g", "g"}, nil)
	builder.Field(1).(*array.BinaryBuilder).AppendValues([][]byte{[]byte("A"), []byte("C")}, nil)
	qb := builder.Field(2).(*array.BinaryBuilder)
	qb.Append([]byte("I"))
	qb.AppendNull()

	record := builder.NewRecord()
	defer record.Release()

	if _, err := c.RecordToGroups(record); !errors.Is(err, ErrMixedQuality) {
		t.Errorf("Expected ErrMixedQuality, got %v", err)
	}
}

func TestGroupsToRecord_Invalid(t *testing.T) {
	c := NewConverter()

	if _, err := c.GroupsToRecord(nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
	if _, err := c.GroupsToRecord([]core.ReadGroup{{ID: "e"}}, nil); !errors.Is(err, ErrEmptyGroup) {
		t.Errorf("Expected ErrEmptyGroup, got %v", err)
	}
	mismatch := []core.ReadGroup{{
		ID:        "m",
		Sequences: [][]byte{[]byte("A"), []byte("C")},
		Qualities: [][]byte{[]byte("I")},
	}}
	if _, err := c.GroupsToRecord(mismatch, nil); !errors.Is(err, binding.ErrCountMismatch) {
		t.Errorf("Expected ErrCountMismatch, got %v", err)
	}
}

func TestRecordToGroups_WrongSchema(t *testing.T) {
	c := NewConverter()
	record, err := c.ResultsToRecord([]core.GroupResult{{GroupID: "g", Consensus: "A"}})
	if err != nil {
		t.Fatal(err)
	}
	defer record.Release()

	if _, err := c.RecordToGroups(record); err == nil {
		t.Error("Expected schema error")
	}
}

func TestResultsRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	c := NewConverterWithAllocator(mem)

	in := []core.GroupResult{
		{GroupID: "ok", Consensus: "AATGCCCGTT"},
		{GroupID: "cut", Consensus: "AATGC", Truncated: true},
		{GroupID: "bad", Err: &binding.PreconditionError{Err: binding.ErrEmbeddedSentinel, Record: binding.RecordSequence, Index: 1}},
		{GroupID: "empty"},
	}

	record, err := c.ResultsToRecord(in)
	if err != nil {
		t.Fatalf("ResultsToRecord failed: %v", err)
	}
	defer record.Release()

	out, err := c.RecordToResults(record)
	if err != nil {
		t.Fatalf("RecordToResults failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d results, got %d", len(in), len(out))
	}
	if out[0].Consensus != "AATGCCCGTT" || out[0].Err != nil {
		t.Errorf("Unexpected ok row %+v", out[0])
	}
	if !out[1].Truncated || out[1].Consensus != "AATGC" {
		t.Errorf("Unexpected truncated row %+v", out[1])
	}
	if core.ReasonOf(out[2].Err) != core.ReasonEmbeddedSentinel {
		t.Errorf("Reason lost: %v", out[2].Err)
	}
	if out[2].Err.Error() != in[2].Err.Error() {
		t.Errorf("Message changed: %q", out[2].Err.Error())
	}
	if out[3].Err != nil || out[3].Consensus != "" {
		t.Errorf("Unexpected empty row %+v", out[3])
	}
}

func TestValidateSchema(t *testing.T) {
	if err := ValidateSchema(nil, ReadSchema()); err == nil {
		t.Error("Expected error for nil record")
	}

	nullable := arrow.NewSchema([]arrow.Field{
		{Name: "group_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "sequence", Type: arrow.BinaryTypes.Binary},
		{Name: "quality", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)
	builder := array.NewRecordBuilder(memory.DefaultAllocator, nullable)
	defer builder.Release()
	record := builder.NewRecord()
	defer record.Release()

	if err := ValidateSchema(record, ReadSchema()); err == nil {
		t.Error("Expected nullability mismatch")
	}
}
