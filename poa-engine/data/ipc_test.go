package data

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

func TestIPCRoundTrip(t *testing.T) {
	c := NewConverter()
	w := NewIPCWriter()

	cfg := binding.DefaultAlignmentConfig()
	cfg.Match = 9
	record, err := c.GroupsToRecord(sampleGroups(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer record.Release()

	payload, err := w.Serialize(record)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := w.Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	defer decoded.Release()

	if decoded.NumRows() != record.NumRows() {
		t.Errorf("Expected %d rows, got %d", record.NumRows(), decoded.NumRows())
	}
	got, err := AlignmentFromRecord(decoded, binding.DefaultAlignmentConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.Match != 9 {
		t.Errorf("Metadata lost over IPC: %+v", got)
	}
}

func TestIPCMultipleRecords(t *testing.T) {
	c := NewConverter()
	w := NewIPCWriter()

	var records []arrow.Record
	for i := 0; i < 3; i++ {
		r, err := c.GroupsToRecord(sampleGroups(), nil)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Release()
		records = append(records, r)
	}

	payload, err := w.SerializeAll(records)
	if err != nil {
		t.Fatalf("SerializeAll failed: %v", err)
	}
	decoded, err := w.DeserializeAll(payload)
	if err != nil {
		t.Fatalf("DeserializeAll failed: %v", err)
	}
	if len(decoded) != 3 {
		t.Errorf("Expected 3 records, got %d", len(decoded))
	}
	for _, r := range decoded {
		r.Release()
	}
}

func TestIPCInvalid(t *testing.T) {
	w := NewIPCWriter()
	if _, err := w.Deserialize([]byte("not arrow")); err == nil {
		t.Error("Expected error for garbage input")
	}
	if _, err := w.SerializeAll(nil); err == nil {
		t.Error("Expected error for no records")
	}
}
