package network

import (
	"testing"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding/bindingtest"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

// FuzzProcess feeds arbitrary request frames to the endpoint.
// Run with: go test -fuzz=FuzzProcess -fuzztime=30s ./poa-engine/network/
func FuzzProcess(f *testing.F) {
	f.Add([]byte(`{"request_id":"r","sequences":["QUNHVA==","QUNHQQ=="]}`))
	f.Add([]byte(`{"sequences":["QUM="],"qualities":["SQ=="]}`))
	f.Add([]byte(`{"sequences":["QQ=="],"alignment":{"mode":"local","gap":{"open":-8,"extend":-6}}}`))
	f.Add([]byte(`{"sequences":["AC"]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`[1,2,3]`))

	b, err := binding.New(&bindingtest.Engine{})
	if err != nil {
		f.Fatal(err)
	}
	svc, err := core.NewConsensusService(b)
	if err != nil {
		f.Fatal(err)
	}
	defer svc.Close()
	ep := NewZmqEndpoint(svc, ZmqConfig{MaxMessageSize: 4096})

	f.Fuzz(func(t *testing.T, payload []byte) {
		reply := ep.process(payload)
		if reply.Error == "" && reply.Reason != "" {
			t.Fatalf("reason %q without error", reply.Reason)
		}
		if reply.Error != "" && len(reply.Consensus) != 0 {
			t.Fatalf("failed reply carries consensus %q", reply.Consensus)
		}
	})
}
