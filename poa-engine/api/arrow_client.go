package api

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
	"github.com/VanDung-dev/POA-Engine/poa-engine/data"
)

// ArrowClient sends request batches to an ArrowServer over one connection.
// Calls are serialized.
type ArrowClient struct {
	conn      net.Conn
	converter *data.Converter
	ipc       *data.IPCWriter
	mu        sync.Mutex
}

// DialArrow connects to address and, when token is non-empty, authenticates.
func DialArrow(address, token string, timeout time.Duration) (*ArrowClient, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if token != "" {
		if err := ClientHandshake(conn, token); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return &ArrowClient{
		conn:      conn,
		converter: data.NewConverter(),
		ipc:       data.NewIPCWriter(),
	}, nil
}

// Compute sends groups with an optional alignment config and returns one
// result per group in input order.
func (c *ArrowClient) Compute(groups []core.ReadGroup, cfg *binding.AlignmentConfig) ([]core.GroupResult, error) {
	record, err := c.converter.GroupsToRecord(groups, cfg)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	payload, err := c.ipc.Serialize(record)
	if err != nil {
		return nil, err
	}

	body, err := c.roundTrip(payload)
	if err != nil {
		return nil, err
	}

	out, err := c.ipc.Deserialize(body)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	return c.converter.RecordToResults(out)
}

func (c *ArrowClient) roundTrip(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteMessage(c.conn, payload); err != nil {
		return nil, err
	}
	return ReadResponse(c.conn)
}

// Close closes the connection.
func (c *ArrowClient) Close() error {
	return c.conn.Close()
}
