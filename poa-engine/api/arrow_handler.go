package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
	"github.com/VanDung-dev/POA-Engine/poa-engine/data"
)

// ArrowHandler turns a request batch into a result batch.
type ArrowHandler struct {
	service   *core.ConsensusService
	converter *data.Converter
	ipc       *data.IPCWriter
	logger    *slog.Logger
}

// NewArrowHandler creates a new ArrowHandler over service.
func NewArrowHandler(service *core.ConsensusService, logger *slog.Logger) *ArrowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArrowHandler{
		service:   service,
		converter: data.NewConverterWithAllocator(memory.NewGoAllocator()),
		ipc:       data.NewIPCWriter(),
		logger:    logger,
	}
}

// ProcessBatch parses data as an Arrow IPC stream in ReadSchema, computes every
// group and returns the ConsensusSchema batch as IPC bytes. Alignment metadata
// on the request schema overrides the service defaults for the whole batch.
func (h *ArrowHandler) ProcessBatch(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("received empty data")
	}

	records, err := h.ipc.DeserializeAll(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read Arrow stream: %w", err)
	}
	defer release(records)
	if len(records) == 0 {
		return nil, data.ErrEmptyBatch
	}

	cfg, err := data.AlignmentFromRecord(records[0], h.service.Defaults())
	if err != nil {
		return nil, fmt.Errorf("invalid alignment metadata: %w", err)
	}

	var groups []core.ReadGroup
	for _, rec := range records {
		g, err := h.converter.RecordToGroups(rec)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g...)
	}

	h.logger.Debug("arrow batch received",
		slog.Int("records", len(records)),
		slog.Int("groups", len(groups)),
		slog.String("mode", cfg.Mode.String()),
	)

	results, err := h.service.ComputeBatch(ctx, groups, cfg)
	if err != nil {
		return nil, err
	}

	out, err := h.converter.ResultsToRecord(results)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	return h.ipc.Serialize(out)
}

func release(records []arrow.Record) {
	for _, r := range records {
		r.Release()
	}
}
