package core

import (
	"context"
	"errors"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

// Stable failure reasons carried on the wire.
const (
	ReasonUnterminated      = "unterminated"
	ReasonEmbeddedSentinel  = "embedded_sentinel"
	ReasonCountMismatch     = "count_mismatch"
	ReasonInvalidMode       = "invalid_mode"
	ReasonEngineFailure     = "engine_failure"
	ReasonEngineUnavailable = "engine_unavailable"
	ReasonCanceled          = "canceled"
	ReasonInternal          = "internal"
)

// ReasonOf maps err to a stable reason string. A nil error maps to "".
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, binding.ErrUnterminated):
		return ReasonUnterminated
	case errors.Is(err, binding.ErrEmbeddedSentinel):
		return ReasonEmbeddedSentinel
	case errors.Is(err, binding.ErrCountMismatch):
		return ReasonCountMismatch
	case errors.Is(err, binding.ErrInvalidMode):
		return ReasonInvalidMode
	case errors.Is(err, binding.ErrEngineUnavailable):
		return ReasonEngineUnavailable
	case errors.Is(err, binding.ErrEngineFailure):
		return ReasonEngineFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	return ReasonInternal
}

// AlignmentOverride selectively replaces fields of a base alignment config.
// Nil fields keep the base value.
type AlignmentOverride struct {
	Mode      *string             `json:"mode,omitempty"`
	Match     *int32              `json:"match,omitempty"`
	Mismatch  *int32              `json:"mismatch,omitempty"`
	Gap       *binding.GapPenalty `json:"gap,omitempty"`
	SecondGap *binding.GapPenalty `json:"second_gap,omitempty"`
}

// Apply returns base with the override's fields applied.
func (o *AlignmentOverride) Apply(base binding.AlignmentConfig) (binding.AlignmentConfig, error) {
	if o == nil {
		return base, nil
	}
	cfg := base
	if o.Mode != nil {
		mode, err := binding.ParseMode(*o.Mode)
		if err != nil {
			return base, err
		}
		cfg.Mode = mode
	}
	if o.Match != nil {
		cfg.Match = *o.Match
	}
	if o.Mismatch != nil {
		cfg.Mismatch = *o.Mismatch
	}
	if o.Gap != nil {
		cfg.Gap = *o.Gap
	}
	if o.SecondGap != nil {
		second := *o.SecondGap
		cfg.SecondGap = &second
	}
	return cfg, nil
}

// ConsensusRequest is one read group as sent by a remote caller.
// Sequences and Qualities carry raw residues without the sentinel. Records
// are bytes, not strings, so every value 1..255 survives JSON (as base64).
type ConsensusRequest struct {
	RequestID string             `json:"request_id,omitempty"`
	Sequences [][]byte           `json:"sequences"`
	Qualities [][]byte           `json:"qualities,omitempty"`
	Alignment *AlignmentOverride `json:"alignment,omitempty"`
}

// Group converts the request into a ReadGroup. Records are shared, not copied.
func (r *ConsensusRequest) Group() ReadGroup {
	g := ReadGroup{ID: r.RequestID, Sequences: r.Sequences, Qualities: r.Qualities}
	if g.Sequences == nil {
		g.Sequences = [][]byte{}
	}
	return g
}

// ConsensusReply answers one ConsensusRequest.
type ConsensusReply struct {
	RequestID string `json:"request_id,omitempty"`
	Consensus []byte `json:"consensus"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReplyOf converts a group result into its wire form.
func ReplyOf(res GroupResult) ConsensusReply {
	reply := ConsensusReply{
		RequestID: res.GroupID,
		Truncated: res.Truncated,
	}
	if res.Consensus != "" {
		reply.Consensus = []byte(res.Consensus)
	}
	if res.Err != nil {
		reply.Error = res.Err.Error()
		reply.Reason = ReasonOf(res.Err)
	}
	return reply
}

// Err rebuilds an error from a failed reply, or returns nil.
func (r *ConsensusReply) Err() error {
	if r.Error == "" && r.Reason == "" {
		return nil
	}
	return &RemoteError{Reason: r.Reason, Message: r.Error}
}

// RemoteError is a failure reported by another process. It keeps the reason
// so that ReasonOf survives a round trip.
type RemoteError struct {
	Reason  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Reason
	}
	return e.Message
}
