package binding

import (
	"fmt"
	"strings"
)

// Mode selects the alignment type. Codes match the native engine.
type Mode int32

const (
	ModeLocal  Mode = 0
	ModeGlobal Mode = 1
	ModeGapped Mode = 2
)

// Valid reports whether m is one of the three recognized codes.
func (m Mode) Valid() bool {
	return m == ModeLocal || m == ModeGlobal || m == ModeGapped
}

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeGlobal:
		return "global"
	case ModeGapped:
		return "gapped"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// ParseMode parses a mode name. "semi-global" is accepted as an alias for gapped.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "0":
		return ModeLocal, nil
	case "global", "1":
		return ModeGlobal, nil
	case "gapped", "semi-global", "semiglobal", "2":
		return ModeGapped, nil
	}
	return 0, &PreconditionError{Err: ErrInvalidMode, Index: -1, Detail: fmt.Sprintf("%q", s)}
}

// GapPenalty is one affine gap tier.
type GapPenalty struct {
	Open   int32 `json:"open" yaml:"open"`
	Extend int32 `json:"extend" yaml:"extend"`
}

// AlignmentConfig carries the mode and scoring parameters of one request.
// Scores are not range-checked; the engine owns their semantics.
type AlignmentConfig struct {
	Mode     Mode
	Match    int32
	Mismatch int32
	Gap      GapPenalty

	// SecondGap enables the two-piece affine model. Nil means single affine.
	SecondGap *GapPenalty
}

// DefaultAlignmentConfig returns global alignment with 5/-4/-3/-1 scoring.
func DefaultAlignmentConfig() AlignmentConfig {
	return AlignmentConfig{
		Mode:     ModeGlobal,
		Match:    5,
		Mismatch: -4,
		Gap:      GapPenalty{Open: -3, Extend: -1},
	}
}

// SecondTier returns the penalties for the second gap slots of the foreign call.
// The primary tier is repeated for the single affine model.
func (c AlignmentConfig) SecondTier() GapPenalty {
	if c.SecondGap != nil {
		return *c.SecondGap
	}
	return c.Gap
}

// Validate checks the alignment mode.
func (c AlignmentConfig) Validate() error {
	if !c.Mode.Valid() {
		return &PreconditionError{Err: ErrInvalidMode, Index: -1, Detail: fmt.Sprintf("code %d", int32(c.Mode))}
	}
	return nil
}
