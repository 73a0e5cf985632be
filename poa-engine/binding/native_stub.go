//go:build !cgo || !spoa

package binding

// NativeEngine stands in for the cgo engine when it is not linked.
// Every call fails with ErrEngineUnavailable.
type NativeEngine struct{}

// NewNativeEngine returns the placeholder engine.
func NewNativeEngine() Engine { return NativeEngine{} }

// NativeAvailable reports whether the native engine is linked into this binary.
func NativeAvailable() bool { return false }

// ConsensusOwned implements Engine.
func (NativeEngine) ConsensusOwned(*Call) ([]byte, error) { return nil, ErrEngineUnavailable }

// ConsensusBounded implements Engine.
func (NativeEngine) ConsensusBounded(*Call, []byte) (int, error) { return 0, ErrEngineUnavailable }
