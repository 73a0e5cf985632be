// Package binding computes consensus sequences through the SPOA native engine.
//
// This package contains:
//   - Sequence and quality framing (sentinel-terminated byte records)
//   - Alignment configuration (mode + affine / two-piece affine gap scoring)
//   - The foreign call boundary (native_cgo.go) behind the Engine interface
//   - Result strategies for the owned and bounded-buffer calling conventions
//
// The native engine is linked only when building with cgo and the spoa tag:
//
//	go build -tags spoa ./...
//
// The shim library must be on the linker path at:
//   - Linux/macOS: target/release/libspoa_shim.a (plus libspoa and libstdc++)
//
// Without the tag every native call fails with ErrEngineUnavailable.
package binding
