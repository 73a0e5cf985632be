// Package api exposes the consensus service over the network.
// This package implements:
// - Arrow IPC over length-prefixed TCP frames, with optional token auth
// - gRPC ConsensusEngine service using a JSON codec
package api

// Version is the current version of the POA Engine.
const Version = "0.1.0"
