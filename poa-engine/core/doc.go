// Package core provides the consensus service that sits between the transports
// and the binding.
// This package implements:
// - Worker pool with goroutines and per-task completion channels
// - Consensus service with caching, metrics and tracing
// - Wire types shared by the gRPC and ZeroMQ transports
package core
