// Package network provides the ZeroMQ consensus endpoint.
//
// This package implements:
//   - ZmqEndpoint: ROUTER socket answering JSON consensus requests
//   - ZmqClient: DEALER socket with request/reply correlation by request ID
package network
