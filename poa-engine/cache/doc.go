// Package cache provides a persistent consensus result cache.
// This package implements:
// - BadgerDB-backed storage (on disk or in memory)
// - Content-addressed keys over alignment config and input records
// - TTL-based expiration
package cache
