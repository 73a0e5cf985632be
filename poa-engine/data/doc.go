// Package data provides Apache Arrow schemas and conversions for batched
// consensus requests and results.
//
// A request batch has one row per read; rows sharing a group_id form one
// ReadGroup. Alignment parameters travel as schema metadata so that a single
// IPC stream is self-describing.
package data
