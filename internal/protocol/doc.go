// Package protocol owns the rendezvous line protocol.
//
// Ownership boundary:
// - datagram decode into immutable Message values
// - single-line and user-list encoding with explicit size limits
// - address and response sub-field parsing
//
// Wire shape: one UTF-8 line per UDP datagram, "<key>: <value>\n".
// The first ':' separates key from value; leading spaces of the value are dropped.
package protocol
