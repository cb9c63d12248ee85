// Package peer implements the client side of the rendezvous protocol: login
// with a single retransmission, reacting to introductions from the server,
// and the paced talk-shake burst that opens a direct path to the other peer.
//
// A Session is driven by one reactor goroutine and holds no locks.
package peer
