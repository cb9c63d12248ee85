// Package rendezvous implements the introducer side of the protocol.
//
// Ownership boundary:
// - routing decoded datagrams by key
// - directory updates on login
// - brokering open-channel between a requester and a target, with bounded
//   retransmission until the target acknowledges
//
// Senders are identified by source address, never by the name they claim.
// A Server is driven by one reactor goroutine and holds no locks.
package rendezvous
