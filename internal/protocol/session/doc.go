// Package session owns rendezvous reliability parameters.
//
// Ownership boundary:
// - open-channel ack timeout and retry bound
// - retransmission delay schedule
// - client login retransmit and talk-shake pacing
//
// Both the server state machine and the client session read from one
// Config so the two sides agree on timing.
package session
