// Package directory keeps the server's registry of named peers.
//
// The directory is owned by the reactor goroutine and is not safe for
// concurrent use. Records are never deleted; a peer that logs in again is
// updated in place.
package directory

import (
	"errors"
	"net/netip"
	"time"

	"github.com/danmuck/punchctl/internal/reactor"
)

var (
	ErrTimerArmed = errors.New("directory: retry timer already armed")
	ErrEmptyName  = errors.New("directory: empty peer name")
	ErrNoAddress  = errors.New("directory: invalid peer address")
)

// PeerRecord is one registered peer plus its channel negotiation state.
type PeerRecord struct {
	Name string
	Addr netip.AddrPort

	AwaitingAck   bool
	RetryCount    int
	RetryTimeout  time.Duration
	PendingPeer   string
	NegotiationID string

	FirstSeen time.Time
	LastLogin time.Time

	timer reactor.Timer
}

// ArmTimer attaches the live retry timer. At most one may be held.
func (r *PeerRecord) ArmTimer(t reactor.Timer) error {
	if r.timer != nil {
		return ErrTimerArmed
	}
	r.timer = t
	return nil
}

// ReleaseTimer stops and drops the live retry timer. It reports whether a
// timer was held.
func (r *PeerRecord) ReleaseTimer() bool {
	if r.timer == nil {
		return false
	}
	r.timer.Stop()
	r.timer = nil
	return true
}

// TimerArmed reports whether a retry timer is held.
func (r *PeerRecord) TimerArmed() bool {
	return r.timer != nil
}

// ResetNegotiation clears the ack wait state. The timer must already be
// released.
func (r *PeerRecord) ResetNegotiation() {
	r.AwaitingAck = false
	r.PendingPeer = ""
	r.NegotiationID = ""
}

// Snapshot is a value copy of a record for reporting.
type Snapshot struct {
	Name          string    `json:"name"`
	Addr          string    `json:"addr"`
	AwaitingAck   bool      `json:"awaiting_ack"`
	RetryCount    int       `json:"retry_count"`
	PendingPeer   string    `json:"pending_peer,omitempty"`
	NegotiationID string    `json:"negotiation_id,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastLogin     time.Time `json:"last_login"`
}

// Directory maps names to records with a secondary index by address.
type Directory struct {
	byName map[string]*PeerRecord
	byAddr map[netip.AddrPort]*PeerRecord
	order  []string
	now    func() time.Time
}

func New(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		byName: make(map[string]*PeerRecord),
		byAddr: make(map[netip.AddrPort]*PeerRecord),
		now:    now,
	}
}

func (d *Directory) FindByName(name string) (*PeerRecord, bool) {
	r, ok := d.byName[name]
	return r, ok
}

func (d *Directory) FindByAddress(addr netip.AddrPort) (*PeerRecord, bool) {
	r, ok := d.byAddr[addr]
	return r, ok
}

// Upsert registers name at addr, or moves an existing record to addr. When
// two names share an address the latest login owns the address index.
func (d *Directory) Upsert(name string, addr netip.AddrPort) (*PeerRecord, bool, error) {
	if name == "" {
		return nil, false, ErrEmptyName
	}
	if !addr.IsValid() {
		return nil, false, ErrNoAddress
	}
	now := d.now()
	r, ok := d.byName[name]
	if !ok {
		r = &PeerRecord{Name: name, Addr: addr, FirstSeen: now, LastLogin: now}
		d.byName[name] = r
		d.order = append(d.order, name)
		d.byAddr[addr] = r
		return r, true, nil
	}
	if r.Addr != addr {
		if cur, held := d.byAddr[r.Addr]; held && cur == r {
			delete(d.byAddr, r.Addr)
		}
		r.Addr = addr
	}
	d.byAddr[addr] = r
	r.LastLogin = now
	return r, false, nil
}

// Names lists every registered name in registration order.
func (d *Directory) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *Directory) Len() int {
	return len(d.order)
}

// Snapshot copies every record in registration order.
func (d *Directory) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(d.order))
	for _, name := range d.order {
		r := d.byName[name]
		out = append(out, Snapshot{
			Name:          r.Name,
			Addr:          r.Addr.String(),
			AwaitingAck:   r.AwaitingAck,
			RetryCount:    r.RetryCount,
			PendingPeer:   r.PendingPeer,
			NegotiationID: r.NegotiationID,
			FirstSeen:     r.FirstSeen,
			LastLogin:     r.LastLogin,
		})
	}
	return out
}
