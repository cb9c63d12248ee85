package rendezvous

import (
	"net/netip"
	"testing"
	"time"

	"github.com/danmuck/punchctl/internal/protocol/session"
	"github.com/danmuck/punchctl/internal/testutil/sched"
	"github.com/danmuck/punchctl/internal/testutil/testlog"
)

var (
	addrAlice = netip.MustParseAddrPort("10.0.0.1:4001")
	addrBob   = netip.MustParseAddrPort("10.0.0.2:4002")
	addrCarol = netip.MustParseAddrPort("10.0.0.3:4003")
	addrMoved = netip.MustParseAddrPort("10.0.0.9:5009")
	addrNone  = netip.MustParseAddrPort("10.0.0.99:9999")
)

type sent struct {
	to   netip.AddrPort
	line string
}

type fakeSender struct {
	out []sent
}

func (f *fakeSender) Send(b []byte, to netip.AddrPort) error {
	f.out = append(f.out, sent{to: to, line: string(b)})
	return nil
}

func (f *fakeSender) take() []sent {
	out := f.out
	f.out = nil
	return out
}

type harness struct {
	t     *testing.T
	srv   *Server
	sched *sched.Scheduler
	out   *fakeSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := sched.New()
	out := &fakeSender{}
	ids := 0
	srv, err := NewServer(session.DefaultConfig(), s, out, WithNegotiationIDs(func() string {
		ids++
		return "neg-" + string(rune('0'+ids))
	}))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &harness{t: t, srv: srv, sched: s, out: out}
}

func (h *harness) recv(line string, from netip.AddrPort) []sent {
	h.t.Helper()
	h.srv.HandleDatagram([]byte(line), from)
	return h.out.take()
}

func (h *harness) login(name string, from netip.AddrPort) {
	h.t.Helper()
	got := h.recv("login: "+name+"\n", from)
	expectOne(h.t, got, from, "response: success\n")
}

func expectOne(t *testing.T, got []sent, to netip.AddrPort, line string) {
	t.Helper()
	if len(got) != 1 {
		t.Fatalf("expected one datagram %q to %s, got %+v", line, to, got)
	}
	if got[0].to != to || got[0].line != line {
		t.Fatalf("unexpected datagram got=%+v want to=%s line=%q", got[0], to, line)
	}
}

func expectNone(t *testing.T, got []sent) {
	t.Helper()
	if len(got) != 0 {
		t.Fatalf("expected no datagrams, got %+v", got)
	}
}

func TestLoginIsIdempotent(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("alice", addrAlice)
	if n := h.srv.Directory().Len(); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
}

func TestLoginRequestAlias(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	got := h.recv("login-request: alice\n", addrAlice)
	expectOne(t, got, addrAlice, "response: success\n")
	if _, ok := h.srv.Directory().FindByName("alice"); !ok {
		t.Fatalf("alias login did not register")
	}
}

func TestLoginMigratesAddress(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("alice", addrMoved)

	expectOne(t, h.recv("get-user-list:\n", addrAlice), addrAlice, "response: error not logined user\n")
	expectOne(t, h.recv("get-user-list:\n", addrMoved), addrMoved, "user-list: alice\n")
}

func TestUnregisteredSenderGetsError(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("bob", addrBob)
	for _, line := range []string{"get-user-list:\n", "talk-to: bob\n", "response: success\n"} {
		expectOne(t, h.recv(line, addrNone), addrNone, "response: error not logined user\n")
	}
	rec, _ := h.srv.Directory().FindByName("bob")
	if rec.AwaitingAck {
		t.Fatalf("unregistered talk-to changed target state")
	}
}

func TestUserListIncludesEveryone(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	expectOne(t, h.recv("get-user-list:\n", addrBob), addrBob, "user-list: alice bob\n")
}

func TestTalkToUnknownTarget(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	expectOne(t, h.recv("talk-to: carol\n", addrAlice), addrAlice, "response: error user is not online\n")
	if h.sched.Pending() != 0 {
		t.Fatalf("unexpected retry timer armed")
	}
}

func TestHappyPathAckCancelsRetry(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)

	got := h.recv("talk-to: bob\n", addrAlice)
	if len(got) != 2 {
		t.Fatalf("expected user-info and open-channel, got %+v", got)
	}
	if got[0].to != addrAlice || got[0].line != "user-info: bob 10.0.0.2:4002\n" {
		t.Fatalf("unexpected user-info %+v", got[0])
	}
	if got[1].to != addrBob || got[1].line != "open-channel: alice 10.0.0.1:4001\n" {
		t.Fatalf("unexpected open-channel %+v", got[1])
	}
	bob, _ := h.srv.Directory().FindByName("bob")
	if !bob.AwaitingAck || bob.PendingPeer != "alice" || !bob.TimerArmed() {
		t.Fatalf("unexpected target state %+v", bob)
	}
	if bob.NegotiationID != "neg-1" {
		t.Fatalf("unexpected negotiation id=%q", bob.NegotiationID)
	}

	expectNone(t, h.recv("response: success\n", addrBob))
	if bob.AwaitingAck || bob.PendingPeer != "" || bob.TimerArmed() {
		t.Fatalf("ack did not clear state %+v", bob)
	}
	h.sched.Advance(time.Minute)
	expectNone(t, h.out.take())
}

// open-channel goes out at 0s, 4s, 8s and 12s. The error follows the
// fourth timer fire at 16s, not the third.
func TestTimeoutNotifiesRequesterAfterFourAttempts(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)

	for i := 1; i <= 3; i++ {
		h.sched.Advance(4 * time.Second)
		expectOne(t, h.out.take(), addrBob, "open-channel: alice 10.0.0.1:4001\n")
	}
	h.sched.Advance(3999 * time.Millisecond)
	expectNone(t, h.out.take())
	h.sched.Advance(time.Millisecond)
	expectOne(t, h.out.take(), addrAlice, "response: error dest not responded\n")

	bob, _ := h.srv.Directory().FindByName("bob")
	if bob.AwaitingAck || bob.PendingPeer != "" || bob.TimerArmed() {
		t.Fatalf("timeout did not clear state %+v", bob)
	}
	if bob.RetryCount != 4 {
		t.Fatalf("unexpected retry count=%d", bob.RetryCount)
	}
	h.sched.Advance(time.Minute)
	expectNone(t, h.out.take())

	// a late ack is ignored without reply
	expectNone(t, h.recv("response: success\n", addrBob))
}

func TestRetryFollowsRequesterMigration(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)
	h.login("alice", addrMoved)

	h.sched.Advance(4 * time.Second)
	expectOne(t, h.out.take(), addrBob, "open-channel: alice 10.0.0.9:5009\n")
}

func TestMalformedDatagramsAreDropped(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	for _, line := range []string{"garbage", "talk-to bob\n", ""} {
		expectNone(t, h.recv(line, addrAlice))
	}
	if n := h.srv.Directory().Len(); n != 1 {
		t.Fatalf("malformed input changed directory len=%d", n)
	}
}

func TestLoginWithUnlistableNameGetsError(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	for _, line := range []string{"login: \n", "login: two words\n", "login-request: tab\tname\n"} {
		expectOne(t, h.recv(line, addrBob), addrBob, "response: error invalid user name\n")
	}
	if n := h.srv.Directory().Len(); n != 1 {
		t.Fatalf("rejected login changed directory len=%d", n)
	}
	if _, ok := h.srv.Directory().FindByAddress(addrBob); ok {
		t.Fatalf("rejected login registered an address")
	}
}

func TestUnknownKeyGetsError(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	expectOne(t, h.recv("hello: there\n", addrAlice), addrAlice, "response: error unknown message\n")
	expectOne(t, h.recv(": x\n", addrAlice), addrAlice, "response: error unknown message\n")
}

func TestBusyTargetRejectsSecondRequester(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.login("carol", addrCarol)
	h.recv("talk-to: bob\n", addrAlice)

	expectOne(t, h.recv("talk-to: bob\n", addrCarol), addrCarol, "response: error user is busy\n")
	bob, _ := h.srv.Directory().FindByName("bob")
	if bob.PendingPeer != "alice" {
		t.Fatalf("busy request replaced pending peer: %q", bob.PendingPeer)
	}
}

func TestDuplicateTalkToResendsUserInfoOnly(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)

	expectOne(t, h.recv("talk-to: bob\n", addrAlice), addrAlice, "user-info: bob 10.0.0.2:4002\n")
	if h.sched.Pending() != 1 {
		t.Fatalf("expected one live retry timer, got %d", h.sched.Pending())
	}
	bob, _ := h.srv.Directory().FindByName("bob")
	if bob.NegotiationID != "neg-1" {
		t.Fatalf("duplicate request started a new cycle: %q", bob.NegotiationID)
	}
}

func TestResponseWithoutPendingCycleIsIgnored(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("bob", addrBob)
	expectNone(t, h.recv("response: success\n", addrBob))
	expectNone(t, h.recv("response: error whatever\n", addrBob))
}

func TestNonSuccessResponseStillAcks(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)

	expectNone(t, h.recv("response: error nope\n", addrBob))
	bob, _ := h.srv.Directory().FindByName("bob")
	if bob.AwaitingAck || bob.TimerArmed() {
		t.Fatalf("non-success response did not ack %+v", bob)
	}
	h.sched.Advance(time.Minute)
	expectNone(t, h.out.take())
}

func TestNewCycleResetsRetryCount(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)
	h.sched.Advance(4 * time.Second)
	h.out.take()
	h.recv("response: success\n", addrBob)

	h.recv("talk-to: bob\n", addrAlice)
	bob, _ := h.srv.Directory().FindByName("bob")
	if bob.RetryCount != 0 || bob.NegotiationID != "neg-2" {
		t.Fatalf("new cycle state %+v", bob)
	}
}

func TestSnapshotReportsPendingCycle(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.login("alice", addrAlice)
	h.login("bob", addrBob)
	h.recv("talk-to: bob\n", addrAlice)

	snap := h.srv.Snapshot()
	if len(snap) != 2 || snap[1].Name != "bob" || !snap[1].AwaitingAck || snap[1].PendingPeer != "alice" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
