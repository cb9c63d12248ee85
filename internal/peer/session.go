package peer

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/punchctl/internal/observability"
	"github.com/danmuck/punchctl/internal/protocol"
	"github.com/danmuck/punchctl/internal/protocol/session"
	"github.com/danmuck/punchctl/internal/reactor"
)

var (
	ErrInvalidName    = errors.New("peer: invalid local name")
	ErrNoServer       = errors.New("peer: invalid server address")
	ErrAlreadyStarted = errors.New("peer: session already started")
)

// Session is the client state machine. Until an introduction arrives every
// outbound line targets the server.
type Session struct {
	cfg    session.Config
	name   string
	server netip.AddrPort
	sched  reactor.Scheduler
	out    reactor.Sender
	notify Notifier

	started    bool
	status     Status
	dest       netip.AddrPort
	introduced netip.AddrPort
	remote     string
	buffer     []byte

	loginTimer reactor.Timer
	loginLeft  int

	burstTimer  reactor.Timer
	burstGen    int
	burstStep   int
	burstWaited bool
	burstPacing []time.Duration
}

var (
	_ reactor.Handler      = (*Session)(nil)
	_ reactor.InputHandler = (*Session)(nil)
)

func NewSession(cfg session.Config, name string, server netip.AddrPort, sched reactor.Scheduler, out reactor.Sender, notify Notifier) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, " \t\n:") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !server.IsValid() || server.Port() == 0 {
		return nil, ErrNoServer
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Session{
		cfg:    cfg,
		name:   name,
		server: server,
		sched:  sched,
		out:    out,
		notify: notify,
		status: StatusAwaitingLoginAck,
	}, nil
}

func (s *Session) Status() Status {
	return s.status
}

// Destination reports the peer address once an introduction arrived.
func (s *Session) Destination() (netip.AddrPort, bool) {
	if s.status == StatusInHandshake || s.status == StatusEstablished {
		return s.dest, true
	}
	return netip.AddrPort{}, false
}

// ActiveEndpoint is where console lines and retransmissions go.
func (s *Session) ActiveEndpoint() netip.AddrPort {
	if dest, ok := s.Destination(); ok {
		return dest
	}
	return s.server
}

// Start sends the login request and arms the login retransmission.
func (s *Session) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}
	b, err := protocol.Encode(protocol.KeyLoginRequest, s.name)
	if err != nil {
		return fmt.Errorf("peer: encode login: %w", err)
	}
	s.started = true
	s.buffer = b
	s.send(s.server, protocol.KeyLoginRequest, b)
	log.Info().Str("name", s.name).Str("server", s.server.String()).Msg("peer.Session.Start login sent")

	s.loginLeft = s.cfg.LoginRetransmits
	s.armLogin()
	return nil
}

// Close stops every pending timer.
func (s *Session) Close() {
	if s.loginTimer != nil {
		s.loginTimer.Stop()
		s.loginTimer = nil
	}
	s.cancelBurst()
}

// HandleDatagram routes one datagram from the server or the peer.
func (s *Session) HandleDatagram(data []byte, from netip.AddrPort) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if s.fromPeer(from) && !errors.Is(err, protocol.ErrTruncated) {
			s.notify.Payload(from, strings.TrimSuffix(string(data), "\n"))
			return
		}
		observability.RecordDropped(observability.RoleClient, protocol.DropReason(err))
		log.Debug().Err(err).Str("from", from.String()).Msg("peer.Session dropped datagram")
		return
	}
	observability.RecordReceived(observability.RoleClient, msg.Key.MetricLabel())

	switch msg.Key {
	case protocol.KeyResponse, protocol.KeyUserList:
		if from != s.server {
			if s.fromPeer(from) {
				s.notify.Payload(from, strings.TrimSuffix(string(data), "\n"))
				return
			}
			observability.RecordDropped(observability.RoleClient, "not_server")
			log.Debug().Str("key", string(msg.Key)).Str("from", from.String()).Msg("peer.Session server line from unknown source")
			return
		}
		if msg.Key == protocol.KeyUserList {
			s.notify.UserList(protocol.ParseUserList(msg.Value))
			return
		}
		s.handleResponse(protocol.ParseResponse(msg.Value))
	case protocol.KeyUserInfo:
		s.handleIntroduction(msg.Value, from, true)
	case protocol.KeyOpenChannel:
		s.handleIntroduction(msg.Value, from, false)
	case protocol.KeyTalkShake:
		s.handleTalkShake(msg.Value, from)
	default:
		if s.fromPeer(from) {
			s.notify.Payload(from, strings.TrimSuffix(string(data), "\n"))
			return
		}
		log.Debug().Str("key", string(msg.Key)).Str("from", from.String()).Msg("peer.Session ignored message")
	}
}

// HandleInput sends one console line verbatim to the active endpoint.
func (s *Session) HandleInput(line string) {
	b, err := protocol.Line(line)
	if err != nil {
		log.Warn().Err(err).Msg("peer.Session.HandleInput")
		return
	}
	s.buffer = b
	s.send(s.ActiveEndpoint(), "console", b)
}

func (s *Session) handleResponse(resp protocol.Response) {
	if !resp.OK() {
		log.Warn().Str("status", resp.Status).Str("description", resp.Description).Msg("peer.Session server error")
		s.notify.ServerError(resp)
		return
	}
	if s.status != StatusAwaitingLoginAck {
		log.Debug().Str("status", s.status.String()).Msg("peer.Session unexpected success")
		return
	}
	s.status = StatusLoggedIn
	observability.RecordHandshake("logged_in")
	log.Info().Str("name", s.name).Msg("peer.Session logged in")
	s.notify.LoggedIn()
}

func (s *Session) handleIntroduction(value string, from netip.AddrPort, initiator bool) {
	if from != s.server {
		observability.RecordDropped(observability.RoleClient, "not_server")
		log.Debug().Str("from", from.String()).Msg("peer.Session introduction not from server")
		return
	}
	ep, err := protocol.ParseEndpoint(value)
	if err != nil {
		observability.RecordDropped(observability.RoleClient, protocol.DropReason(err))
		log.Debug().Err(err).Str("value", value).Msg("peer.Session dropped introduction")
		return
	}

	// A repeated introduction of the established peer only means the
	// server lost our acks.
	if s.status == StatusEstablished && ep.Name == s.remote && ep.Addr == s.introduced {
		if !initiator {
			s.sendAcks()
		}
		log.Debug().Str("peer", ep.Name).Bool("initiator", initiator).Msg("peer.Session duplicate introduction")
		return
	}

	pacing := s.cfg.InitiatorPacing
	if !initiator {
		if !s.sendAcks() {
			return
		}
		pacing = s.cfg.ResponderPacing
	}

	s.cancelBurst()
	s.dest = ep.Addr
	s.introduced = ep.Addr
	s.remote = ep.Name
	s.status = StatusInHandshake
	observability.RecordHandshake("introduced")
	log.Info().
		Str("peer", ep.Name).
		Str("addr", ep.Addr.String()).
		Bool("initiator", initiator).
		Msg("peer.Session introduced")
	s.notify.Introduced(ep, initiator)

	shake, err := protocol.Encode(protocol.KeyTalkShake, s.name)
	if err != nil {
		log.Error().Err(err).Msg("peer.Session encode talk-shake")
		return
	}
	s.buffer = shake
	s.burstPacing = pacing
	s.burstStep = 0
	s.burstWaited = false
	s.runBurst(s.burstGen)
}

func (s *Session) sendAcks() bool {
	ack, err := protocol.NewSuccess()
	if err != nil {
		log.Error().Err(err).Msg("peer.Session encode ack")
		return false
	}
	for i := 0; i < s.cfg.AckBurst; i++ {
		s.send(s.server, protocol.KeyResponse, ack)
	}
	return true
}

func (s *Session) handleTalkShake(value string, from netip.AddrPort) {
	if s.status != StatusInHandshake {
		log.Debug().Str("status", s.status.String()).Str("from", from.String()).Msg("peer.Session talk-shake ignored")
		return
	}
	if from != s.dest {
		if from.Addr() != s.dest.Addr() {
			observability.RecordDropped(observability.RoleClient, "shake_wrong_host")
			log.Debug().Str("from", from.String()).Str("dest", s.dest.String()).Msg("peer.Session talk-shake from unexpected host")
			return
		}
		log.Info().Str("introduced", s.dest.String()).Str("observed", from.String()).Msg("peer.Session adopting observed port")
		s.dest = from
	}
	name := strings.TrimSpace(value)
	if name == "" {
		name = s.remote
	}
	s.status = StatusEstablished
	observability.RecordHandshake("established")
	log.Info().Str("peer", name).Str("addr", s.dest.String()).Msg("peer.Session channel established")
	s.notify.Established(protocol.Endpoint{Name: name, Addr: s.dest})
}

// runBurst sends every step whose delay already elapsed and arms a timer
// for the next delayed one.
func (s *Session) runBurst(gen int) {
	if gen != s.burstGen {
		return
	}
	s.burstTimer = nil
	for s.burstStep < len(s.burstPacing) {
		if d := s.burstPacing[s.burstStep]; d > 0 && !s.burstWaited {
			s.burstWaited = true
			s.burstTimer = s.sched.AfterFunc(d, func() { s.runBurst(gen) })
			return
		}
		s.burstWaited = false
		s.burstStep++
		s.send(s.dest, protocol.KeyTalkShake, s.buffer)
	}
}

func (s *Session) cancelBurst() {
	s.burstGen++
	if s.burstTimer != nil {
		s.burstTimer.Stop()
		s.burstTimer = nil
	}
}

func (s *Session) armLogin() {
	if s.loginLeft <= 0 {
		return
	}
	s.loginTimer = s.sched.AfterFunc(s.cfg.LoginRetryTimeout, s.loginRetry)
}

func (s *Session) loginRetry() {
	s.loginTimer = nil
	s.loginLeft--
	to := s.ActiveEndpoint()
	log.Debug().Str("to", to.String()).Str("status", s.status.String()).Msg("peer.Session login retransmit")
	s.send(to, "retransmit", s.buffer)
	s.armLogin()
}

func (s *Session) fromPeer(from netip.AddrPort) bool {
	dest, ok := s.Destination()
	return ok && from == dest
}

func (s *Session) send(to netip.AddrPort, label protocol.Key, b []byte) {
	err := s.out.Send(b, to)
	observability.RecordSent(observability.RoleClient, string(label), err == nil)
	if err != nil {
		log.Warn().Err(err).Str("to", to.String()).Str("key", string(label)).Msg("peer.Session send")
	}
}
