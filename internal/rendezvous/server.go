package rendezvous

import (
	"math/rand"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/punchctl/internal/directory"
	"github.com/danmuck/punchctl/internal/observability"
	"github.com/danmuck/punchctl/internal/protocol"
	"github.com/danmuck/punchctl/internal/protocol/session"
	"github.com/danmuck/punchctl/internal/reactor"
)

// Option customizes a Server.
type Option func(*Server)

// WithClock sets the time source used for directory timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRand sets the source used for retry jitter.
func WithRand(rng *rand.Rand) Option {
	return func(s *Server) { s.rng = rng }
}

// WithNegotiationIDs replaces the uuid source used to tag brokering cycles.
func WithNegotiationIDs(next func() string) Option {
	return func(s *Server) { s.newID = next }
}

type Server struct {
	cfg   session.Config
	dir   *directory.Directory
	sched reactor.Scheduler
	out   reactor.Sender
	now   func() time.Time
	rng   *rand.Rand
	newID func() string
}

var _ reactor.Handler = (*Server)(nil)

func NewServer(cfg session.Config, sched reactor.Scheduler, out reactor.Sender, opts ...Option) (*Server, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		sched: sched,
		out:   out,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dir = directory.New(s.now)
	return s, nil
}

// Directory exposes the registry. Callers must stay on the reactor goroutine.
func (s *Server) Directory() *directory.Directory {
	return s.dir
}

// Snapshot copies the registry for reporting.
func (s *Server) Snapshot() []directory.Snapshot {
	return s.dir.Snapshot()
}

// HandleDatagram routes one inbound datagram.
func (s *Server) HandleDatagram(data []byte, from netip.AddrPort) {
	msg, err := protocol.Decode(data)
	if err != nil {
		observability.RecordDropped(observability.RoleServer, protocol.DropReason(err))
		log.Debug().Err(err).Str("from", from.String()).Msg("rendezvous.Server dropped datagram")
		return
	}
	observability.RecordReceived(observability.RoleServer, msg.Key.MetricLabel())

	switch msg.Key {
	case protocol.KeyLogin, protocol.KeyLoginRequest:
		s.handleLogin(msg.Value, from)
	case protocol.KeyGetUserList:
		s.handleUserList(from)
	case protocol.KeyTalkTo:
		s.handleTalkTo(msg.Value, from)
	case protocol.KeyResponse:
		s.handleResponse(msg.Value, from)
	default:
		observability.RecordProtocolError("unknown_message")
		s.replyError(from, protocol.DescUnknownMessage)
	}
}

func (s *Server) handleLogin(value string, from netip.AddrPort) {
	name := strings.TrimSpace(value)
	// Names are space separated in user-list and user-info.
	if name == "" || strings.ContainsAny(name, " \t") {
		log.Debug().Str("from", from.String()).Str("name", value).Msg("rendezvous.Server.login rejected name")
		s.replyInvalidName(from)
		return
	}
	rec, created, err := s.dir.Upsert(name, from)
	if err != nil {
		log.Debug().Err(err).Str("from", from.String()).Msg("rendezvous.Server.login upsert")
		s.replyInvalidName(from)
		return
	}
	observability.SetDirectoryPeers(s.dir.Len())
	log.Info().
		Str("peer", rec.Name).
		Str("addr", rec.Addr.String()).
		Bool("created", created).
		Msg("rendezvous.Server.login registered")
	s.reply(from, protocol.KeyResponse, func() ([]byte, error) { return protocol.NewSuccess() })
}

func (s *Server) handleUserList(from netip.AddrPort) {
	if _, ok := s.dir.FindByAddress(from); !ok {
		s.replyNotLoggedIn(from)
		return
	}
	s.reply(from, protocol.KeyUserList, func() ([]byte, error) {
		return protocol.EncodeUserList(s.dir.Names())
	})
}

func (s *Server) handleTalkTo(value string, from netip.AddrPort) {
	requester, ok := s.dir.FindByAddress(from)
	if !ok {
		s.replyNotLoggedIn(from)
		return
	}
	target, ok := s.dir.FindByName(strings.TrimSpace(value))
	if !ok {
		observability.RecordProtocolError("not_online")
		s.replyError(from, protocol.DescNotOnline)
		return
	}
	targetInfo := protocol.Endpoint{Name: target.Name, Addr: target.Addr}

	if target.AwaitingAck {
		if target.PendingPeer == requester.Name {
			observability.RecordOpenChannel(observability.OpenChannelDuplicate)
			log.Debug().
				Str("requester", requester.Name).
				Str("target", target.Name).
				Str("negotiation", target.NegotiationID).
				Msg("rendezvous.Server.talkTo duplicate request")
			s.sendEndpoint(from, protocol.KeyUserInfo, targetInfo)
			return
		}
		observability.RecordOpenChannel(observability.OpenChannelBusy)
		observability.RecordProtocolError("busy")
		s.replyError(from, protocol.DescBusy)
		return
	}

	target.AwaitingAck = true
	target.PendingPeer = requester.Name
	target.RetryCount = 0
	target.NegotiationID = s.newID()
	target.RetryTimeout = s.cfg.RetryDelay(1, s.rng)

	log.Info().
		Str("requester", requester.Name).
		Str("target", target.Name).
		Str("negotiation", target.NegotiationID).
		Dur("retry_timeout", target.RetryTimeout).
		Msg("rendezvous.Server.talkTo brokering")

	s.sendEndpoint(from, protocol.KeyUserInfo, targetInfo)
	s.sendEndpoint(target.Addr, protocol.KeyOpenChannel, protocol.Endpoint{Name: requester.Name, Addr: requester.Addr})
	observability.RecordOpenChannel(observability.OpenChannelSent)
	s.armRetry(target)
}

func (s *Server) handleResponse(value string, from netip.AddrPort) {
	rec, ok := s.dir.FindByAddress(from)
	if !ok {
		s.replyNotLoggedIn(from)
		return
	}
	if !rec.AwaitingAck {
		log.Debug().Str("peer", rec.Name).Str("value", value).Msg("rendezvous.Server.response ignored")
		return
	}
	resp := protocol.ParseResponse(value)
	if !resp.OK() {
		log.Warn().
			Str("peer", rec.Name).
			Str("status", resp.Status).
			Str("description", resp.Description).
			Msg("rendezvous.Server.response non-success ack")
	}
	rec.ReleaseTimer()
	log.Info().
		Str("peer", rec.Name).
		Str("requester", rec.PendingPeer).
		Str("negotiation", rec.NegotiationID).
		Int("retries", rec.RetryCount).
		Msg("rendezvous.Server.response acked")
	rec.ResetNegotiation()
	observability.RecordOpenChannel(observability.OpenChannelAcked)
}

func (s *Server) armRetry(target *directory.PeerRecord) {
	name, id := target.Name, target.NegotiationID
	t := s.sched.AfterFunc(target.RetryTimeout, func() { s.retransmit(name, id) })
	if err := target.ArmTimer(t); err != nil {
		t.Stop()
		log.Error().Err(err).Str("peer", name).Msg("rendezvous.Server.armRetry")
	}
}

func (s *Server) retransmit(name, id string) {
	target, ok := s.dir.FindByName(name)
	if !ok || !target.AwaitingAck || target.NegotiationID != id {
		return
	}
	target.ReleaseTimer()
	target.RetryCount++

	requester, ok := s.dir.FindByName(target.PendingPeer)
	if target.RetryCount > s.cfg.MaxRetries || !ok {
		log.Warn().
			Str("peer", target.Name).
			Str("requester", target.PendingPeer).
			Str("negotiation", id).
			Int("attempts", target.RetryCount).
			Msg("rendezvous.Server.retransmit gave up")
		target.ResetNegotiation()
		observability.RecordOpenChannel(observability.OpenChannelTimeout)
		if ok {
			s.replyError(requester.Addr, protocol.DescDestTimeout)
		}
		return
	}

	observability.RecordOpenChannel(observability.OpenChannelRetransmit)
	log.Debug().
		Str("peer", target.Name).
		Str("negotiation", id).
		Int("retry", target.RetryCount).
		Msg("rendezvous.Server.retransmit open-channel")
	s.sendEndpoint(target.Addr, protocol.KeyOpenChannel, protocol.Endpoint{Name: requester.Name, Addr: requester.Addr})
	target.RetryTimeout = s.cfg.RetryDelay(target.RetryCount+1, s.rng)
	s.armRetry(target)
}

func (s *Server) replyNotLoggedIn(to netip.AddrPort) {
	observability.RecordProtocolError("not_logged_in")
	s.replyError(to, protocol.DescNotLoggedIn)
}

func (s *Server) replyInvalidName(to netip.AddrPort) {
	observability.RecordProtocolError("bad_name")
	s.replyError(to, protocol.DescInvalidName)
}

func (s *Server) replyError(to netip.AddrPort, description string) {
	s.reply(to, protocol.KeyResponse, func() ([]byte, error) { return protocol.NewError(description) })
}

func (s *Server) sendEndpoint(to netip.AddrPort, key protocol.Key, ep protocol.Endpoint) {
	s.reply(to, key, func() ([]byte, error) { return protocol.NewEndpointMessage(key, ep) })
}

func (s *Server) reply(to netip.AddrPort, key protocol.Key, encode func() ([]byte, error)) {
	b, err := encode()
	if err != nil {
		observability.RecordProtocolError("encode")
		log.Error().Err(err).Str("key", string(key)).Str("to", to.String()).Msg("rendezvous.Server encode")
		return
	}
	err = s.out.Send(b, to)
	observability.RecordSent(observability.RoleServer, key.MetricLabel(), err == nil)
	if err != nil {
		log.Warn().Err(err).Str("key", string(key)).Str("to", to.String()).Msg("rendezvous.Server send")
	}
}
