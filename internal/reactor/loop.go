package reactor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/punchctl/internal/protocol"
)

var (
	ErrLoopStopped = errors.New("reactor: loop stopped")
	ErrLoopRunning = errors.New("reactor: loop already running")
	ErrNilHandler  = errors.New("reactor: nil handler")
)

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop cancels the callback. It reports false when the callback already
	// ran or the timer was already stopped.
	Stop() bool
}

// Scheduler arms one-shot callbacks that run on the loop goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Sender writes one datagram.
type Sender interface {
	Send(b []byte, to netip.AddrPort) error
}

// Handler receives datagrams on the loop goroutine.
type Handler interface {
	HandleDatagram(data []byte, from netip.AddrPort)
}

// InputHandler receives console lines on the loop goroutine.
type InputHandler interface {
	HandleInput(line string)
}

// Config tunes a Loop. Zero values pick defaults.
type Config struct {
	Clock     clock.Clock
	QueueSize int
}

// Loop multiplexes one UDP socket, an optional console and timers onto a
// single dispatcher goroutine.
type Loop struct {
	conn  *net.UDPConn
	clock clock.Clock
	queue chan func()
	done  chan struct{}

	running  atomic.Bool
	doneOnce sync.Once
}

func New(conn *net.UDPConn, cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Loop{
		conn:  conn,
		clock: cfg.Clock,
		queue: make(chan func(), cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// LocalAddr reports the bound socket address.
func (l *Loop) LocalAddr() netip.AddrPort {
	if ua, ok := l.conn.LocalAddr().(*net.UDPAddr); ok {
		ap := ua.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}

// Now reports the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Run dispatches events until ctx is cancelled. input may be nil; when set,
// h must also implement InputHandler to receive its lines.
func (l *Loop) Run(ctx context.Context, h Handler, input io.Reader) error {
	if h == nil {
		return ErrNilHandler
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.doneOnce.Do(func() { close(l.done) })

	if ih, ok := h.(InputHandler); ok && input != nil {
		// Console reads cannot be interrupted, so this reader is not joined.
		go l.readInput(input, ih)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		// unblock readSocket
		_ = l.conn.SetReadDeadline(time.Unix(1, 0))
		return nil
	})
	g.Go(func() error {
		return l.readSocket(gctx, h)
	})
	g.Go(func() error {
		return l.dispatch(gctx)
	})

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Post queues fn for the dispatcher. It reports false once the loop stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Send writes b to the given address on the loop's socket.
func (l *Loop) Send(b []byte, to netip.AddrPort) error {
	if _, err := l.conn.WriteToUDPAddrPort(b, to); err != nil {
		return fmt.Errorf("reactor: send to %s: %w", to, err)
	}
	return nil
}

// Close releases the socket.
func (l *Loop) Close() error {
	return l.conn.Close()
}

func (l *Loop) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

func (l *Loop) readSocket(ctx context.Context, h Handler) error {
	buf := make([]byte, protocol.MaxDatagramSize+1)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("reactor.Loop.readSocket")
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		if !l.Post(func() { h.HandleDatagram(data, from) }) {
			return nil
		}
	}
}

func (l *Loop) readInput(input io.Reader, h InputHandler) {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, protocol.MaxLineLen+1), protocol.MaxDatagramSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !l.Post(func() { h.HandleInput(line) }) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("reactor.Loop.readInput")
	}
}
