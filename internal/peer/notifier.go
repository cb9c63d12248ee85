package peer

import (
	"fmt"
	"io"
	"net/netip"
	"strings"
	"sync"

	"github.com/danmuck/punchctl/internal/protocol"
)

// Notifier receives session events for the application layer.
type Notifier interface {
	LoggedIn()
	UserList(names []string)
	ServerError(resp protocol.Response)
	Introduced(ep protocol.Endpoint, initiator bool)
	Established(ep protocol.Endpoint)
	Payload(from netip.AddrPort, text string)
}

// ConsoleNotifier prints session events for an interactive user.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (c *ConsoleNotifier) LoggedIn() {
	c.printf("* logged in\n")
}

func (c *ConsoleNotifier) UserList(names []string) {
	c.printf("* online: %s\n", strings.Join(names, " "))
}

func (c *ConsoleNotifier) ServerError(resp protocol.Response) {
	c.printf("* server: %s %s\n", resp.Status, resp.Description)
}

func (c *ConsoleNotifier) Introduced(ep protocol.Endpoint, initiator bool) {
	if initiator {
		c.printf("* connecting to %s at %s\n", ep.Name, ep.Addr)
		return
	}
	c.printf("* %s at %s wants to talk\n", ep.Name, ep.Addr)
}

func (c *ConsoleNotifier) Established(ep protocol.Endpoint) {
	c.printf("* channel open with %s at %s\n", ep.Name, ep.Addr)
}

func (c *ConsoleNotifier) Payload(from netip.AddrPort, text string) {
	c.printf("%s> %s\n", from, text)
}

func (c *ConsoleNotifier) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) LoggedIn() {}
func (NopNotifier) UserList([]string) {}
func (NopNotifier) ServerError(protocol.Response) {}
func (NopNotifier) Introduced(protocol.Endpoint, bool) {}
func (NopNotifier) Established(protocol.Endpoint) {}
func (NopNotifier) Payload(netip.AddrPort, string) {}
