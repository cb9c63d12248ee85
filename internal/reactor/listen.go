package reactor

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"syscall"
)

// Client port range used when no local port is configured.
const (
	RandomPortLow  = 8196
	RandomPortHigh = 28196
)

var ErrNotIPv4 = errors.New("reactor: address is not ipv4")

// Listen binds an IPv4 UDP socket on all interfaces. Port 0 picks an
// ephemeral port.
func Listen(port int) (*net.UDPConn, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("reactor: invalid port %d", port)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("reactor: bind udp4 port %d: %w", port, err)
	}
	return conn, nil
}

// ListenRandom binds a port drawn from [RandomPortLow, RandomPortHigh),
// drawing again while the port is in use.
func ListenRandom(rng *rand.Rand, attempts int) (*net.UDPConn, error) {
	if attempts <= 0 {
		attempts = 64
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := RandomPortLow + rng.Intn(RandomPortHigh-RandomPortLow)
		conn, err := Listen(port)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reactor: no free port after %d attempts: %w", attempts, lastErr)
}

// Resolve looks up host:port as an IPv4 UDP address.
func Resolve(host, port string) (netip.AddrPort, error) {
	ua, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, port))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("reactor: resolve %s:%s: %w", host, port, err)
	}
	ap := ua.AddrPort()
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrNotIPv4, ap)
	}
	if ap.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("reactor: resolve %s:%s: zero port", host, port)
	}
	return netip.AddrPortFrom(ip, ap.Port()), nil
}
