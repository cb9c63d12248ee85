package protocol

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ParseEndpoint parses "<name> <ipv4>:<port>". The value splits on the first
// space, then on the first ':' of the remainder.
func ParseEndpoint(value string) (Endpoint, error) {
	name, hostport, ok := strings.Cut(value, " ")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: missing address in %q", ErrMalformedAddress, value)
	}
	host, port, ok := strings.Cut(hostport, ":")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: missing port in %q", ErrMalformedAddress, hostport)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return Endpoint{}, fmt.Errorf("%w: %q is not an ipv4 address", ErrMalformedAddress, host)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrMalformedAddress, port)
	}
	return Endpoint{Name: name, Addr: netip.AddrPortFrom(ip, uint16(p))}, nil
}

// ParseResponse splits a response value into its status word and description.
func ParseResponse(value string) Response {
	status, desc, _ := strings.Cut(strings.TrimSpace(value), " ")
	return Response{Status: status, Description: strings.TrimSpace(desc)}
}

// ParseUserList returns the names carried by a user-list value.
func ParseUserList(value string) []string {
	return strings.Fields(value)
}
