package protocol

import "net/netip"

// Key is the text before the first ':' of a line.
type Key string

const (
	KeyLogin        Key = "login"
	KeyLoginRequest Key = "login-request"
	KeyGetUserList  Key = "get-user-list"
	KeyTalkTo       Key = "talk-to"
	KeyResponse     Key = "response"
	KeyUserList     Key = "user-list"
	KeyUserInfo     Key = "user-info"
	KeyOpenChannel  Key = "open-channel"
	KeyTalkShake    Key = "talk-shake"
)

const (
	// MaxLineLen bounds every single-line message except user-list, newline included.
	MaxLineLen = 1023
	// MaxDatagramSize is the largest UDP payload carried over IPv4.
	MaxDatagramSize = 65507
)

// Response status words.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response descriptions sent with StatusError.
const (
	DescNotLoggedIn    = "not logined user"
	DescNotOnline      = "user is not online"
	DescUnknownMessage = "unknown message"
	DescDestTimeout    = "dest not responded"
	DescBusy           = "user is busy"
	DescInvalidName    = "invalid user name"
)

// Message is one decoded datagram.
type Message struct {
	Key   Key
	Value string
}

// Endpoint is the "<name> <ipv4>:<port>" sub-field of user-info and open-channel.
type Endpoint struct {
	Name string
	Addr netip.AddrPort
}

// Response is the value of a response line.
type Response struct {
	Status      string
	Description string
}

// OK reports whether the response carries the success status.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Known reports whether k is one of the protocol keys.
func (k Key) Known() bool {
	switch k {
	case KeyLogin, KeyLoginRequest, KeyGetUserList, KeyTalkTo, KeyResponse,
		KeyUserList, KeyUserInfo, KeyOpenChannel, KeyTalkShake:
		return true
	}
	return false
}

// MetricLabel bounds label cardinality: unknown keys collapse to "unknown".
func (k Key) MetricLabel() string {
	if k.Known() {
		return string(k)
	}
	return "unknown"
}
