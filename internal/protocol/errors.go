package protocol

import "errors"

var (
	ErrMissingNewline   = errors.New("protocol: missing trailing newline")
	ErrMissingSeparator = errors.New("protocol: missing key separator")
	ErrMalformedAddress = errors.New("protocol: malformed address")
	ErrLineTooLong      = errors.New("protocol: line too long")
	ErrTruncated        = errors.New("protocol: truncated datagram")
	ErrInvalidKey       = errors.New("protocol: invalid key")
	ErrInvalidValue     = errors.New("protocol: invalid value")
)

// DropReason maps a decode or parse error to a short metric label.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingNewline):
		return "missing_newline"
	case errors.Is(err, ErrMissingSeparator):
		return "missing_separator"
	case errors.Is(err, ErrMalformedAddress):
		return "malformed_address"
	case errors.Is(err, ErrTruncated):
		return "truncated"
	default:
		return "other"
	}
}
