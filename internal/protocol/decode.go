package protocol

import "strings"

// Decode parses a single datagram. data is never modified and may be reused
// by the caller once Decode returns.
func Decode(data []byte) (Message, error) {
	if len(data) > MaxDatagramSize {
		return Message{}, ErrTruncated
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return Message{}, ErrMissingNewline
	}
	line := string(data[:len(data)-1])
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return Message{}, ErrMissingSeparator
	}
	return Message{
		Key:   Key(key),
		Value: strings.TrimLeft(value, " "),
	}, nil
}
