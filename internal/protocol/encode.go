package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Encode renders "<key>: <value>\n". An empty value renders as "<key>:\n".
func Encode(key Key, value string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if strings.ContainsRune(value, '\n') {
		return nil, fmt.Errorf("%w: newline in %s value", ErrInvalidValue, key)
	}
	size := len(key) + 2
	if value != "" {
		size += 1 + len(value)
	}
	if size > MaxLineLen {
		return nil, fmt.Errorf("%w: %s line is %d bytes", ErrLineTooLong, key, size)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, key...)
	buf = append(buf, ':')
	if value != "" {
		buf = append(buf, ' ')
		buf = append(buf, value...)
	}
	buf = append(buf, '\n')
	return buf, nil
}

// EncodeUserList renders "user-list: <n1> <n2> ...\n". The buffer grows with
// the directory; only the datagram limit applies.
func EncodeUserList(names []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(KeyUserList) + 2 + 16*len(names))
	buf.WriteString(string(KeyUserList))
	buf.WriteByte(':')
	for _, name := range names {
		buf.WriteByte(' ')
		buf.WriteString(name)
	}
	buf.WriteByte('\n')
	if buf.Len() > MaxDatagramSize {
		return nil, fmt.Errorf("%w: user-list is %d bytes", ErrLineTooLong, buf.Len())
	}
	return buf.Bytes(), nil
}

// Line frames free-form console text as one datagram, appending the newline
// when missing.
func Line(text string) ([]byte, error) {
	text = strings.TrimSuffix(text, "\n")
	if strings.ContainsRune(text, '\n') {
		return nil, fmt.Errorf("%w: embedded newline", ErrInvalidValue)
	}
	if len(text)+1 > MaxLineLen {
		return nil, fmt.Errorf("%w: console line is %d bytes", ErrLineTooLong, len(text)+1)
	}
	return append([]byte(text), '\n'), nil
}

func validateKey(key Key) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(string(key), ":\n ") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
