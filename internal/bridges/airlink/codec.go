package airlink

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const (
	// maxFrameSize is the largest frame accepted from or sent to the modem,
	// excluding the line terminator.
	maxFrameSize = 4096

	// frameSeparator splits the phone number from the message text.
	frameSeparator = ':'
)

// phoneNumberPattern accepts E.164-like numbers: optional '+', 3 to 15 digits.
var phoneNumberPattern = regexp.MustCompile(`^\+?[0-9]{3,15}$`)

// ValidatePhoneNumber checks that number looks like an E.164 number.
func ValidatePhoneNumber(number string) error {
	if !phoneNumberPattern.MatchString(number) {
		return fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, number)
	}
	return nil
}

// EncodeFrame encodes an outbound SMS as a newline-terminated frame.
//
// Returns ErrInvalidPhoneNumber, ErrEmptyMessage or ErrFrameTooLarge when
// the message cannot be sent.
func EncodeFrame(m Message) ([]byte, error) {
	if err := ValidatePhoneNumber(m.PhoneNumber); err != nil {
		return nil, err
	}
	if m.Message == "" {
		return nil, ErrEmptyMessage
	}

	var buf bytes.Buffer
	buf.Grow(len(m.PhoneNumber) + len(m.Message) + 2)
	buf.WriteString(m.PhoneNumber)
	buf.WriteByte(frameSeparator)
	escapeInto(&buf, m.Message)

	if buf.Len() > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, buf.Len(), maxFrameSize)
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DecodeFrame decodes one inbound frame. Trailing CR/LF is ignored.
//
// The sender is whatever precedes the first separator and only has to be
// non-blank: networks deliver alphanumeric sender IDs, short codes and
// formatted numbers. The message text may be empty.
func DecodeFrame(frame []byte) (Message, error) {
	line := strings.TrimRight(string(frame), "\r\n")

	sep := strings.IndexByte(line, frameSeparator)
	if sep < 0 {
		return Message{}, fmt.Errorf("%w: missing separator", ErrInvalidFrame)
	}

	sender := line[:sep]
	if strings.TrimSpace(sender) == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrInvalidFrame)
	}

	return Message{PhoneNumber: sender, Message: unescape(line[sep+1:])}, nil
}

func escapeInto(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(s[i])
		}
	}
}

// unescape reverses escapeInto. A backslash that does not start a known
// escape is kept as text.
func unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}
