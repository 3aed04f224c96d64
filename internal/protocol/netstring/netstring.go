package netstring

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrIncomplete reports a buffer that ends before a well-formed frame
	// does. Callers retry after more bytes arrive.
	ErrIncomplete = errors.New("netstring: incomplete frame")

	// ErrMalformed reports a structural violation. The stream cannot be
	// resynchronized past it.
	ErrMalformed = errors.New("netstring: malformed frame")
)

// maxLengthDigits bounds the decimal prefix; 18 digits stay inside int64.
const maxLengthDigits = 18

// Limits constrains decode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 8 * 1024 * 1024,
	}
}

// Encode frames msg as ASCII(len) ':' msg ','. Length counts bytes, not runes.
func Encode(msg string) []byte {
	n := len(msg)
	out := make([]byte, 0, n+maxLengthDigits+2)
	out = strconv.AppendInt(out, int64(n), 10)
	out = append(out, ':')
	out = append(out, msg...)
	out = append(out, ',')
	return out
}

// Decode extracts one frame from the front of buf and returns the message
// with the unconsumed remainder. ErrIncomplete means buf is a prefix of a
// valid frame; everything else wraps ErrMalformed.
func Decode(buf []byte, limits Limits) (string, []byte, error) {
	i := 0
	for i < len(buf) && buf[i] >= '0' && buf[i] <= '9' {
		i++
	}
	switch {
	case i == 0 && len(buf) == 0:
		return "", buf, ErrIncomplete
	case i == 0:
		return "", buf, fmt.Errorf("%w: length prefix missing, got 0x%02x", ErrMalformed, buf[0])
	case i > maxLengthDigits:
		return "", buf, fmt.Errorf("%w: length prefix too long (%d digits)", ErrMalformed, i)
	case i == len(buf):
		return "", buf, ErrIncomplete
	}
	if buf[i] != ':' {
		return "", buf, fmt.Errorf("%w: missing ':' after length, got 0x%02x", ErrMalformed, buf[i])
	}

	length, err := strconv.Atoi(string(buf[:i]))
	if err != nil {
		return "", buf, fmt.Errorf("%w: length prefix: %v", ErrMalformed, err)
	}
	if limits.MaxFrameBytes > 0 && length > limits.MaxFrameBytes {
		return "", buf, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrMalformed, length, limits.MaxFrameBytes)
	}

	body := i + 1
	end := body + length
	if len(buf) < end+1 {
		return "", buf, ErrIncomplete
	}
	if buf[end] != ',' {
		return "", buf, fmt.Errorf("%w: missing ',' terminator, got 0x%02x", ErrMalformed, buf[end])
	}
	return string(buf[body:end]), buf[end+1:], nil
}
