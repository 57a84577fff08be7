package mqtt3

import (
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed    = errors.New("malformed variable byte integer")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455 // 0x0FFFFFFF
	maxVarintBytes    = 4
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// validateString checks the constraints MQTT places on UTF-8 string fields.
func validateString(s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}

	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}

	for i := range len(s) {
		if s[i] == 0 {
			return ErrStringContainsNull
		}
	}

	return nil
}

// appendUint16 appends a big-endian 16-bit integer.
func appendUint16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// appendString appends a UTF-8 string with 2-byte length prefix.
func appendString(dst []byte, s string) ([]byte, error) {
	if err := validateString(s); err != nil {
		return dst, err
	}

	dst = appendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

// appendBinary appends binary data with 2-byte length prefix.
func appendBinary(dst []byte, data []byte) ([]byte, error) {
	if len(data) > maxUint16 {
		return dst, ErrBinaryTooLong
	}

	dst = appendUint16(dst, uint16(len(data)))
	return append(dst, data...), nil
}

// readUint16 reads a big-endian 16-bit integer at the start of b.
func readUint16(b []byte) (uint16, bool) {
	if len(b) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

// readString reads a length-prefixed string at the start of b and returns
// the string and the rest of the slice.
func readString(b []byte) (string, []byte, bool) {
	length, ok := readUint16(b)
	if !ok || len(b) < 2+int(length) {
		return "", b, false
	}
	return string(b[2 : 2+int(length)]), b[2+int(length):], true
}

// decodeString reads a UTF-8 string with 2-byte length prefix from r.
func decodeString(r io.Reader) (string, int, error) {
	var lenBuf [2]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		return "", n, err
	}

	length := binary.BigEndian.Uint16(lenBuf[:])
	if length == 0 {
		return "", n, nil
	}

	buf := make([]byte, length)
	n2, err := io.ReadFull(r, buf)
	n += n2
	if err != nil {
		return "", n, err
	}

	if !utf8.Valid(buf) {
		return "", n, ErrInvalidUTF8
	}

	return string(buf), n, nil
}

// appendVarint appends a variable byte integer.
func appendVarint(dst []byte, value uint32) ([]byte, error) {
	if value > maxVarint {
		return dst, ErrVarintTooLarge
	}

	for {
		encodedByte := byte(value & varintValueMask)
		value >>= 7

		if value > 0 {
			encodedByte |= varintContinueBit
		}

		dst = append(dst, encodedByte)

		if value == 0 {
			return dst, nil
		}
	}
}

// encodeVarint writes a variable byte integer to w.
// Returns the number of bytes written.
func encodeVarint(w io.Writer, value uint32) (int, error) {
	var buf [maxVarintBytes]byte
	out, err := appendVarint(buf[:0], value)
	if err != nil {
		return 0, err
	}
	return w.Write(out)
}

// decodeVarint reads a variable byte integer from r.
// Returns the value, number of bytes read, and any error.
func decodeVarint(r io.Reader) (uint32, int, error) {
	var acc varintAccumulator
	var buf [1]byte
	bytesRead := 0

	for {
		n, err := io.ReadFull(r, buf[:])
		bytesRead += n
		if err != nil {
			return 0, bytesRead, err
		}

		done, err := acc.add(buf[0])
		if err != nil {
			return 0, bytesRead, err
		}
		if done {
			return acc.value, bytesRead, nil
		}
	}
}

// varintAccumulator decodes a variable byte integer one byte at a time, so
// decoding can pause between bytes when the stream runs dry.
type varintAccumulator struct {
	value      uint32
	multiplier uint32
	count      int
}

func (a *varintAccumulator) reset() {
	*a = varintAccumulator{}
}

// add consumes one encoded byte and reports whether the integer is complete.
func (a *varintAccumulator) add(b byte) (bool, error) {
	if a.count == 0 {
		a.multiplier = 1
	}
	a.count++
	if a.count > maxVarintBytes {
		return false, ErrVarintMalformed
	}

	a.value += uint32(b&varintValueMask) * a.multiplier
	if b&varintContinueBit == 0 {
		return true, nil
	}

	a.multiplier *= 128
	return false, nil
}

// varintSize returns the number of bytes needed to encode a variable byte integer.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}
