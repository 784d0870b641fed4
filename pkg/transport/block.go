package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Block errors
var (
	// ErrNotBlock indicates data does not start with '#'
	ErrNotBlock = errors.New("not a definite-length block")

	// ErrBlockTruncated indicates fewer payload bytes than the header announced
	ErrBlockTruncated = errors.New("block truncated")

	// ErrBlockLength indicates a length field that is not a plain decimal
	// number or exceeds MaxBlockLength
	ErrBlockLength = errors.New("invalid block length")
)

// MaxBlockLength bounds the payload a single block may announce
const MaxBlockLength = 256 << 20

// IsBlock reports whether data starts an IEEE-488.2 arbitrary block
func IsBlock(data []byte) bool {
	return len(data) > 0 && data[0] == '#'
}

// EncodeBlock wraps payload as "#<digits><length><payload>"
func EncodeBlock(payload []byte) []byte {
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(length)+len(payload))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	out = append(out, payload...)
	return out
}

// blockHeader returns the header size and payload length of a definite
// length block. An indefinite "#0" block runs to the end of data minus the
// terminator.
func blockHeader(data []byte) (header, length int, err error) {
	if !IsBlock(data) {
		return 0, 0, ErrNotBlock
	}
	if len(data) < 2 {
		return 0, 0, ErrBlockTruncated
	}

	digits := int(data[1] - '0')
	if digits < 0 || digits > 9 {
		return 0, 0, fmt.Errorf("invalid block digit count %q", data[1])
	}
	if digits == 0 {
		end := len(data)
		if end > 2 && data[end-1] == '\n' {
			end--
		}
		return 2, end - 2, nil
	}

	if len(data) < 2+digits {
		return 0, 0, ErrBlockTruncated
	}
	length, err = parseBlockLength(data[2 : 2+digits])
	if err != nil {
		return 0, 0, err
	}
	return 2 + digits, length, nil
}

// parseBlockLength accepts ASCII digits only; strconv would also take a sign
func parseBlockLength(field []byte) (int, error) {
	length := 0
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w %q", ErrBlockLength, field)
		}
		length = length*10 + int(c-'0')
		if length > MaxBlockLength {
			return 0, fmt.Errorf("%w %q: exceeds %d bytes", ErrBlockLength, field, MaxBlockLength)
		}
	}
	return length, nil
}

// ParseBlock returns the payload of a block. A trailing terminator after
// the payload is ignored.
func ParseBlock(data []byte) ([]byte, error) {
	header, length, err := blockHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data) < header+length {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrBlockTruncated, length, len(data)-header)
	}
	return data[header : header+length], nil
}

// DecodeReal32 converts a little-endian REAL,32 payload (the analyzers'
// FORM:BORD SWAP default) to float64 values
func DecodeReal32(payload []byte) ([]float64, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("REAL,32 payload of %d bytes is not a multiple of 4", len(payload))
	}
	values := make([]float64, len(payload)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		values[i] = float64(math.Float32frombits(bits))
	}
	return values, nil
}

// EncodeReal32 is the inverse of DecodeReal32
func EncodeReal32(values []float64) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}
