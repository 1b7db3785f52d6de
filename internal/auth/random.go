package auth

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

const (
	otpCodeMin   = 100000
	otpCodeSpace = 900000 // 100000..999999 inclusive
)

// RandomBytes reads n bytes from the given source.
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// RandomNumericCode returns a uniformly distributed 6-digit code.
// Values in the biased tail of the uint32 range are rejected and redrawn.
func RandomNumericCode(r io.Reader) (string, error) {
	const limit = (1 << 32) / otpCodeSpace * otpCodeSpace

	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) >= limit {
			continue
		}
		return strconv.Itoa(otpCodeMin + int(v%otpCodeSpace)), nil
	}
}

// randomIndex returns a uniform index in [0, n) for n <= 256.
func randomIndex(r io.Reader, n int) (int, error) {
	limit := 256 / n * n
	var buf [1]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, fmt.Errorf("failed to read random byte: %w", err)
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n, nil
		}
	}
}
