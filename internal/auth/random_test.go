package auth

import (
	"bytes"
	"crypto/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomNumericCode_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := RandomNumericCode(rand.Reader)
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestRandomNumericCode_Deterministic(t *testing.T) {
	// 0x00000000 maps to the bottom of the range
	code, err := RandomNumericCode(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, "100000", code)
}

func TestRandomNumericCode_RejectsBiasedTail(t *testing.T) {
	// 0xFFFFFFFF is above the rejection limit, so the next draw is used
	src := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 1})
	code, err := RandomNumericCode(src)
	require.NoError(t, err)
	assert.Equal(t, "100001", code)
}

func TestRandomNumericCode_SourceExhausted(t *testing.T) {
	_, err := RandomNumericCode(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(rand.Reader, 32)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	_, err = RandomBytes(bytes.NewReader(nil), 1)
	assert.Error(t, err)
}
