package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_Overflow(t *testing.T) {
	_, err := MaxAmount().Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MaxAmount().MulUint64(2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = NewAmount(1).Sub(NewAmount(2))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestAmount_DivTruncates(t *testing.T) {
	assert.Equal(t, "3", NewAmount(10).DivUint64(3).String())
	assert.True(t, NewAmount(10).DivUint64(0).IsZero())
}

func TestParseEther(t *testing.T) {
	a, err := ParseEther("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", a.String())
	assert.Equal(t, "0.01", a.Ether())

	_, err = ParseEther("0.0000000000000000001")
	assert.ErrorContains(t, err, "fractional digits")

	_, err = ParseEther("-1")
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestAmount_TextForms(t *testing.T) {
	var a Amount
	require.NoError(t, a.UnmarshalText([]byte("1.5 ether")))
	assert.Equal(t, "1.5", a.Ether())

	require.NoError(t, a.UnmarshalText([]byte("42")))
	assert.Equal(t, "42", a.String())

	b, err := json.Marshal(NewAmount(7))
	require.NoError(t, err)
	assert.JSONEq(t, `"7"`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`7`), &a), "numbers must be quoted")
}

func TestMulDivUp(t *testing.T) {
	for _, tc := range []struct{ a, b, d, want uint64 }{
		{50, 1000, 10000, 5},
		{51, 1000, 10000, 6},
		{0, 1000, 10000, 0},
		{1, 1, 1, 1},
	} {
		got, err := MulDivUp(tc.a, tc.b, tc.d)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%d*%d/%d", tc.a, tc.b, tc.d)
	}
	_, err := MulDivUp(1, 1, 0)
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress(" 0x00000000000000000000000000000000000000a1 ")
	require.NoError(t, err)
	assert.Equal(t, byte(0xa1), a[19])

	_, err = ParseAddress("0x123")
	assert.Error(t, err)
}
