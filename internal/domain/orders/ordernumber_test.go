package orders

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumberGenerator_Format(t *testing.T) {
	g := NewOrderNumberGenerator("secret")
	g.now = func() time.Time { return time.Date(2026, 10, 16, 23, 30, 0, 0, time.FixedZone("", -3*3600)) }
	re := regexp.MustCompile(`^SHOP-261017-[2-9A-HJKMNP-Z]{7}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		n := g.Generate(42)
		require.Regexp(t, re, n, "date block is the UTC day")
		require.True(t, ValidOrderNumber(n), n)
		seen[n] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestValidOrderNumber(t *testing.T) {
	n := NewOrderNumberGenerator("secret").Generate(7)
	require.True(t, ValidOrderNumber(n))

	// Any single substituted character in the tail is caught.
	tail := len(n) - 7
	for i := tail; i < len(n); i++ {
		for _, c := range []byte(numberAlphabet) {
			if c == n[i] {
				continue
			}
			typo := n[:i] + string(c) + n[i+1:]
			assert.False(t, ValidOrderNumber(typo), typo)
		}
	}

	for _, bad := range []string{
		"",
		"SHOP-AAAA-BBBB",
		"shop" + n[4:],
		"SHOP-261399-" + n[len(n)-7:],
		n + "X",
		n[:len(n)-1] + "0",
	} {
		assert.False(t, ValidOrderNumber(bad), bad)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod(" Gateway_A ")
	require.NoError(t, err)
	assert.Equal(t, GatewayA, m)

	m, err = ParsePaymentMethod("manual")
	require.NoError(t, err)
	assert.Equal(t, Manual, m)

	_, err = ParsePaymentMethod("bitcoin")
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)
}

func TestOrder_QuantitiesAggregatesDuplicateLines(t *testing.T) {
	o := &Order{Items: []Item{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 3},
	}}
	assert.Equal(t, map[int64]int{1: 5, 2: 1}, o.Quantities())
}
