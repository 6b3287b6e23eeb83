package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

func fivePercent(t *testing.T) Rate {
	t.Helper()
	rate, err := ParseRate("0.05")
	require.NoError(t, err)
	return rate
}

func TestSplitFeeKnownAmounts(t *testing.T) {
	rate := fivePercent(t)
	cases := []struct {
		gross  int64
		fee    int64
		seller int64
	}{
		{gross: 1, fee: 0, seller: 1},
		{gross: 3, fee: 0, seller: 3},
		{gross: 10, fee: 1, seller: 9},
		{gross: 99, fee: 5, seller: 94},
		{gross: 5000, fee: 250, seller: 4750},
		{gross: 123457, fee: 6173, seller: 117284},
	}
	for _, tc := range cases {
		split, err := SplitFee(tc.gross, rate)
		require.NoError(t, err)
		assert.Equal(t, tc.fee, split.PlatformFee, "fee for %d", tc.gross)
		assert.Equal(t, tc.seller, split.SellerNet, "seller for %d", tc.gross)
		assert.True(t, split.Reconciles())
	}
}

func TestSplitFeeSumsToGrossForEveryAmount(t *testing.T) {
	for _, raw := range []string{"0", "0.05", "0.029", "0.1", "0.3333", "0.99"} {
		rate, err := ParseRate(raw)
		require.NoError(t, err)
		for gross := int64(1); gross <= 20000; gross++ {
			split, err := SplitFee(gross, rate)
			require.NoError(t, err)
			if split.PlatformFee+split.SellerNet != gross || split.PlatformFee < 0 || split.SellerNet < 0 {
				t.Fatalf("rate %s gross %d produced %+v", raw, gross, split)
			}
		}
	}
}

func TestSplitFeeRejectsNonPositiveGross(t *testing.T) {
	_, err := SplitFee(0, fivePercent(t))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestValidateFlagsMismatch(t *testing.T) {
	err := Split{Gross: 5000, PlatformFee: 250, SellerNet: 4700}.Validate()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFeeMismatch))

	err = Split{Gross: 5000, PlatformFee: -1, SellerNet: 5001}.Validate()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFeeMismatch))
}

func TestParseRateBounds(t *testing.T) {
	_, err := ParseRate("1")
	assert.Error(t, err)
	_, err = ParseRate("-0.01")
	assert.Error(t, err)
	_, err = ParseRate("five")
	assert.Error(t, err)

	rate, err := ParseRate(" 0.05 ")
	require.NoError(t, err)
	assert.Equal(t, "0.05", rate.String())
}

func TestMinorConversions(t *testing.T) {
	minor, err := ToMinor(decimal.RequireFromString("50.25"))
	require.NoError(t, err)
	assert.Equal(t, int64(5025), minor)

	minor, err = ParseMinor("50")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), minor)

	_, err = ParseMinor("50.255")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ToMinor(decimal.RequireFromString("-1"))
	assert.Error(t, err)

	assert.Equal(t, "50.00", Format(5000))
	assert.Equal(t, "0.05", Format(5))
	assert.True(t, FromMinor(4750).Equal(decimal.RequireFromString("47.5")))
}

func TestMinorConversionsRejectOverflow(t *testing.T) {
	minor, err := ParseMinor("92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), minor)

	for _, raw := range []string{"92233720368547758.08", "100000000000000000000", "1e30"} {
		_, err := ParseMinor(raw)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}

	minor, err = ToMinor(decimal.RequireFromString("100000000000000000000"))
	require.Error(t, err)
	assert.Zero(t, minor)
}
