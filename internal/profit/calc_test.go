package profit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinledger/internal/ports"
)

func TestLongProfitUSD(t *testing.T) {
	// 0.01 BTC bought for 1010 USD gross, sold at 110000 with a 1% fee:
	// net exit = 0.01 * 110000 * 0.99 = 1089, profit = 79.
	got, err := LongProfitUSD(0.01, 1010, 110000, 1)
	require.NoError(t, err)
	assert.InDelta(t, 79.00, got, 1e-9)

	// A loss stays negative, never clamped.
	got, err = LongProfitUSD(0.01, 1010, 90000, 1)
	require.NoError(t, err)
	assert.Less(t, got, 0.0)

	// Sign property: profit > 0 iff net exit value exceeds the entry cost.
	cases := []struct {
		amount, sumPlusFee, exitPrice, exitFee float64
	}{
		{1, 100, 101, 0},
		{1, 100, 101, 1},
		{0.5, 50000, 100001, 0},
		{2, 10, 5.06, 1},
	}
	for _, c := range cases {
		p, err := LongProfitUSD(c.amount, c.sumPlusFee, c.exitPrice, c.exitFee)
		require.NoError(t, err)
		netExit := c.exitPrice * c.amount * (100 - c.exitFee) / 100
		assert.Equal(t, netExit > c.sumPlusFee, p > 0,
			"sign mismatch for %+v", c)
	}
}

func TestLongProfitUSDRejectsNonFinite(t *testing.T) {
	_, err := LongProfitUSD(math.NaN(), 1010, 110000, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrValidation)

	_, err = LongProfitUSD(0.01, math.Inf(1), 110000, 1)
	assert.ErrorIs(t, err, ports.ErrValidation)
}

func TestLongProfitPercent(t *testing.T) {
	// 10% price rise minus 1% entry and 1% exit fee, additive by contract.
	got, err := LongProfitPercent(100000, 110000, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got, 1e-9)

	// Flat price nets a pure fee loss.
	got, err = LongProfitPercent(100000, 100000, 0.5, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, got, 1e-9)
}

func TestLongProfitPercentZeroEntryPrice(t *testing.T) {
	_, err := LongProfitPercent(0, 110000, 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvariantViolation)
}

func TestCoinsBoughtBack(t *testing.T) {
	// 54450 USD at a buy-back price of 100000 with 1% fee: the effective
	// price is 101000, so 54450 / 101000 coins come back.
	got, err := CoinsBoughtBack(54450, 100000, 1)
	require.NoError(t, err)
	assert.InDelta(t, 54450.0/101000.0, got, 1e-12)

	_, err = CoinsBoughtBack(54450, 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvariantViolation)
}

func TestShortProfitCoins(t *testing.T) {
	// Sold 0.5 BTC for 54450 USD, bought back at 100000 with 1% fee:
	// 0.5391... coins back, roughly 0.0391 coins of profit.
	got, err := ShortProfitCoins(0.5, 54450, 100000, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0391, got, 0.0001)

	// Price rose: the buy-back nets fewer coins than were sold.
	got, err = ShortProfitCoins(0.5, 54450, 120000, 1)
	require.NoError(t, err)
	assert.Less(t, got, 0.0)

	// Sign property: profit > 0 iff the proceeds repurchase more than sold.
	for _, buyBack := range []float64{50000, 90000, 108900, 110000, 150000} {
		p, err := ShortProfitCoins(0.5, 54450, buyBack, 1)
		require.NoError(t, err)
		coinsBack := 54450 / (buyBack * 1.01)
		assert.Equal(t, coinsBack > 0.5, p > 0, "buyBack=%v", buyBack)
	}
}

func TestShortProfitPercent(t *testing.T) {
	got, err := ShortProfitPercent(0.5, 0.55)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-9)

	_, err = ShortProfitPercent(0, 0.55)
	assert.ErrorIs(t, err, ports.ErrInvariantViolation)
}

func TestRecalculateLongEntryPrice(t *testing.T) {
	got, err := RecalculateLongEntryPrice(101000, 1.0391)
	require.NoError(t, err)
	assert.InDelta(t, 101000/1.0391, got, 1e-9)
}

func TestRecalculateLongEntryPriceFailsLoudly(t *testing.T) {
	// Zero or negative amounts must error instead of producing Inf/NaN.
	for _, amount := range []float64{0, -0.5} {
		_, err := RecalculateLongEntryPrice(101000, amount)
		require.Error(t, err, "amount=%v", amount)
		assert.ErrorIs(t, err, ports.ErrInvariantViolation)
	}
}
