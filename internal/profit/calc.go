// Package profit contains the pure money math of the accounting core:
// LONG profit in USD, SHORT profit in coin units, and the entry-price
// recalculation used when a parent LONG's coin amount changes.
//
// All functions are stateless and deterministic. They fail only on
// inputs that would produce a non-finite result; range validation
// (amount >= 0, price > 0) is the caller's responsibility.
package profit

import (
	"fmt"
	"math"

	"coinledger/internal/ports"
)

// LongProfitUSD returns the realized USD profit of a LONG position:
// the net exit value (after the exit fee) minus the gross entry cost.
// Negative values are losses.
func LongProfitUSD(amount, sumPlusFee, exitPrice, exitFeePercent float64) (float64, error) {
	if err := requireFinite(amount, sumPlusFee, exitPrice, exitFeePercent); err != nil {
		return 0, err
	}
	netExitValue := amount * exitPrice * (100 - exitFeePercent) / 100
	return netExitValue - sumPlusFee, nil
}

// LongProfitPercent returns the percentage profit of a LONG position.
// Fee percentages are subtracted additively from the price change
// percentage, not compounded; that is the documented, exact contract.
func LongProfitPercent(entryPrice, exitPrice, entryFeePercent, exitFeePercent float64) (float64, error) {
	if err := requireFinite(entryPrice, exitPrice, entryFeePercent, exitFeePercent); err != nil {
		return 0, err
	}
	if entryPrice == 0 {
		return 0, fmt.Errorf("entry price is zero: %w", ports.ErrInvariantViolation)
	}
	priceChangePercent := (exitPrice/entryPrice - 1) * 100
	return priceChangePercent - entryFeePercent - exitFeePercent, nil
}

// CoinsBoughtBack returns the coin quantity the given sale proceeds can
// repurchase at buyBackPrice once the buy-back fee is included in the
// effective price. This is what funds the parent-LONG recalculation
// when a SHORT closes.
func CoinsBoughtBack(sumPlusFeeReceived, buyBackPrice, buyBackFeePercent float64) (float64, error) {
	if err := requireFinite(sumPlusFeeReceived, buyBackPrice, buyBackFeePercent); err != nil {
		return 0, err
	}
	buyBackPriceWithFee := buyBackPrice * (100 + buyBackFeePercent) / 100
	if buyBackPriceWithFee == 0 {
		return 0, fmt.Errorf("buy-back price with fee is zero: %w", ports.ErrInvariantViolation)
	}
	return sumPlusFeeReceived / buyBackPriceWithFee, nil
}

// ShortProfitCoins returns the SHORT profit denominated in coin units:
// coins bought back minus coins originally sold. Positive means the
// price dropped and the SHORT netted more coin than it sold.
func ShortProfitCoins(soldAmount, sumPlusFeeReceived, buyBackPrice, buyBackFeePercent float64) (float64, error) {
	coinsBack, err := CoinsBoughtBack(sumPlusFeeReceived, buyBackPrice, buyBackFeePercent)
	if err != nil {
		return 0, err
	}
	if err := requireFinite(soldAmount); err != nil {
		return 0, err
	}
	return coinsBack - soldAmount, nil
}

// ShortProfitPercent returns the coin-denominated SHORT profit as a
// percentage of the quantity sold.
func ShortProfitPercent(soldAmount, coinsBoughtBack float64) (float64, error) {
	if err := requireFinite(soldAmount, coinsBoughtBack); err != nil {
		return 0, err
	}
	if soldAmount == 0 {
		return 0, fmt.Errorf("sold amount is zero: %w", ports.ErrInvariantViolation)
	}
	return (coinsBoughtBack/soldAmount - 1) * 100, nil
}

// RecalculateLongEntryPrice derives the effective entry price of a LONG
// whose coin amount changed while its cost basis stayed fixed. Errors
// on a non-positive amount rather than returning Inf/NaN.
func RecalculateLongEntryPrice(sumPlusFee, newTotalAmount float64) (float64, error) {
	if err := requireFinite(sumPlusFee, newTotalAmount); err != nil {
		return 0, err
	}
	if newTotalAmount <= 0 {
		return 0, fmt.Errorf("cannot recalculate entry price for amount %v: %w", newTotalAmount, ports.ErrInvariantViolation)
	}
	return sumPlusFee / newTotalAmount, nil
}

// requireFinite rejects NaN/Inf inputs.
func requireFinite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("input %v is not a finite number: %w", v, ports.ErrValidation)
		}
	}
	return nil
}
