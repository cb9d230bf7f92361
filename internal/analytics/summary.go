// Package analytics rolls trades of a portfolio up into summary
// statistics. It is strictly read-only: nothing here mutates a trade.
//
// LONG results are aggregated in USD. SHORT results are aggregated in
// coin units per symbol and never summed across symbols into a single
// number; coin quantities of different coins are incompatible units.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ports"
	"coinledger/internal/profit"
)

// TradeResult is one realized profit figure attributed to a trade record.
type TradeResult struct {
	TradeID    string
	CoinSymbol string
	Profit     domain.Profit
	CloseDate  time.Time
}

// ProfitPoint is one point of the cumulative realized-profit series.
type ProfitPoint struct {
	Time  time.Time
	Value float64
}

// CoinPerformance aggregates LONG results for one coin symbol.
type CoinPerformance struct {
	Trades         int
	WinningTrades  int
	TotalProfitUSD float64
}

// LongSummary aggregates all realized LONG results of a portfolio.
type LongSummary struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64 // winning fraction, 0..1
	TotalProfitUSD       float64
	AverageProfitUSD     float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	ByCoin               map[string]CoinPerformance
	Best                 *TradeResult
	Worst                *TradeResult
	TopProfitable        []TradeResult // up to 5, best first
	TopLosing            []TradeResult // up to 5, worst first
	CumulativeProfit     []ProfitPoint // ordered by close date
}

// ShortSummary aggregates all realized SHORT results of a portfolio.
type ShortSummary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	// ProfitCoins maps coin symbol to net coin profit for that symbol.
	ProfitCoins map[string]float64
}

// PortfolioSummary is the full read-only rollup of one portfolio.
type PortfolioSummary struct {
	Long  LongSummary
	Short ShortSummary
}

const topListSize = 5

// TradeProfit computes the realized profit of a closed trade record as
// a tagged USD-or-coins value. Split originals and parents closed by
// remaining-amount exhaustion carry no exit event of their own (their
// fragments hold the profit) and are rejected.
//
// For a directly closed trade that saw earlier partial closes, only the
// remaining proportion of its amount and cost basis counts; the closed
// proportion was already profit-counted through the fragments.
func TradeProfit(t *domain.Trade) (domain.Profit, error) {
	if t.Status != domain.StatusClosed {
		return domain.Profit{}, fmt.Errorf("trade %s is not closed: %w", t.ID, ports.ErrValidation)
	}
	if t.IsSplit || t.ExitPrice <= 0 {
		return domain.Profit{}, fmt.Errorf("trade %s has no exit event of its own: %w", t.ID, ports.ErrValidation)
	}

	proportion := 1.0
	if !t.IsPartialClose && t.OriginalAmount > 0 && t.RemainingAmount < t.OriginalAmount {
		proportion = t.RemainingAmount / t.OriginalAmount
	}
	amount := t.Amount * proportion
	sumPlusFee := t.SumPlusFee * proportion

	switch t.Type {
	case domain.Long:
		usd, err := profit.LongProfitUSD(amount, sumPlusFee, t.ExitPrice, t.ExitFee)
		if err != nil {
			return domain.Profit{}, err
		}
		return domain.USDProfit(usd), nil
	case domain.Short:
		coins, err := profit.ShortProfitCoins(amount, sumPlusFee, t.ExitPrice, t.ExitFee)
		if err != nil {
			return domain.Profit{}, err
		}
		return domain.CoinProfit(t.CoinSymbol, coins), nil
	default:
		return domain.Profit{}, fmt.Errorf("trade %s has unknown type %q: %w", t.ID, t.Type, ports.ErrInvariantViolation)
	}
}

// hasRealizedProfit reports whether a record carries its own exit event.
func hasRealizedProfit(t *domain.Trade) bool {
	return t.Status == domain.StatusClosed && !t.IsSplit && t.ExitPrice > 0
}

// AnalyzePortfolio computes the LONG and SHORT rollups over all trades
// of one portfolio.
func AnalyzePortfolio(trades []*domain.Trade) (*PortfolioSummary, error) {
	summary := &PortfolioSummary{
		Long: LongSummary{
			ByCoin:           make(map[string]CoinPerformance),
			TopProfitable:    make([]TradeResult, 0, topListSize),
			TopLosing:        make([]TradeResult, 0, topListSize),
			CumulativeProfit: make([]ProfitPoint, 0),
		},
		Short: ShortSummary{
			ProfitCoins: make(map[string]float64),
		},
	}

	results := make([]TradeResult, 0, len(trades))
	for _, t := range trades {
		if !hasRealizedProfit(t) {
			continue
		}
		p, err := TradeProfit(t)
		if err != nil {
			return nil, err
		}
		results = append(results, TradeResult{
			TradeID:    t.ID,
			CoinSymbol: t.CoinSymbol,
			Profit:     p,
			CloseDate:  t.CloseDate,
		})
	}

	// Order by close date so streaks and the cumulative series follow
	// the portfolio's actual history.
	sort.Slice(results, func(i, j int) bool {
		return results[i].CloseDate.Before(results[j].CloseDate)
	})

	var longResults []TradeResult
	var consecutiveWins, consecutiveLosses int
	var cumulative float64

	for _, r := range results {
		switch r.Profit.Kind {
		case domain.ProfitUSD:
			longResults = append(longResults, r)
			s := &summary.Long
			s.TotalTrades++
			s.TotalProfitUSD += r.Profit.Value

			perf := s.ByCoin[r.CoinSymbol]
			perf.Trades++
			perf.TotalProfitUSD += r.Profit.Value

			if r.Profit.IsWin() {
				s.WinningTrades++
				perf.WinningTrades++
				consecutiveWins++
				consecutiveLosses = 0
			} else {
				s.LosingTrades++
				consecutiveLosses++
				consecutiveWins = 0
			}
			if consecutiveWins > s.MaxConsecutiveWins {
				s.MaxConsecutiveWins = consecutiveWins
			}
			if consecutiveLosses > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = consecutiveLosses
			}
			s.ByCoin[r.CoinSymbol] = perf

			cumulative += r.Profit.Value
			s.CumulativeProfit = append(s.CumulativeProfit, ProfitPoint{Time: r.CloseDate, Value: cumulative})

		case domain.ProfitCoins:
			s := &summary.Short
			s.TotalTrades++
			s.ProfitCoins[r.Profit.Symbol] += r.Profit.Value
			if r.Profit.IsWin() {
				s.WinningTrades++
			} else {
				s.LosingTrades++
			}
		}
	}

	if summary.Long.TotalTrades > 0 {
		summary.Long.WinRate = float64(summary.Long.WinningTrades) / float64(summary.Long.TotalTrades)
		summary.Long.AverageProfitUSD = summary.Long.TotalProfitUSD / float64(summary.Long.TotalTrades)
	}
	if summary.Short.TotalTrades > 0 {
		summary.Short.WinRate = float64(summary.Short.WinningTrades) / float64(summary.Short.TotalTrades)
	}

	summary.Long.Best, summary.Long.Worst = bestAndWorst(longResults)
	summary.Long.TopProfitable, summary.Long.TopLosing = topLists(longResults)
	return summary, nil
}

func bestAndWorst(results []TradeResult) (best, worst *TradeResult) {
	for i := range results {
		r := results[i]
		if best == nil || r.Profit.Value > best.Profit.Value {
			best = &results[i]
		}
		if worst == nil || r.Profit.Value < worst.Profit.Value {
			worst = &results[i]
		}
	}
	return best, worst
}

func topLists(results []TradeResult) (profitable, losing []TradeResult) {
	sorted := make([]TradeResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Profit.Value > sorted[j].Profit.Value
	})

	profitable = make([]TradeResult, 0, topListSize)
	for _, r := range sorted {
		if !r.Profit.IsWin() || len(profitable) == topListSize {
			break
		}
		profitable = append(profitable, r)
	}

	losing = make([]TradeResult, 0, topListSize)
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Profit.Value >= 0 || len(losing) == topListSize {
			break
		}
		losing = append(losing, sorted[i])
	}
	return profitable, losing
}

// UnrealizedPosition values one open FILLED trade at a current price.
type UnrealizedPosition struct {
	TradeID    string
	CoinSymbol string
	Profit     domain.Profit
}

// Unrealized values every open FILLED trade against the supplied
// current prices (symbol -> price). Trades whose symbol has no price
// are skipped. Partially closed trades are valued on the remaining
// proportion only; no exit fee is assumed for the hypothetical close.
func Unrealized(trades []*domain.Trade, currentPrices map[string]float64) ([]UnrealizedPosition, error) {
	positions := make([]UnrealizedPosition, 0)
	for _, t := range trades {
		if t.Status != domain.StatusFilled {
			continue
		}
		price, ok := currentPrices[t.CoinSymbol]
		if !ok || price <= 0 {
			continue
		}

		proportion := 1.0
		if t.OriginalAmount > 0 && t.RemainingAmount < t.OriginalAmount {
			proportion = t.RemainingAmount / t.OriginalAmount
		}
		amount := t.Amount * proportion
		sumPlusFee := t.SumPlusFee * proportion

		var p domain.Profit
		switch t.Type {
		case domain.Long:
			usd, err := profit.LongProfitUSD(amount, sumPlusFee, price, 0)
			if err != nil {
				return nil, err
			}
			p = domain.USDProfit(usd)
		case domain.Short:
			coins, err := profit.ShortProfitCoins(amount, sumPlusFee, price, 0)
			if err != nil {
				return nil, err
			}
			p = domain.CoinProfit(t.CoinSymbol, coins)
		default:
			continue
		}
		positions = append(positions, UnrealizedPosition{TradeID: t.ID, CoinSymbol: t.CoinSymbol, Profit: p})
	}
	return positions, nil
}
