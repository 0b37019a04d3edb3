// Package metrics derives trading statistics from closed trade history.
// Everything here is deterministic and offline; live account numbers come
// from the remote metrics endpoint instead.
package metrics

import (
	"journal-core/pkg/metaapi"
)

// Summary aggregates the statistics shown on the journal dashboard.
type Summary struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor float64 `json:"profitFactor"`
	NetProfit    float64 `json:"netProfit"`
	AverageWin   float64 `json:"averageWin"`
	AverageLoss  float64 `json:"averageLoss"`
	Expectancy   float64 `json:"expectancy"`
	BestTrade    float64 `json:"bestTrade"`
	WorstTrade   float64 `json:"worstTrade"`
}

// WinRate returns winning trades over total trades, in [0,1]. Zero trades
// yield zero. Break-even trades count as losses.
func WinRate(trades []metaapi.HistoricalTrade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Profit > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitFactor returns gross profit divided by gross loss. When there are
// no losing trades the gross profit itself is returned, so a flawless run
// is not reported as infinite.
func ProfitFactor(trades []metaapi.HistoricalTrade) float64 {
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.Profit > 0 {
			grossProfit += t.Profit
		} else {
			grossLoss += -t.Profit
		}
	}
	if grossLoss == 0 {
		return grossProfit
	}
	return grossProfit / grossLoss
}

// MaxDrawdown returns the largest peak-to-trough relative decline over an
// equity curve, in [0,1]. Fewer than two points yield zero.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity[1:] {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Summarize computes the full statistics block for a trade history.
func Summarize(trades []metaapi.HistoricalTrade) Summary {
	s := Summary{Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var sumWins, sumLosses float64
	s.BestTrade = trades[0].Profit
	s.WorstTrade = trades[0].Profit
	for _, t := range trades {
		s.NetProfit += t.Profit
		if t.Profit > 0 {
			s.Wins++
			sumWins += t.Profit
		} else {
			s.Losses++
			sumLosses += -t.Profit
		}
		if t.Profit > s.BestTrade {
			s.BestTrade = t.Profit
		}
		if t.Profit < s.WorstTrade {
			s.WorstTrade = t.Profit
		}
	}

	s.WinRate = WinRate(trades)
	s.ProfitFactor = ProfitFactor(trades)
	if s.Wins > 0 {
		s.AverageWin = sumWins / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AverageLoss = sumLosses / float64(s.Losses)
	}
	s.Expectancy = s.NetProfit / float64(s.Trades)
	return s
}
