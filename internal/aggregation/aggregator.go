// Package aggregation computes the daily per-app revenue and eCPM figures from
// ad-network stat rows. All arithmetic is exact decimal; rounding happens once,
// at the final aggregate, never per row.
package aggregation

import (
	"github.com/shopspring/decimal"
)

// moneyScale is the rounding scale for aggregated money and eCPM values.
// decimal.Round rounds half away from zero, which is the required mode.
const moneyScale = 2

// StatRecord is one row of an ad network's daily per-app report.
// Impressions are not supplied by every network; HasImpressions distinguishes
// "zero impressions" from "not reported".
type StatRecord struct {
	AppKey         string
	Date           string
	Revenue        decimal.Decimal
	ECPM           decimal.Decimal
	Impressions    int64
	HasImpressions bool
}

// Summary is the aggregate over one app's rows for one day.
type Summary struct {
	TotalRevenue    decimal.Decimal
	WeightedAvgECPM decimal.Decimal
}

// Summarize reduces one app's stat rows for a single day.
//
// TotalRevenue is the sum of revenue over all rows, rounded once at the end.
//
// WeightedAvgECPM depends on the richness of the source data. When any row
// carries impressions, the result is the impression-weighted mean of eCPM over
// rows whose eCPM is nonzero: certain inventory sources report eCPM 0 with real
// impressions, and including them would drag the average down. When no row
// carries impressions the result falls back to the unweighted arithmetic mean
// over all rows, zero eCPMs included. An empty qualifying set yields 0.
func Summarize(rows []StatRecord) Summary {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Revenue)
	}

	return Summary{
		TotalRevenue:    total.Round(moneyScale),
		WeightedAvgECPM: averageECPM(rows).Round(moneyScale),
	}
}

// RevenueSum is the reporting-sheet value for one app: the plain revenue sum
// over all rows, independent of the eCPM exclusion rule.
func RevenueSum(rows []StatRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Revenue)
	}
	return total.Round(moneyScale)
}

func averageECPM(rows []StatRecord) decimal.Decimal {
	if len(rows) == 0 {
		return decimal.Zero
	}

	weighted := false
	for _, r := range rows {
		if r.HasImpressions {
			weighted = true
			break
		}
	}

	if !weighted {
		sum := decimal.Zero
		for _, r := range rows {
			sum = sum.Add(r.ECPM)
		}
		return sum.Div(decimal.NewFromInt(int64(len(rows))))
	}

	weightedSum := decimal.Zero
	totalImpressions := decimal.Zero
	for _, r := range rows {
		if r.ECPM.IsZero() {
			continue
		}
		w := decimal.NewFromInt(r.Impressions)
		weightedSum = weightedSum.Add(r.ECPM.Mul(w))
		totalImpressions = totalImpressions.Add(w)
	}
	if totalImpressions.IsZero() {
		return decimal.Zero
	}
	return weightedSum.Div(totalImpressions)
}
