package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PositionValue is the contribution of a single holding to an aggregate.
type PositionValue struct {
	Symbol         string          `json:"symbol"`
	Quantity       int64           `json:"quantity"`
	AverageCost    decimal.Decimal `json:"averageCost"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	PriceAvailable bool            `json:"priceAvailable"`
	DisplayPrice   decimal.Decimal `json:"displayPrice"`
	MarketValue    decimal.Decimal `json:"marketValue"`
	Cost           decimal.Decimal `json:"cost"`
	ProfitLoss     decimal.Decimal `json:"profitLoss"`
	Unavailable    error           `json:"-"`
}

type AggregateResult struct {
	TotalValue        decimal.Decimal `json:"totalValue"`
	TotalCost         decimal.Decimal `json:"totalCost"`
	ProfitLoss        decimal.Decimal `json:"profitLoss"`
	ProfitLossPercent decimal.Decimal `json:"profitLossPercent"`
	Positions         []PositionValue `json:"positions"`
}

// NewAggregateResult sums the positions. A position without a live price
// adds its cost but no market value.
func NewAggregateResult(positions []PositionValue) AggregateResult {
	res := AggregateResult{
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
		Positions:  positions,
	}
	for _, p := range positions {
		res.TotalValue = res.TotalValue.Add(p.MarketValue)
		res.TotalCost = res.TotalCost.Add(p.Cost)
	}
	res.ProfitLoss = res.TotalValue.Sub(res.TotalCost)
	res.ProfitLossPercent = decimal.Zero
	if !res.TotalCost.IsZero() {
		res.ProfitLossPercent = res.ProfitLoss.Div(res.TotalCost).Mul(hundred)
	}
	return res
}
