package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteService resolves asset quotes for the read-side API. Implementations
// cache lookups: valuation endpoints ask for the same handful of quotes on
// every request.
type QuoteService interface {
	// LatestQuote returns the most recent stored quote of assetID in
	// currencyID at or before timestamp.
	LatestQuote(ctx context.Context, assetID, currencyID, timestamp int64) (decimal.Decimal, error)
	// ExchangeRate returns the rate of currencyID into the base currency at
	// timestamp; 1 for the base currency itself, 0 when no quote is stored.
	ExchangeRate(ctx context.Context, currencyID, timestamp int64) (decimal.Decimal, error)
}
