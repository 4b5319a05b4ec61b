package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/logger"
	"github.com/username/ledgerfolio/src/storage"
)

// quoteServiceImpl implements QuoteService on top of the store, caching
// resolved quotes in memory.
type quoteServiceImpl struct {
	store          storage.Store
	baseCurrencyID int64
	quoteCache     *cache.Cache
	bucketSeconds  int64
}

// NewQuoteService creates a quote service caching lookups for ttl.
func NewQuoteService(store storage.Store, baseCurrencyID int64, ttl time.Duration) QuoteService {
	bucketSeconds := int64(ttl / time.Second)
	if bucketSeconds < 1 {
		bucketSeconds = 1
	}
	return &quoteServiceImpl{
		store:          store,
		baseCurrencyID: baseCurrencyID,
		quoteCache:     cache.New(ttl, 2*ttl),
		bucketSeconds:  bucketSeconds,
	}
}

func (s *quoteServiceImpl) LatestQuote(ctx context.Context, assetID, currencyID, timestamp int64) (decimal.Decimal, error) {
	// Callers pass the current time, so the raw timestamp changes on every
	// request. Keying on the TTL bucket lets those lookups share an entry;
	// the answer is then at most one TTL staler than the store's.
	key := fmt.Sprintf("quote:%d:%d:%d", assetID, currencyID, timestamp/s.bucketSeconds)
	if cached, found := s.quoteCache.Get(key); found {
		return cached.(decimal.Decimal), nil
	}
	quote, err := s.store.LatestQuote(ctx, assetID, currencyID, timestamp)
	if err != nil {
		return decimal.Zero, err
	}
	s.quoteCache.Set(key, quote, cache.DefaultExpiration)
	return quote, nil
}

func (s *quoteServiceImpl) ExchangeRate(ctx context.Context, currencyID, timestamp int64) (decimal.Decimal, error) {
	if currencyID == s.baseCurrencyID {
		return decimal.NewFromInt(1), nil
	}
	rate, err := s.LatestQuote(ctx, currencyID, s.baseCurrencyID, timestamp)
	if errors.Is(err, storage.ErrNotFound) {
		logger.L.Warn("No exchange rate quote stored, treating rate as zero",
			"currencyId", currencyID, "timestamp", timestamp)
		return decimal.Zero, nil
	}
	return rate, err
}
