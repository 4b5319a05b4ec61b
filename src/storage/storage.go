package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

// ErrNotFound is returned when a requested row does not exist. Callers that
// treat absence as a normal condition check for it with errors.Is.
var ErrNotFound = errors.New("storage: not found")

// BalanceRow is the aggregated amount and value of one (book, account,
// asset) combination. Sums are computed in Go from the stored decimal text,
// never in SQL.
type BalanceRow struct {
	Book      models.BookAccount `json:"book"`
	AccountID int64              `json:"account_id"`
	AssetID   int64              `json:"asset_id"`
	Amount    decimal.Decimal    `json:"amount"`
	Value     decimal.Decimal    `json:"value"`
}

// PositionRow is one open holding: the quantity still held and its
// accumulated open value across the remaining lots. It backs the open
// positions API.
type PositionRow struct {
	AccountID int64           `json:"account_id"`
	AssetID   int64           `json:"asset_id"`
	Qty       decimal.Decimal `json:"qty"`
	Value     decimal.Decimal `json:"value"`
}

// Store is the read side plus the transaction entry point. All ledger
// mutations go through a Tx so a rebuild is observed either in full or not
// at all.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	Account(ctx context.Context, id int64) (models.Account, error)
	Asset(ctx context.Context, id int64) (models.Asset, error)
	// LatestQuote returns the most recent quote of assetID in currencyID at
	// or before timestamp.
	LatestQuote(ctx context.Context, assetID, currencyID, timestamp int64) (decimal.Decimal, error)
	// Balances aggregates postings at or before asOf; a zero asOf means the
	// whole history.
	Balances(ctx context.Context, asOf int64) ([]BalanceRow, error)
	AccountBalance(ctx context.Context, book models.BookAccount, accountID, assetID, asOf int64) (decimal.Decimal, error)
	// ClosedDeals lists realized deals, newest close last. A zero accountID
	// or assetID matches any; from and to bound the close timestamp, zero
	// meaning unbounded.
	ClosedDeals(ctx context.Context, accountID, assetID, from, to int64) ([]models.ClosedDeal, error)
	// OpenPositions lists remaining holdings, optionally narrowed to one
	// account and one asset; zero matches any.
	OpenPositions(ctx context.Context, accountID, assetID int64) ([]PositionRow, error)
}

// Tx is the single-writer view the posting engine replays operations
// through. Every read inside a rebuild goes through the same transaction so
// the replay never sees state it has not written itself.
type Tx interface {
	// LoadOperations returns every operation leg effective at or after
	// from, ordered for deterministic replay: timestamp, then operation
	// type, then id, then transfer leg.
	LoadOperations(from int64) ([]models.Operation, error)
	// LoadOpenLots returns the lots of one position that still have
	// quantity remaining, in opening order.
	LoadOpenLots(accountID, assetID int64) ([]models.OpenLot, error)
	UpdateLotRemaining(lotID int64, remaining decimal.Decimal) error
	AppendOpenLot(lot models.OpenLot) error
	AppendClosedDeal(deal models.ClosedDeal) error
	AppendPosting(p models.Posting) error
	// DeleteFrom removes postings, lots and deals effective at or after
	// from, and gives back to earlier lots the quantity that deleted deals
	// had consumed from them.
	DeleteFrom(from int64) error
	// BookSumsBefore aggregates the postings strictly before from, one row
	// per (book, account, asset).
	BookSumsBefore(from int64) ([]BalanceRow, error)
	// TransferValue returns the value already posted to the transfers book
	// by the given transfer operation.
	TransferValue(transferID int64) (decimal.Decimal, error)
	// QuoteAt returns the quote of assetID in currencyID at exactly
	// timestamp, or ErrNotFound.
	QuoteAt(assetID, currencyID, timestamp int64) (decimal.Decimal, error)
	// LatestQuote returns the most recent quote at or before timestamp.
	LatestQuote(assetID, currencyID, timestamp int64) (decimal.Decimal, error)
	// Account and Asset resolve reference rows through the same transaction,
	// so a replay over a single-connection database never blocks on itself.
	Account(id int64) (models.Account, error)
	Asset(id int64) (models.Asset, error)

	Commit() error
	Rollback() error
}
