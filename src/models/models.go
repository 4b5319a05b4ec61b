package models

import (
	"github.com/shopspring/decimal"
)

// BookAccount identifies one of the fixed bookkeeping books that every
// posting is classified into. The ordinals are part of the stored format.
type BookAccount int

const (
	BookCosts       BookAccount = 1
	BookIncomes     BookAccount = 2
	BookMoney       BookAccount = 3
	BookAssets      BookAccount = 4
	BookLiabilities BookAccount = 5
	BookTransfers   BookAccount = 6
)

func (b BookAccount) String() string {
	switch b {
	case BookCosts:
		return "costs"
	case BookIncomes:
		return "incomes"
	case BookMoney:
		return "money"
	case BookAssets:
		return "assets"
	case BookLiabilities:
		return "liabilities"
	case BookTransfers:
		return "transfers"
	default:
		return "unknown"
	}
}

// Predefined categories used by the posting engine when classifying
// incomes and costs that it generates itself.
const (
	CategoryIncome          int64 = 1
	CategorySpending        int64 = 2
	CategoryProfit          int64 = 3
	CategoryStartingBalance int64 = 4
	CategoryFees            int64 = 5
	CategoryTaxes           int64 = 6
	CategoryDividends       int64 = 7
	CategoryInterest        int64 = 8
)

// PeerFinancial is the built-in counterparty for fees charged by the
// financial infrastructure itself (e.g. transfer fees).
const PeerFinancial int64 = 1

// Asset types stored in the assets reference table.
const (
	AssetMoney      int64 = 1
	AssetStock      int64 = 2
	AssetBond       int64 = 3
	AssetETF        int64 = 4
	AssetFund       int64 = 5
	AssetDerivative int64 = 6
)

// Account is a reference-table row: an investment or cash account.
// CurrencyID points at a money-type asset; OrganizationID is the broker
// or bank the account is held with (0 when not set).
type Account struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	CurrencyID     int64  `json:"currency_id"`
	OrganizationID int64  `json:"organization_id,omitempty"`
}

// Asset is a reference-table row: a currency, security or other holding.
type Asset struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   int64  `json:"type"`
}

// Posting is one row of the bookkeeping ledger: a signed delta against one
// book for one account. AssetID is 0 for pure money postings. Value carries
// the cost-basis value and is only meaningful for asset postings.
type Posting struct {
	OpType      OperationType   `json:"op_type"`
	OperationID int64           `json:"operation_id"`
	Timestamp   int64           `json:"timestamp"`
	Book        BookAccount     `json:"book_account"`
	AccountID   int64           `json:"account_id"`
	AssetID     int64           `json:"asset_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Value       decimal.Decimal `json:"value"`
	CategoryID  int64           `json:"category_id,omitempty"`
	PeerID      int64           `json:"peer_id,omitempty"`
	TagID       int64           `json:"tag_id,omitempty"`
}

// OpenLot is the unclosed remainder of a position-opening event. Remaining
// quantity is decreased as later closing operations consume the lot; a lot
// with zero remaining quantity is invisible to matching.
type OpenLot struct {
	ID           int64           `json:"id"`
	Timestamp    int64           `json:"timestamp"`
	OpType       OperationType   `json:"op_type"`
	OperationID  int64           `json:"operation_id"`
	AccountID    int64           `json:"account_id"`
	AssetID      int64           `json:"asset_id"`
	Price        decimal.Decimal `json:"price"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
}

// ClosedDeal is the immutable audit record pairing one open-lot consumption
// with the operation that closed it. Qty is signed so that
// Qty*(ClosePrice-OpenPrice) is the realized gain: positive when a sell
// closes a long position, negative when a buy covers a short one.
type ClosedDeal struct {
	AccountID      int64           `json:"account_id"`
	AssetID        int64           `json:"asset_id"`
	OpenOpType     OperationType   `json:"open_op_type"`
	OpenOpID       int64           `json:"open_op_id"`
	OpenTimestamp  int64           `json:"open_timestamp"`
	OpenPrice      decimal.Decimal `json:"open_price"`
	CloseOpType    OperationType   `json:"close_op_type"`
	CloseOpID      int64           `json:"close_op_id"`
	CloseTimestamp int64           `json:"close_timestamp"`
	ClosePrice     decimal.Decimal `json:"close_price"`
	Qty            decimal.Decimal `json:"qty"`
}

// Profit returns the realized gain of the deal: signed quantity applied to
// the difference between close and open price.
func (d ClosedDeal) Profit() decimal.Decimal {
	return d.Qty.Mul(d.ClosePrice.Sub(d.OpenPrice))
}
