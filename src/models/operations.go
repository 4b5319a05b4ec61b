package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OperationType tags the five kinds of financial operations the ledger
// understands. The ordinals are part of the stored format and of the
// deterministic replay order (timestamp, then type, then id).
type OperationType int

const (
	OpIncomeSpending  OperationType = 1
	OpDividend        OperationType = 2
	OpTrade           OperationType = 3
	OpTransfer        OperationType = 4
	OpCorporateAction OperationType = 5
)

func (t OperationType) String() string {
	switch t {
	case OpIncomeSpending:
		return "income_spending"
	case OpDividend:
		return "dividend"
	case OpTrade:
		return "trade"
	case OpTransfer:
		return "transfer"
	case OpCorporateAction:
		return "corporate_action"
	default:
		return "unknown"
	}
}

// OperationRef identifies one stored operation: its kind plus its row id.
type OperationRef struct {
	Type OperationType `json:"type"`
	ID   int64         `json:"id"`
}

func (r OperationRef) String() string {
	return fmt.Sprintf("%s #%d", r.Type, r.ID)
}

// Operation is the tagged-variant interface over the five operation kinds.
// Operations are immutable inputs owned by the storage layer; the posting
// engine only reads them.
type Operation interface {
	OperationType() OperationType
	OperationID() int64
	// When returns the effective timestamp in unix seconds (UTC). For a
	// transfer it depends on which leg the value represents.
	When() int64
	// Account returns the account the operation applies to. For a transfer
	// it depends on the leg.
	Account() int64
	// Validate checks the operation's own fields. It runs before any
	// posting side effect, so a failing operation is never partially posted.
	Validate() error
}

// Ref returns the operation reference of op.
func Ref(op Operation) OperationRef {
	return OperationRef{Type: op.OperationType(), ID: op.OperationID()}
}

// --- IncomeSpending ---

// SpendingLine is one detail line of an income/spending operation. A
// negative amount is spending, a positive one income.
type SpendingLine struct {
	CategoryID int64           `json:"category_id"`
	TagID      int64           `json:"tag_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
}

// IncomeSpending is a generic money operation split into category lines.
type IncomeSpending struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	AccountID int64          `json:"account_id"`
	PeerID    int64          `json:"peer_id"`
	Lines     []SpendingLine `json:"lines"`
	Note      string         `json:"note,omitempty"`
}

func (o IncomeSpending) OperationType() OperationType { return OpIncomeSpending }
func (o IncomeSpending) OperationID() int64           { return o.ID }
func (o IncomeSpending) When() int64                  { return o.Timestamp }
func (o IncomeSpending) Account() int64               { return o.AccountID }

// Amount returns the total of all detail lines.
func (o IncomeSpending) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

func (o IncomeSpending) Validate() error {
	if o.Timestamp <= 0 {
		return errors.New("timestamp is mandatory")
	}
	if o.AccountID <= 0 {
		return errors.New("account is mandatory")
	}
	if o.PeerID <= 0 {
		return errors.New("peer is mandatory")
	}
	if len(o.Lines) == 0 {
		return errors.New("can't process operation without details")
	}
	for i, line := range o.Lines {
		if line.CategoryID <= 0 {
			return fmt.Errorf("line %d: category is mandatory", i)
		}
	}
	return nil
}

// --- Dividend ---

// DividendType distinguishes cash payouts from stock distributions.
type DividendType int

const (
	DividendCash         DividendType = 1
	DividendBondInterest DividendType = 2
	DividendStock        DividendType = 3
	DividendVesting      DividendType = 4
)

// Dividend is a payout related to a held asset. For the stock subtypes
// Amount is a quantity of shares rather than a money amount.
type Dividend struct {
	ID        int64           `json:"id"`
	Timestamp int64           `json:"timestamp"`
	ExDate    int64           `json:"ex_date,omitempty"`
	Subtype   DividendType    `json:"type"`
	AccountID int64           `json:"account_id"`
	AssetID   int64           `json:"asset_id"`
	Amount    decimal.Decimal `json:"amount"`
	Tax       decimal.Decimal `json:"tax"`
	Note      string          `json:"note,omitempty"`
}

func (o Dividend) OperationType() OperationType { return OpDividend }
func (o Dividend) OperationID() int64           { return o.ID }
func (o Dividend) When() int64                  { return o.Timestamp }
func (o Dividend) Account() int64               { return o.AccountID }

// IsStock reports whether the dividend distributes shares, not cash.
func (o Dividend) IsStock() bool {
	return o.Subtype == DividendStock || o.Subtype == DividendVesting
}

func (o Dividend) Validate() error {
	if o.Timestamp <= 0 {
		return errors.New("timestamp is mandatory")
	}
	if o.AccountID <= 0 {
		return errors.New("account is mandatory")
	}
	if o.AssetID <= 0 {
		return errors.New("asset is mandatory")
	}
	switch o.Subtype {
	case DividendCash, DividendBondInterest:
	case DividendStock, DividendVesting:
		if !o.Amount.IsPositive() {
			return errors.New("stock dividend quantity must be positive")
		}
	default:
		return fmt.Errorf("unsupported dividend type: %d", o.Subtype)
	}
	return nil
}

// --- Trade ---

// Trade is a buy (positive Qty) or sell (negative Qty) of an asset.
type Trade struct {
	ID         int64           `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	Settlement int64           `json:"settlement,omitempty"`
	AccountID  int64           `json:"account_id"`
	AssetID    int64           `json:"asset_id"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	Note       string          `json:"note,omitempty"`
}

func (o Trade) OperationType() OperationType { return OpTrade }
func (o Trade) OperationID() int64           { return o.ID }
func (o Trade) When() int64                  { return o.Timestamp }
func (o Trade) Account() int64               { return o.AccountID }

func (o Trade) Validate() error {
	if o.Timestamp <= 0 {
		return errors.New("timestamp is mandatory")
	}
	if o.AccountID <= 0 {
		return errors.New("account is mandatory")
	}
	if o.AssetID <= 0 {
		return errors.New("asset is mandatory")
	}
	if o.Qty.IsZero() {
		return errors.New("trade quantity must be non-zero")
	}
	if o.Price.IsNegative() {
		return errors.New("trade price can't be negative")
	}
	return nil
}

// --- Transfer ---

// TransferLeg selects which side of a transfer row an Operation value
// represents. One stored transfer is replayed as up to three legs.
type TransferLeg int

const (
	LegOutgoing TransferLeg = -1
	LegFee      TransferLeg = 0
	LegIncoming TransferLeg = 1
)

func (l TransferLeg) String() string {
	switch l {
	case LegOutgoing:
		return "outgoing"
	case LegFee:
		return "fee"
	case LegIncoming:
		return "incoming"
	default:
		return "unknown"
	}
}

// Transfer moves money or an asset between two accounts, with an optional
// fee charged to a third. AssetID is 0 for a cash transfer. The same stored
// row backs all legs; Leg determines timestamp and account resolution.
type Transfer struct {
	ID                  int64           `json:"id"`
	WithdrawalTimestamp int64           `json:"withdrawal_timestamp"`
	WithdrawalAccountID int64           `json:"withdrawal_account"`
	Withdrawal          decimal.Decimal `json:"withdrawal"`
	DepositTimestamp    int64           `json:"deposit_timestamp"`
	DepositAccountID    int64           `json:"deposit_account"`
	Deposit             decimal.Decimal `json:"deposit"`
	FeeAccountID        int64           `json:"fee_account,omitempty"`
	Fee                 decimal.Decimal `json:"fee"`
	AssetID             int64           `json:"asset_id,omitempty"`
	Note                string          `json:"note,omitempty"`

	Leg TransferLeg `json:"-"`
}

func (o Transfer) OperationType() OperationType { return OpTransfer }
func (o Transfer) OperationID() int64           { return o.ID }

func (o Transfer) When() int64 {
	if o.Leg == LegIncoming {
		return o.DepositTimestamp
	}
	return o.WithdrawalTimestamp
}

func (o Transfer) Account() int64 {
	switch o.Leg {
	case LegOutgoing:
		return o.WithdrawalAccountID
	case LegIncoming:
		return o.DepositAccountID
	case LegFee:
		return o.FeeAccountID
	}
	return 0
}

// IsAsset reports whether the transfer moves an asset rather than cash.
func (o Transfer) IsAsset() bool { return o.AssetID > 0 }

func (o Transfer) Validate() error {
	if o.WithdrawalTimestamp <= 0 || o.DepositTimestamp <= 0 {
		return errors.New("withdrawal and deposit timestamps are mandatory")
	}
	if o.WithdrawalAccountID <= 0 || o.DepositAccountID <= 0 {
		return errors.New("withdrawal and deposit accounts are mandatory")
	}
	if !o.Withdrawal.IsPositive() {
		return errors.New("withdrawal amount must be positive")
	}
	if !o.Deposit.IsPositive() {
		return errors.New("deposit amount must be positive")
	}
	if o.WithdrawalTimestamp > o.DepositTimestamp {
		return errors.New("withdrawal must not happen after deposit")
	}
	if !o.Fee.IsZero() && o.FeeAccountID <= 0 {
		return errors.New("fee account is mandatory when a fee is present")
	}
	if o.Fee.IsNegative() {
		return errors.New("fee can't be negative")
	}
	return nil
}

// --- CorporateAction ---

// CorporateActionType enumerates the supported non-trade holding changes.
type CorporateActionType int

const (
	ActionMerger       CorporateActionType = 1
	ActionSpinOff      CorporateActionType = 2
	ActionSymbolChange CorporateActionType = 3
	ActionSplit        CorporateActionType = 4
	ActionDelisting    CorporateActionType = 5
)

func (t CorporateActionType) String() string {
	switch t {
	case ActionMerger:
		return "merger"
	case ActionSpinOff:
		return "spin-off"
	case ActionSymbolChange:
		return "symbol change"
	case ActionSplit:
		return "split"
	case ActionDelisting:
		return "delisting"
	default:
		return "unknown"
	}
}

// ActionResult is one outcome allocation of a corporate action: the
// resulting asset, its quantity, and the share of the source position's
// value it carries over.
type ActionResult struct {
	AssetID    int64           `json:"asset_id"`
	Qty        decimal.Decimal `json:"qty"`
	ValueShare decimal.Decimal `json:"value_share"`
}

// CorporateAction converts a full open position of the source asset into
// one or more result holdings (or nothing, for a delisting).
type CorporateAction struct {
	ID        int64               `json:"id"`
	Timestamp int64               `json:"timestamp"`
	AccountID int64               `json:"account_id"`
	Subtype   CorporateActionType `json:"type"`
	AssetID   int64               `json:"asset_id"`
	Qty       decimal.Decimal     `json:"qty"`
	Results   []ActionResult      `json:"results"`
	Note      string              `json:"note,omitempty"`
}

func (o CorporateAction) OperationType() OperationType { return OpCorporateAction }
func (o CorporateAction) OperationID() int64           { return o.ID }
func (o CorporateAction) When() int64                  { return o.Timestamp }
func (o CorporateAction) Account() int64               { return o.AccountID }

// ValueShareTotal sums the value shares over all results.
func (o CorporateAction) ValueShareTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range o.Results {
		total = total.Add(r.ValueShare)
	}
	return total
}

func (o CorporateAction) Validate() error {
	if o.Timestamp <= 0 {
		return errors.New("timestamp is mandatory")
	}
	if o.AccountID <= 0 {
		return errors.New("account is mandatory")
	}
	if o.AssetID <= 0 {
		return errors.New("asset is mandatory")
	}
	if !o.Qty.IsPositive() {
		return errors.New("source quantity must be positive")
	}
	switch o.Subtype {
	case ActionMerger, ActionSpinOff, ActionSymbolChange, ActionSplit:
		if len(o.Results) == 0 {
			return errors.New("corporate action requires at least one result")
		}
		if !o.ValueShareTotal().Equal(decimal.NewFromInt(1)) {
			return fmt.Errorf("results value doesn't match 100%% of initial asset value, got %s", o.ValueShareTotal())
		}
	case ActionDelisting:
		// A delisting has no results; the whole position is written off.
	default:
		return fmt.Errorf("unsupported corporate action type: %d", o.Subtype)
	}
	for i, r := range o.Results {
		if r.AssetID <= 0 {
			return fmt.Errorf("result %d: asset is mandatory", i)
		}
		if !r.Qty.IsPositive() {
			return fmt.Errorf("result %d: quantity must be positive", i)
		}
	}
	return nil
}
