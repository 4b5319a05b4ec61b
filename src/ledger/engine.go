package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/logger"
	"github.com/username/ledgerfolio/src/models"
	"github.com/username/ledgerfolio/src/storage"
)

type balanceKey struct {
	book      models.BookAccount
	accountID int64
	assetID   int64
}

type balance struct {
	amount decimal.Decimal
	value  decimal.Decimal
}

// Engine replays operations into ledger postings, open lots and closed
// deals. A single Engine handles one rebuild at a time: the transaction and
// the running balances are per-pass state.
type Engine struct {
	store          storage.Store
	baseCurrencyID int64

	tx       storage.Tx
	balances map[balanceKey]*balance
	log      *slog.Logger
}

func NewEngine(store storage.Store, baseCurrencyID int64) *Engine {
	return &Engine{store: store, baseCurrencyID: baseCurrencyID}
}

// Rebuild discards postings, lots and deals effective at or after from and
// replays every later operation in chronological order inside one storage
// transaction. Any failure rolls the whole pass back, so the ledger is
// never left half-rebuilt. Rebuilding twice from the same point with
// unchanged operations yields identical state.
func (e *Engine) Rebuild(ctx context.Context, from int64) (err error) {
	runID := uuid.NewString()
	e.log = logger.L.With("runId", runID, "from", from)
	e.log.Info("starting ledger rebuild")

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	e.tx = tx
	e.balances = make(map[balanceKey]*balance)
	defer func() {
		e.tx = nil
		e.balances = nil
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.log.Error("rollback after failed rebuild", "error", rbErr)
			}
		}
	}()

	if err = tx.DeleteFrom(from); err != nil {
		return err
	}
	rows, err := tx.BookSumsBefore(from)
	if err != nil {
		return err
	}
	for _, row := range rows {
		key := balanceKey{row.Book, row.AccountID, row.AssetID}
		e.balances[key] = &balance{amount: row.Amount, value: row.Value}
	}

	ops, err := tx.LoadOperations(from)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if vErr := op.Validate(); vErr != nil {
			err = validationErr(op, vErr.Error())
			e.log.Error("operation rejected", "operation", models.Ref(op).String(), "error", vErr)
			return err
		}
		if err = e.process(op); err != nil {
			e.log.Error("operation failed", "operation", models.Ref(op).String(), "error", err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing rebuild: %w", err)
	}
	e.log.Info("ledger rebuild finished", "operations", len(ops))
	return nil
}

func (e *Engine) process(op models.Operation) error {
	switch v := op.(type) {
	case models.IncomeSpending:
		return e.processIncomeSpending(v)
	case models.Dividend:
		return e.processDividend(v)
	case models.Trade:
		return e.processTrade(v)
	case models.Transfer:
		return e.processTransfer(v)
	case models.CorporateAction:
		return e.processCorporateAction(v)
	default:
		return fmt.Errorf("unsupported operation type %T", op)
	}
}

// entry is one posting before it is stamped with the operation reference.
type entry struct {
	book       models.BookAccount
	accountID  int64
	assetID    int64
	amount     decimal.Decimal
	value      decimal.Decimal
	categoryID int64
	peerID     int64
	tagID      int64
}

func (e *Engine) getBalance(key balanceKey) *balance {
	b, ok := e.balances[key]
	if !ok {
		b = &balance{}
		e.balances[key] = b
	}
	return b
}

// getAmount returns the running amount of one (book, account, asset)
// accumulated by everything posted so far in this pass, including the
// seeded prefix.
func (e *Engine) getAmount(book models.BookAccount, accountID, assetID int64) decimal.Decimal {
	if b, ok := e.balances[balanceKey{book, accountID, assetID}]; ok {
		return b.amount
	}
	return decimal.Zero
}

// appendPosting writes one book entry and keeps the running balances in
// step. When an Assets posting brings the position amount to exactly zero
// but leaves a non-zero residual value, the residual is a rounding leftover
// of non-terminating lot prices: it is absorbed into the posting and
// returned so the caller can compensate it in the profit posting.
func (e *Engine) appendPosting(op models.Operation, en entry) (decimal.Decimal, error) {
	b := e.getBalance(balanceKey{en.book, en.accountID, en.assetID})
	newAmount := b.amount.Add(en.amount)
	newValue := b.value.Add(en.value)
	rounding := decimal.Zero
	if en.book == models.BookAssets && newAmount.IsZero() && !newValue.IsZero() {
		rounding = newValue.Neg()
		en.value = en.value.Add(rounding)
		newValue = decimal.Zero
	}
	b.amount = newAmount
	b.value = newValue

	posting := models.Posting{
		OpType:      op.OperationType(),
		OperationID: op.OperationID(),
		Timestamp:   op.When(),
		Book:        en.book,
		AccountID:   en.accountID,
		AssetID:     en.assetID,
		Amount:      en.amount,
		Value:       en.value,
		CategoryID:  en.categoryID,
		PeerID:      en.peerID,
		TagID:       en.tagID,
	}
	if err := e.tx.AppendPosting(posting); err != nil {
		return decimal.Zero, err
	}
	return rounding, nil
}

// takeCredit borrows the part of operationAmount that the account's cash
// balance can't cover by debiting the liabilities book. Returns the
// borrowed amount, zero when cash was sufficient.
func (e *Engine) takeCredit(op models.Operation, accountID int64, operationAmount decimal.Decimal) (decimal.Decimal, error) {
	moneyAvailable := e.getAmount(models.BookMoney, accountID, 0)
	credit := decimal.Zero
	if moneyAvailable.LessThan(operationAmount) {
		credit = operationAmount.Sub(moneyAvailable)
		if _, err := e.appendPosting(op, entry{
			book:      models.BookLiabilities,
			accountID: accountID,
			amount:    credit.Neg(),
		}); err != nil {
			return decimal.Zero, err
		}
	}
	return credit, nil
}

// returnCredit repays outstanding liabilities before any cash is credited.
// Returns the repaid amount, at most operationAmount.
func (e *Engine) returnCredit(op models.Operation, accountID int64, operationAmount decimal.Decimal) (decimal.Decimal, error) {
	creditValue := e.getAmount(models.BookLiabilities, accountID, 0).Neg()
	debt := decimal.Zero
	if creditValue.IsPositive() {
		debt = operationAmount
		if creditValue.LessThan(operationAmount) {
			debt = creditValue
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookLiabilities,
			accountID: accountID,
			amount:    debt,
		}); err != nil {
			return decimal.Zero, err
		}
	}
	return debt, nil
}

// exchangeRate resolves the rate of currencyID into the base currency at
// timestamp. A missing quote is a tolerated degenerate condition: the rate
// is reported as zero and the affected value's correctness is not
// guaranteed.
func (e *Engine) exchangeRate(currencyID, timestamp int64) (decimal.Decimal, error) {
	if currencyID == e.baseCurrencyID {
		return decimal.NewFromInt(1), nil
	}
	rate, err := e.tx.LatestQuote(currencyID, e.baseCurrencyID, timestamp)
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Warn("no exchange rate quote, treating rate as zero",
			"currencyId", currencyID, "timestamp", timestamp)
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
