package ledger

import (
	"errors"

	"github.com/username/ledgerfolio/src/models"
	"github.com/username/ledgerfolio/src/storage"
)

func (e *Engine) processDividend(op models.Dividend) error {
	account, err := e.tx.Account(op.AccountID)
	if err != nil {
		return err
	}
	if account.OrganizationID == 0 {
		return consistencyErr(op, "can't process dividend as bank isn't set for investment account: "+account.Name)
	}
	if op.IsStock() {
		return e.processStockDividendOrVesting(op, account)
	}

	var category int64
	switch op.Subtype {
	case models.DividendCash:
		category = models.CategoryDividends
	case models.DividendBondInterest:
		category = models.CategoryInterest
	}

	operationValue := op.Amount.Sub(op.Tax)
	if operationValue.IsPositive() {
		creditReturned, err := e.returnCredit(op, op.AccountID, operationValue)
		if err != nil {
			return err
		}
		if creditReturned.LessThan(operationValue) {
			if _, err := e.appendPosting(op, entry{
				book:      models.BookMoney,
				accountID: op.AccountID,
				amount:    operationValue.Sub(creditReturned),
			}); err != nil {
				return err
			}
		}
	} else {
		// Negative values happen for accrued interest charged with bond
		// buying trades.
		creditTaken, err := e.takeCredit(op, op.AccountID, operationValue.Neg())
		if err != nil {
			return err
		}
		if creditTaken.LessThan(operationValue.Neg()) {
			if _, err := e.appendPosting(op, entry{
				book:      models.BookMoney,
				accountID: op.AccountID,
				amount:    operationValue.Add(creditTaken),
			}); err != nil {
				return err
			}
		}
	}

	book := models.BookIncomes
	if !op.Amount.IsPositive() {
		book = models.BookCosts
	}
	if _, err := e.appendPosting(op, entry{
		book:       book,
		accountID:  op.AccountID,
		amount:     op.Amount.Neg(),
		categoryID: category,
		peerID:     account.OrganizationID,
	}); err != nil {
		return err
	}

	if !op.Tax.IsZero() {
		if _, err := e.appendPosting(op, entry{
			book:       models.BookCosts,
			accountID:  op.AccountID,
			amount:     op.Tax,
			categoryID: models.CategoryTaxes,
			peerID:     account.OrganizationID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// processStockDividendOrVesting opens a lot for the received shares at the
// quote price of the dividend instant. A quote at exactly the operation
// timestamp is required: the position's cost basis would otherwise be
// arbitrary.
func (e *Engine) processStockDividendOrVesting(op models.Dividend, account models.Account) error {
	assetAmount := e.getAmount(models.BookAssets, op.AccountID, op.AssetID)
	if assetAmount.IsNegative() {
		return consistencyErr(op, "not supported action: stock dividend or vesting closes short trade")
	}
	price, err := e.tx.QuoteAt(op.AssetID, account.CurrencyID, op.Timestamp)
	if errors.Is(err, storage.ErrNotFound) {
		return consistencyErr(op, "no stock quote for stock dividend or vesting")
	}
	if err != nil {
		return err
	}

	if err := e.tx.AppendOpenLot(models.OpenLot{
		Timestamp:    op.Timestamp,
		OpType:       op.OperationType(),
		OperationID:  op.ID,
		AccountID:    op.AccountID,
		AssetID:      op.AssetID,
		Price:        price,
		RemainingQty: op.Amount,
	}); err != nil {
		return err
	}
	if _, err := e.appendPosting(op, entry{
		book:      models.BookAssets,
		accountID: op.AccountID,
		assetID:   op.AssetID,
		amount:    op.Amount,
		value:     op.Amount.Mul(price),
	}); err != nil {
		return err
	}

	if !op.Tax.IsZero() {
		if _, err := e.appendPosting(op, entry{
			book:      models.BookMoney,
			accountID: op.AccountID,
			amount:    op.Tax.Neg(),
		}); err != nil {
			return err
		}
		if _, err := e.appendPosting(op, entry{
			book:       models.BookCosts,
			accountID:  op.AccountID,
			amount:     op.Tax,
			categoryID: models.CategoryTaxes,
			peerID:     account.OrganizationID,
		}); err != nil {
			return err
		}
	}
	return nil
}
