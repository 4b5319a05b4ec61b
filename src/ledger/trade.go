package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

func (e *Engine) processTrade(op models.Trade) error {
	account, err := e.tx.Account(op.AccountID)
	if err != nil {
		return err
	}
	if account.OrganizationID == 0 {
		return consistencyErr(op, "can't process trade as bank isn't set for investment account: "+account.Name)
	}

	dealSign := int64(1) // 1 is buy and -1 is sell operation
	if op.Qty.IsNegative() {
		dealSign = -1
	}
	sign := decimal.NewFromInt(dealSign)
	qty := op.Qty.Abs()
	tradeValue := op.Price.Mul(qty).Add(sign.Mul(op.Fee))

	processedQty := decimal.Zero
	processedValue := decimal.Zero
	// Match first if the accumulated position is opposite to the operation.
	assetAmount := e.getAmount(models.BookAssets, op.AccountID, op.AssetID)
	if sign.Neg().Mul(assetAmount).IsPositive() {
		price := op.Price
		processedQty, processedValue, _, err = e.closeDealsFIFO(op, op.AccountID, op.AssetID, dealSign, qty, &price)
		if err != nil {
			return err
		}
	}

	var creditValue decimal.Decimal
	if dealSign > 0 {
		creditValue, err = e.takeCredit(op, op.AccountID, tradeValue)
	} else {
		creditValue, err = e.returnCredit(op, op.AccountID, tradeValue)
	}
	if err != nil {
		return err
	}
	if creditValue.LessThan(tradeValue) {
		if _, err := e.appendPosting(op, entry{
			book:      models.BookMoney,
			accountID: op.AccountID,
			amount:    sign.Neg().Mul(tradeValue.Sub(creditValue)),
		}); err != nil {
			return err
		}
	}

	if processedQty.IsPositive() {
		roundingError, err := e.appendPosting(op, entry{
			book:      models.BookAssets,
			accountID: op.AccountID,
			assetID:   op.AssetID,
			amount:    sign.Mul(processedQty),
			value:     sign.Mul(processedValue),
		})
		if err != nil {
			return err
		}
		profit := sign.Mul(op.Price.Mul(processedQty).Sub(processedValue).Add(roundingError))
		if _, err := e.appendPosting(op, entry{
			book:       models.BookIncomes,
			accountID:  op.AccountID,
			amount:     profit,
			categoryID: models.CategoryProfit,
			peerID:     account.OrganizationID,
		}); err != nil {
			return err
		}
	}

	if processedQty.LessThan(qty) { // The remainder opens a new position
		remainder := qty.Sub(processedQty)
		if err := e.tx.AppendOpenLot(models.OpenLot{
			Timestamp:    op.Timestamp,
			OpType:       op.OperationType(),
			OperationID:  op.ID,
			AccountID:    op.AccountID,
			AssetID:      op.AssetID,
			Price:        op.Price,
			RemainingQty: remainder,
		}); err != nil {
			return err
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookAssets,
			accountID: op.AccountID,
			assetID:   op.AssetID,
			amount:    sign.Mul(remainder),
			value:     sign.Mul(remainder).Mul(op.Price),
		}); err != nil {
			return err
		}
	}

	if !op.Fee.IsZero() {
		if _, err := e.appendPosting(op, entry{
			book:       models.BookCosts,
			accountID:  op.AccountID,
			amount:     op.Fee,
			categoryID: models.CategoryFees,
			peerID:     account.OrganizationID,
		}); err != nil {
			return err
		}
	}
	return nil
}
