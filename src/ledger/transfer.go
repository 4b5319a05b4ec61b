package ledger

import (
	"github.com/username/ledgerfolio/src/models"
)

func (e *Engine) processTransfer(op models.Transfer) error {
	switch op.Leg {
	case models.LegOutgoing:
		if op.IsAsset() {
			return e.processAssetWithdrawal(op)
		}
		creditTaken, err := e.takeCredit(op, op.WithdrawalAccountID, op.Withdrawal)
		if err != nil {
			return err
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookMoney,
			accountID: op.WithdrawalAccountID,
			amount:    op.Withdrawal.Sub(creditTaken).Neg(),
		}); err != nil {
			return err
		}
		_, err = e.appendPosting(op, entry{
			book:      models.BookTransfers,
			accountID: op.WithdrawalAccountID,
			amount:    op.Withdrawal,
		})
		return err

	case models.LegFee:
		creditTaken, err := e.takeCredit(op, op.FeeAccountID, op.Fee)
		if err != nil {
			return err
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookMoney,
			accountID: op.FeeAccountID,
			amount:    op.Fee.Sub(creditTaken).Neg(),
		}); err != nil {
			return err
		}
		_, err = e.appendPosting(op, entry{
			book:       models.BookCosts,
			accountID:  op.FeeAccountID,
			amount:     op.Fee,
			categoryID: models.CategoryFees,
			peerID:     models.PeerFinancial,
		})
		return err

	case models.LegIncoming:
		if op.IsAsset() {
			return e.processAssetDeposit(op)
		}
		creditReturned, err := e.returnCredit(op, op.DepositAccountID, op.Deposit)
		if err != nil {
			return err
		}
		if creditReturned.LessThan(op.Deposit) {
			if _, err := e.appendPosting(op, entry{
				book:      models.BookMoney,
				accountID: op.DepositAccountID,
				amount:    op.Deposit.Sub(creditReturned),
			}); err != nil {
				return err
			}
		}
		_, err = e.appendPosting(op, entry{
			book:      models.BookTransfers,
			accountID: op.DepositAccountID,
			amount:    op.Deposit.Neg(),
		})
		return err
	}
	return consistencyErr(op, "unknown transfer leg")
}

// processAssetWithdrawal fully closes the withdrawn quantity and parks its
// cost-basis value, converted into the base currency, in the transfers book
// for the deposit leg to pick up. An asset transfer can't partially match:
// a shortfall means the stored history contradicts itself.
func (e *Engine) processAssetWithdrawal(op models.Transfer) error {
	assetAmount := e.getAmount(models.BookAssets, op.WithdrawalAccountID, op.AssetID)
	if assetAmount.LessThan(op.Withdrawal) {
		return consistencyQtyErr(op, "asset amount is not enough for asset transfer processing",
			op.Withdrawal, assetAmount)
	}
	processedQty, processedValue, _, err := e.closeDealsFIFO(
		op, op.WithdrawalAccountID, op.AssetID, -1, op.Withdrawal, nil)
	if err != nil {
		return err
	}
	if processedQty.LessThan(op.Withdrawal) {
		return consistencyQtyErr(op, "processed asset amount is less than transfer amount",
			op.Withdrawal, processedQty)
	}

	account, err := e.tx.Account(op.WithdrawalAccountID)
	if err != nil {
		return err
	}
	rate, err := e.exchangeRate(account.CurrencyID, op.WithdrawalTimestamp)
	if err != nil {
		return err
	}

	if _, err := e.appendPosting(op, entry{
		book:      models.BookAssets,
		accountID: op.WithdrawalAccountID,
		assetID:   op.AssetID,
		amount:    processedQty.Neg(),
		value:     processedValue.Neg(),
	}); err != nil {
		return err
	}
	_, err = e.appendPosting(op, entry{
		book:      models.BookTransfers,
		accountID: op.WithdrawalAccountID,
		assetID:   op.AssetID,
		amount:    op.Withdrawal,
		value:     processedValue.Mul(rate),
	})
	return err
}

// processAssetDeposit reads back the value the withdrawal leg parked in the
// transfers book for this operation and opens a lot at the implied price.
// Replay order guarantees the withdrawal leg went first; a missing value
// means it did not.
func (e *Engine) processAssetDeposit(op models.Transfer) error {
	value, err := e.tx.TransferValue(op.ID)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return consistencyErr(op, "asset withdrawal not found for transfer")
	}

	account, err := e.tx.Account(op.DepositAccountID)
	if err != nil {
		return err
	}
	rate, err := e.exchangeRate(account.CurrencyID, op.DepositTimestamp)
	if err != nil {
		return err
	}
	price := value.Mul(rate).Div(op.Deposit)

	if err := e.tx.AppendOpenLot(models.OpenLot{
		Timestamp:    op.DepositTimestamp,
		OpType:       op.OperationType(),
		OperationID:  op.ID,
		AccountID:    op.DepositAccountID,
		AssetID:      op.AssetID,
		Price:        price,
		RemainingQty: op.Deposit,
	}); err != nil {
		return err
	}
	if _, err := e.appendPosting(op, entry{
		book:      models.BookTransfers,
		accountID: op.DepositAccountID,
		assetID:   op.AssetID,
		amount:    op.Deposit.Neg(),
		value:     value.Neg(),
	}); err != nil {
		return err
	}
	_, err = e.appendPosting(op, entry{
		book:      models.BookAssets,
		accountID: op.DepositAccountID,
		assetID:   op.AssetID,
		amount:    op.Deposit,
		value:     value.Mul(rate),
	})
	return err
}
