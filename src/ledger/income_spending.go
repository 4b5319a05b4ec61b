package ledger

import (
	"github.com/username/ledgerfolio/src/models"
)

func (e *Engine) processIncomeSpending(op models.IncomeSpending) error {
	amount := op.Amount()
	if amount.IsNegative() {
		creditTaken, err := e.takeCredit(op, op.AccountID, amount.Neg())
		if err != nil {
			return err
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookMoney,
			accountID: op.AccountID,
			amount:    amount.Neg().Sub(creditTaken).Neg(),
		}); err != nil {
			return err
		}
	} else {
		creditReturned, err := e.returnCredit(op, op.AccountID, amount)
		if err != nil {
			return err
		}
		if creditReturned.LessThan(amount) {
			if _, err := e.appendPosting(op, entry{
				book:      models.BookMoney,
				accountID: op.AccountID,
				amount:    amount.Sub(creditReturned),
			}); err != nil {
				return err
			}
		}
	}

	for _, line := range op.Lines {
		book := models.BookIncomes
		if line.Amount.IsNegative() {
			book = models.BookCosts
		}
		if _, err := e.appendPosting(op, entry{
			book:       book,
			accountID:  op.AccountID,
			amount:     line.Amount.Neg(),
			categoryID: line.CategoryID,
			peerID:     op.PeerID,
			tagID:      line.TagID,
		}); err != nil {
			return err
		}
	}
	return nil
}
