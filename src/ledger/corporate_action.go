package ledger

import (
	"github.com/username/ledgerfolio/src/models"
)

func (e *Engine) processCorporateAction(op models.CorporateAction) error {
	account, err := e.tx.Account(op.AccountID)
	if err != nil {
		return err
	}
	assetAmount := e.getAmount(models.BookAssets, op.AccountID, op.AssetID)
	if assetAmount.LessThan(op.Qty) {
		return consistencyQtyErr(op, "asset amount is not enough for corporate action processing",
			op.Qty, assetAmount)
	}
	if assetAmount.GreaterThan(op.Qty) {
		return consistencyQtyErr(op, "unhandled case: corporate action covers not full open position",
			op.Qty, assetAmount)
	}

	processedQty, processedValue, matches, err := e.closeDealsFIFO(
		op, op.AccountID, op.AssetID, -1, op.Qty, nil)
	if err != nil {
		return err
	}
	// Withdraw the value together with the old quantity of the old asset.
	if _, err := e.appendPosting(op, entry{
		book:      models.BookAssets,
		accountID: op.AccountID,
		assetID:   op.AssetID,
		amount:    processedQty.Neg(),
		value:     processedValue.Neg(),
	}); err != nil {
		return err
	}

	if op.Subtype == models.ActionDelisting { // The whole value is written off
		_, err := e.appendPosting(op, entry{
			book:       models.BookCosts,
			accountID:  op.AccountID,
			amount:     processedValue,
			categoryID: models.CategoryProfit,
			peerID:     account.OrganizationID,
		})
		return err
	}

	for _, result := range op.Results {
		asset, err := e.tx.Asset(result.AssetID)
		if err != nil {
			return err
		}
		if asset.Type == models.AssetMoney {
			if _, err := e.appendPosting(op, entry{
				book:      models.BookMoney,
				accountID: op.AccountID,
				amount:    result.Qty,
			}); err != nil {
				return err
			}
			if _, err := e.appendPosting(op, entry{
				book:       models.BookIncomes,
				accountID:  op.AccountID,
				amount:     result.Qty.Neg(),
				categoryID: models.CategoryInterest,
				peerID:     account.OrganizationID,
			}); err != nil {
				return err
			}
			continue
		}

		value := result.ValueShare.Mul(processedValue)
		if op.Subtype == models.ActionSymbolChange {
			// A renamed holding keeps its history: each consumed lot is
			// reopened under the new symbol with its original opening
			// timestamp and an equivalent price, so cost basis and holding
			// period survive the rename.
			for _, match := range matches {
				matchQty := match.qty.Mul(result.Qty).Div(op.Qty)
				matchPrice := result.ValueShare.Mul(match.price).Mul(op.Qty).Div(result.Qty)
				if err := e.tx.AppendOpenLot(models.OpenLot{
					Timestamp:    match.timestamp,
					OpType:       op.OperationType(),
					OperationID:  op.ID,
					AccountID:    op.AccountID,
					AssetID:      result.AssetID,
					Price:        matchPrice,
					RemainingQty: matchQty,
				}); err != nil {
					return err
				}
			}
		} else {
			price := value.Div(result.Qty)
			if err := e.tx.AppendOpenLot(models.OpenLot{
				Timestamp:    op.Timestamp,
				OpType:       op.OperationType(),
				OperationID:  op.ID,
				AccountID:    op.AccountID,
				AssetID:      result.AssetID,
				Price:        price,
				RemainingQty: result.Qty,
			}); err != nil {
				return err
			}
		}
		if _, err := e.appendPosting(op, entry{
			book:      models.BookAssets,
			accountID: op.AccountID,
			assetID:   result.AssetID,
			amount:    result.Qty,
			value:     value,
		}); err != nil {
			return err
		}
	}
	return nil
}
