package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

// lotMatch records one lot consumption of a FIFO close, kept so callers
// that need per-lot cost-basis continuity (symbol changes) can rebuild the
// consumed lots for a successor asset.
type lotMatch struct {
	timestamp int64
	price     decimal.Decimal
	qty       decimal.Decimal
}

// closeDealsFIFO matches qty against the open lots of (accountID, assetID)
// oldest first, ties broken by the higher operation-type ordinal. dealSign
// is +1 when the closing operation is a buy and -1 when it is a sell. price
// is the close price for the emitted deals; nil means each lot closes at
// its own opening price (corporate actions and transfers, which realize no
// profit). Consumes min(remaining, still-needed) per lot and stops when qty
// is matched or lots run out; a shortfall is returned, not an error, and
// full-closure callers must treat it as fatal themselves.
//
// Returns the matched quantity, the matched value at opening prices and
// the per-lot consumption trail.
func (e *Engine) closeDealsFIFO(op models.Operation, accountID, assetID int64, dealSign int64, qty decimal.Decimal, price *decimal.Decimal) (decimal.Decimal, decimal.Decimal, []lotMatch, error) {
	processedQty := decimal.Zero
	processedValue := decimal.Zero
	var matches []lotMatch

	lots, err := e.tx.LoadOpenLots(accountID, assetID)
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, err
	}
	closeSign := decimal.NewFromInt(-dealSign)
	for _, lot := range lots {
		nextQty := lot.RemainingQty
		if processedQty.Add(nextQty).GreaterThan(qty) {
			nextQty = qty.Sub(processedQty)
		}
		if err := e.tx.UpdateLotRemaining(lot.ID, lot.RemainingQty.Sub(nextQty)); err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		closePrice := lot.Price
		if price != nil {
			closePrice = *price
		}
		deal := models.ClosedDeal{
			AccountID:      accountID,
			AssetID:        assetID,
			OpenOpType:     lot.OpType,
			OpenOpID:       lot.OperationID,
			OpenTimestamp:  lot.Timestamp,
			OpenPrice:      lot.Price,
			CloseOpType:    op.OperationType(),
			CloseOpID:      op.OperationID(),
			CloseTimestamp: op.When(),
			ClosePrice:     closePrice,
			Qty:            closeSign.Mul(nextQty),
		}
		if err := e.tx.AppendClosedDeal(deal); err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		processedQty = processedQty.Add(nextQty)
		processedValue = processedValue.Add(nextQty.Mul(lot.Price))
		matches = append(matches, lotMatch{timestamp: lot.Timestamp, price: lot.Price, qty: nextQty})
		if processedQty.Equal(qty) {
			break
		}
	}
	return processedQty, processedValue, matches, nil
}
