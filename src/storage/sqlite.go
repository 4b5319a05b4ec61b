package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

// SQLiteStore implements Store on a *sql.DB opened by the database package.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) Account(ctx context.Context, id int64) (models.Account, error) {
	var a models.Account
	var org sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, currency_id, organization_id FROM accounts WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &a.CurrencyID, &org)
	if err == sql.ErrNoRows {
		return models.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("querying account %d: %w", id, err)
	}
	a.OrganizationID = org.Int64
	return a, nil
}

func (s *SQLiteStore) Asset(ctx context.Context, id int64) (models.Asset, error) {
	var a models.Asset
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, symbol, name, type FROM assets WHERE id = ?", id).
		Scan(&a.ID, &a.Symbol, &name, &a.Type)
	if err == sql.ErrNoRows {
		return models.Asset{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("querying asset %d: %w", id, err)
	}
	a.Name = name.String
	return a, nil
}

func (s *SQLiteStore) LatestQuote(ctx context.Context, assetID, currencyID, timestamp int64) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT quote FROM quotes
		 WHERE asset_id = ? AND currency_id = ? AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		assetID, currencyID, timestamp).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("quote for asset %d in currency %d: %w", assetID, currencyID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying quote: %w", err)
	}
	return parseDecimal(raw)
}

// Balances aggregates postings at or before asOf; 0 means the whole
// history.
func (s *SQLiteStore) Balances(ctx context.Context, asOf int64) ([]BalanceRow, error) {
	query := "SELECT book, account_id, COALESCE(asset_id, 0), amount, value FROM postings"
	args := []any{}
	if asOf != 0 {
		query += " WHERE timestamp <= ?"
		args = append(args, asOf)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	defer rows.Close()
	return sumBalanceRows(rows)
}

func (s *SQLiteStore) AccountBalance(ctx context.Context, book models.BookAccount, accountID, assetID, asOf int64) (decimal.Decimal, error) {
	query := `SELECT amount FROM postings
		 WHERE book = ? AND account_id = ? AND COALESCE(asset_id, 0) = ?`
	args := []any{book, accountID, assetID}
	if asOf != 0 {
		query += " AND timestamp <= ?"
		args = append(args, asOf)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying balance: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amount, err := parseDecimal(raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// ClosedDeals returns realized deals, each zero filter meaning "any":
// accountID and assetID select a position, from and to bound the close
// timestamp (inclusive).
func (s *SQLiteStore) ClosedDeals(ctx context.Context, accountID, assetID, from, to int64) ([]models.ClosedDeal, error) {
	query := `SELECT account_id, asset_id,
		open_op_type, open_op_id, open_timestamp, open_price,
		close_op_type, close_op_id, close_timestamp, close_price, qty
		FROM closed_deals WHERE 1=1`
	args := []any{}
	if accountID != 0 {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}
	if assetID != 0 {
		query += " AND asset_id = ?"
		args = append(args, assetID)
	}
	if from != 0 {
		query += " AND close_timestamp >= ?"
		args = append(args, from)
	}
	if to != 0 {
		query += " AND close_timestamp <= ?"
		args = append(args, to)
	}
	query += " ORDER BY close_timestamp, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying closed deals: %w", err)
	}
	defer rows.Close()

	var deals []models.ClosedDeal
	for rows.Next() {
		var d models.ClosedDeal
		var openPrice, closePrice, qty string
		if err := rows.Scan(&d.AccountID, &d.AssetID,
			&d.OpenOpType, &d.OpenOpID, &d.OpenTimestamp, &openPrice,
			&d.CloseOpType, &d.CloseOpID, &d.CloseTimestamp, &closePrice, &qty); err != nil {
			return nil, err
		}
		if d.OpenPrice, err = parseDecimal(openPrice); err != nil {
			return nil, err
		}
		if d.ClosePrice, err = parseDecimal(closePrice); err != nil {
			return nil, err
		}
		if d.Qty, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (s *SQLiteStore) OpenPositions(ctx context.Context, accountID, assetID int64) ([]PositionRow, error) {
	query := "SELECT account_id, asset_id, price, remaining_qty FROM open_lots WHERE 1=1"
	args := []any{}
	if accountID != 0 {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}
	if assetID != 0 {
		query += " AND asset_id = ?"
		args = append(args, assetID)
	}
	query += " ORDER BY account_id, asset_id, timestamp, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying open lots: %w", err)
	}
	defer rows.Close()

	type key struct{ account, asset int64 }
	totals := make(map[key]*PositionRow)
	var order []key
	for rows.Next() {
		var k key
		var rawPrice, rawQty string
		if err := rows.Scan(&k.account, &k.asset, &rawPrice, &rawQty); err != nil {
			return nil, err
		}
		price, err := parseDecimal(rawPrice)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal(rawQty)
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		row, ok := totals[k]
		if !ok {
			row = &PositionRow{AccountID: k.account, AssetID: k.asset}
			totals[k] = row
			order = append(order, k)
		}
		row.Qty = row.Qty.Add(qty)
		row.Value = row.Value.Add(qty.Mul(price))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	positions := make([]PositionRow, 0, len(order))
	for _, k := range order {
		if !totals[k].Qty.IsZero() {
			positions = append(positions, *totals[k])
		}
	}
	return positions, nil
}

// --- transaction ---

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) LoadOperations(from int64) ([]models.Operation, error) {
	var ops []models.Operation

	incomeSpendings, err := t.loadIncomeSpendings(from)
	if err != nil {
		return nil, err
	}
	ops = append(ops, incomeSpendings...)

	dividends, err := t.loadDividends(from)
	if err != nil {
		return nil, err
	}
	ops = append(ops, dividends...)

	trades, err := t.loadTrades(from)
	if err != nil {
		return nil, err
	}
	ops = append(ops, trades...)

	transfers, err := t.loadTransferLegs(from)
	if err != nil {
		return nil, err
	}
	ops = append(ops, transfers...)

	actions, err := t.loadCorporateActions(from)
	if err != nil {
		return nil, err
	}
	ops = append(ops, actions...)

	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.When() != b.When() {
			return a.When() < b.When()
		}
		if a.OperationType() != b.OperationType() {
			return a.OperationType() < b.OperationType()
		}
		if a.OperationID() != b.OperationID() {
			return a.OperationID() < b.OperationID()
		}
		return transferLeg(a) < transferLeg(b)
	})
	return ops, nil
}

func transferLeg(op models.Operation) models.TransferLeg {
	if t, ok := op.(models.Transfer); ok {
		return t.Leg
	}
	return 0
}

func (t *sqliteTx) loadIncomeSpendings(from int64) ([]models.Operation, error) {
	rows, err := t.tx.Query(
		`SELECT id, timestamp, account_id, peer_id, COALESCE(note, '')
		 FROM actions WHERE timestamp >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	var ids []int64
	byID := make(map[int64]*models.IncomeSpending)
	for rows.Next() {
		var op models.IncomeSpending
		if err := rows.Scan(&op.ID, &op.Timestamp, &op.AccountID, &op.PeerID, &op.Note); err != nil {
			return nil, err
		}
		ids = append(ids, op.ID)
		byID[op.ID] = &op
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		op := byID[id]
		lines, err := t.loadActionDetails(id)
		if err != nil {
			return nil, err
		}
		op.Lines = lines
		ops = append(ops, *op)
	}
	return ops, nil
}

func (t *sqliteTx) loadActionDetails(actionID int64) ([]models.SpendingLine, error) {
	rows, err := t.tx.Query(
		`SELECT category_id, COALESCE(tag_id, 0), amount, COALESCE(note, '')
		 FROM action_details WHERE action_id = ? ORDER BY id`, actionID)
	if err != nil {
		return nil, fmt.Errorf("querying action details: %w", err)
	}
	defer rows.Close()

	var lines []models.SpendingLine
	for rows.Next() {
		var line models.SpendingLine
		var raw string
		if err := rows.Scan(&line.CategoryID, &line.TagID, &raw, &line.Note); err != nil {
			return nil, err
		}
		if line.Amount, err = parseDecimal(raw); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *sqliteTx) loadDividends(from int64) ([]models.Operation, error) {
	rows, err := t.tx.Query(
		`SELECT id, timestamp, COALESCE(ex_date, 0), type, account_id, asset_id,
		 amount, tax, COALESCE(note, '')
		 FROM dividends WHERE timestamp >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("querying dividends: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var op models.Dividend
		var amount, tax string
		if err := rows.Scan(&op.ID, &op.Timestamp, &op.ExDate, &op.Subtype,
			&op.AccountID, &op.AssetID, &amount, &tax, &op.Note); err != nil {
			return nil, err
		}
		if op.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if op.Tax, err = parseDecimal(tax); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (t *sqliteTx) loadTrades(from int64) ([]models.Operation, error) {
	rows, err := t.tx.Query(
		`SELECT id, timestamp, COALESCE(settlement, 0), account_id, asset_id,
		 qty, price, fee, COALESCE(note, '')
		 FROM trades WHERE timestamp >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var op models.Trade
		var qty, price, fee string
		if err := rows.Scan(&op.ID, &op.Timestamp, &op.Settlement, &op.AccountID,
			&op.AssetID, &qty, &price, &fee, &op.Note); err != nil {
			return nil, err
		}
		if op.Qty, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if op.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if op.Fee, err = parseDecimal(fee); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// loadTransferLegs expands each transfer row into up to three replayable
// legs. Only legs effective at or after from are returned; a leg that
// already happened before the rebuild frontier keeps its postings.
func (t *sqliteTx) loadTransferLegs(from int64) ([]models.Operation, error) {
	rows, err := t.tx.Query(
		`SELECT id, withdrawal_timestamp, withdrawal_account, withdrawal,
		 deposit_timestamp, deposit_account, deposit,
		 COALESCE(fee_account, 0), fee, COALESCE(asset_id, 0), COALESCE(note, '')
		 FROM transfers
		 WHERE withdrawal_timestamp >= ? OR deposit_timestamp >= ?`, from, from)
	if err != nil {
		return nil, fmt.Errorf("querying transfers: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var op models.Transfer
		var withdrawal, deposit, fee string
		if err := rows.Scan(&op.ID, &op.WithdrawalTimestamp, &op.WithdrawalAccountID, &withdrawal,
			&op.DepositTimestamp, &op.DepositAccountID, &deposit,
			&op.FeeAccountID, &fee, &op.AssetID, &op.Note); err != nil {
			return nil, err
		}
		if op.Withdrawal, err = parseDecimal(withdrawal); err != nil {
			return nil, err
		}
		if op.Deposit, err = parseDecimal(deposit); err != nil {
			return nil, err
		}
		if op.Fee, err = parseDecimal(fee); err != nil {
			return nil, err
		}

		if op.WithdrawalTimestamp >= from {
			outgoing := op
			outgoing.Leg = models.LegOutgoing
			ops = append(ops, outgoing)
			if op.FeeAccountID > 0 && !op.Fee.IsZero() {
				feeLeg := op
				feeLeg.Leg = models.LegFee
				ops = append(ops, feeLeg)
			}
		}
		if op.DepositTimestamp >= from {
			incoming := op
			incoming.Leg = models.LegIncoming
			ops = append(ops, incoming)
		}
	}
	return ops, rows.Err()
}

func (t *sqliteTx) loadCorporateActions(from int64) ([]models.Operation, error) {
	rows, err := t.tx.Query(
		`SELECT id, timestamp, account_id, type, asset_id, qty, COALESCE(note, '')
		 FROM asset_actions WHERE timestamp >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("querying asset actions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	byID := make(map[int64]*models.CorporateAction)
	for rows.Next() {
		var op models.CorporateAction
		var qty string
		if err := rows.Scan(&op.ID, &op.Timestamp, &op.AccountID, &op.Subtype,
			&op.AssetID, &qty, &op.Note); err != nil {
			return nil, err
		}
		if op.Qty, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		ids = append(ids, op.ID)
		byID[op.ID] = &op
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var ops []models.Operation
	for _, id := range ids {
		op := byID[id]
		results, err := t.loadActionResults(id)
		if err != nil {
			return nil, err
		}
		op.Results = results
		ops = append(ops, *op)
	}
	return ops, nil
}

func (t *sqliteTx) loadActionResults(actionID int64) ([]models.ActionResult, error) {
	rows, err := t.tx.Query(
		`SELECT asset_id, qty, value_share FROM action_results
		 WHERE action_id = ? ORDER BY id`, actionID)
	if err != nil {
		return nil, fmt.Errorf("querying action results: %w", err)
	}
	defer rows.Close()

	var results []models.ActionResult
	for rows.Next() {
		var r models.ActionResult
		var qty, share string
		if err := rows.Scan(&r.AssetID, &qty, &share); err != nil {
			return nil, err
		}
		if r.Qty, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if r.ValueShare, err = parseDecimal(share); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (t *sqliteTx) LoadOpenLots(accountID, assetID int64) ([]models.OpenLot, error) {
	rows, err := t.tx.Query(
		`SELECT id, timestamp, op_type, operation_id, account_id, asset_id, price, remaining_qty
		 FROM open_lots WHERE account_id = ? AND asset_id = ?
		 ORDER BY timestamp ASC, op_type DESC, id ASC`, accountID, assetID)
	if err != nil {
		return nil, fmt.Errorf("querying open lots: %w", err)
	}
	defer rows.Close()

	var lots []models.OpenLot
	for rows.Next() {
		var lot models.OpenLot
		var price, remaining string
		if err := rows.Scan(&lot.ID, &lot.Timestamp, &lot.OpType, &lot.OperationID,
			&lot.AccountID, &lot.AssetID, &price, &remaining); err != nil {
			return nil, err
		}
		if lot.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if lot.RemainingQty, err = parseDecimal(remaining); err != nil {
			return nil, err
		}
		if lot.RemainingQty.IsZero() {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (t *sqliteTx) UpdateLotRemaining(lotID int64, remaining decimal.Decimal) error {
	_, err := t.tx.Exec("UPDATE open_lots SET remaining_qty = ? WHERE id = ?",
		remaining.String(), lotID)
	if err != nil {
		return fmt.Errorf("updating lot %d: %w", lotID, err)
	}
	return nil
}

func (t *sqliteTx) AppendOpenLot(lot models.OpenLot) error {
	_, err := t.tx.Exec(
		`INSERT INTO open_lots (timestamp, op_type, operation_id, account_id, asset_id, price, remaining_qty)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lot.Timestamp, lot.OpType, lot.OperationID, lot.AccountID, lot.AssetID,
		lot.Price.String(), lot.RemainingQty.String())
	if err != nil {
		return fmt.Errorf("inserting open lot: %w", err)
	}
	return nil
}

func (t *sqliteTx) AppendClosedDeal(d models.ClosedDeal) error {
	_, err := t.tx.Exec(
		`INSERT INTO closed_deals (account_id, asset_id,
		 open_op_type, open_op_id, open_timestamp, open_price,
		 close_op_type, close_op_id, close_timestamp, close_price, qty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AccountID, d.AssetID,
		d.OpenOpType, d.OpenOpID, d.OpenTimestamp, d.OpenPrice.String(),
		d.CloseOpType, d.CloseOpID, d.CloseTimestamp, d.ClosePrice.String(), d.Qty.String())
	if err != nil {
		return fmt.Errorf("inserting closed deal: %w", err)
	}
	return nil
}

func (t *sqliteTx) AppendPosting(p models.Posting) error {
	assetID := sql.NullInt64{Int64: p.AssetID, Valid: p.AssetID != 0}
	categoryID := sql.NullInt64{Int64: p.CategoryID, Valid: p.CategoryID != 0}
	peerID := sql.NullInt64{Int64: p.PeerID, Valid: p.PeerID != 0}
	tagID := sql.NullInt64{Int64: p.TagID, Valid: p.TagID != 0}
	_, err := t.tx.Exec(
		`INSERT INTO postings (timestamp, op_type, operation_id, book, account_id,
		 asset_id, amount, value, category_id, peer_id, tag_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Timestamp, p.OpType, p.OperationID, p.Book, p.AccountID,
		assetID, p.Amount.String(), p.Value.String(), categoryID, peerID, tagID)
	if err != nil {
		return fmt.Errorf("inserting posting: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteFrom(from int64) error {
	if err := t.restoreConsumedLots(from); err != nil {
		return err
	}
	if _, err := t.tx.Exec("DELETE FROM closed_deals WHERE close_timestamp >= ?", from); err != nil {
		return fmt.Errorf("deleting closed deals: %w", err)
	}
	// A symbol change opens lots that keep the source lot's earlier
	// timestamp, so lots are also matched through their creating action.
	if _, err := t.tx.Exec(
		`DELETE FROM open_lots WHERE timestamp >= ?
		 OR (op_type = ? AND operation_id IN
		     (SELECT id FROM asset_actions WHERE timestamp >= ?))`,
		from, models.OpCorporateAction, from); err != nil {
		return fmt.Errorf("deleting open lots: %w", err)
	}
	if _, err := t.tx.Exec("DELETE FROM postings WHERE timestamp >= ?", from); err != nil {
		return fmt.Errorf("deleting postings: %w", err)
	}
	return nil
}

// restoreConsumedLots gives quantity back to lots opened before the rebuild
// frontier that deals being deleted had consumed. Without this step a
// partial rebuild would replay sells against an understated position.
func (t *sqliteTx) restoreConsumedLots(from int64) error {
	rows, err := t.tx.Query(
		`SELECT account_id, asset_id, open_op_type, open_op_id, open_timestamp, open_price, qty
		 FROM closed_deals WHERE close_timestamp >= ? AND open_timestamp < ?`, from, from)
	if err != nil {
		return fmt.Errorf("querying deals to restore: %w", err)
	}
	defer rows.Close()

	type restore struct {
		accountID, assetID int64
		opType             models.OperationType
		opID               int64
		timestamp          int64
		price              string
		qty                decimal.Decimal
	}
	var restores []restore
	for rows.Next() {
		var r restore
		var rawQty string
		if err := rows.Scan(&r.accountID, &r.assetID, &r.opType, &r.opID,
			&r.timestamp, &r.price, &rawQty); err != nil {
			return err
		}
		qty, err := parseDecimal(rawQty)
		if err != nil {
			return err
		}
		r.qty = qty.Abs()
		restores = append(restores, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range restores {
		var lotID int64
		var rawRemaining string
		err := t.tx.QueryRow(
			`SELECT id, remaining_qty FROM open_lots
			 WHERE account_id = ? AND asset_id = ? AND op_type = ? AND operation_id = ?
			 AND timestamp = ? AND price = ?
			 ORDER BY id LIMIT 1`,
			r.accountID, r.assetID, r.opType, r.opID, r.timestamp, r.price).
			Scan(&lotID, &rawRemaining)
		if err == sql.ErrNoRows {
			return fmt.Errorf("lot for deal opened by %s #%d at %d is missing",
				r.opType, r.opID, r.timestamp)
		}
		if err != nil {
			return fmt.Errorf("querying lot to restore: %w", err)
		}
		remaining, err := parseDecimal(rawRemaining)
		if err != nil {
			return err
		}
		if err := t.UpdateLotRemaining(lotID, remaining.Add(r.qty)); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) BookSumsBefore(from int64) ([]BalanceRow, error) {
	rows, err := t.tx.Query(
		`SELECT book, account_id, COALESCE(asset_id, 0), amount, value
		 FROM postings WHERE timestamp < ?`, from)
	if err != nil {
		return nil, fmt.Errorf("querying postings before %d: %w", from, err)
	}
	defer rows.Close()
	return sumBalanceRows(rows)
}

func (t *sqliteTx) TransferValue(transferID int64) (decimal.Decimal, error) {
	rows, err := t.tx.Query(
		`SELECT value FROM postings
		 WHERE op_type = ? AND operation_id = ? AND book = ?`,
		models.OpTransfer, transferID, models.BookTransfers)
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying transfer value: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		value, err := parseDecimal(raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(value)
	}
	return total, rows.Err()
}

func (t *sqliteTx) QuoteAt(assetID, currencyID, timestamp int64) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(
		`SELECT quote FROM quotes
		 WHERE asset_id = ? AND currency_id = ? AND timestamp = ?`,
		assetID, currencyID, timestamp).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("quote for asset %d at %d: %w", assetID, timestamp, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying quote: %w", err)
	}
	return parseDecimal(raw)
}

func (t *sqliteTx) LatestQuote(assetID, currencyID, timestamp int64) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(
		`SELECT quote FROM quotes
		 WHERE asset_id = ? AND currency_id = ? AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		assetID, currencyID, timestamp).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("quote for asset %d in currency %d: %w", assetID, currencyID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("querying quote: %w", err)
	}
	return parseDecimal(raw)
}

func (t *sqliteTx) Account(id int64) (models.Account, error) {
	var a models.Account
	var org sql.NullInt64
	err := t.tx.QueryRow(
		"SELECT id, name, currency_id, organization_id FROM accounts WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &a.CurrencyID, &org)
	if err == sql.ErrNoRows {
		return models.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("querying account %d: %w", id, err)
	}
	a.OrganizationID = org.Int64
	return a, nil
}

func (t *sqliteTx) Asset(id int64) (models.Asset, error) {
	var a models.Asset
	var name sql.NullString
	err := t.tx.QueryRow(
		"SELECT id, symbol, name, type FROM assets WHERE id = ?", id).
		Scan(&a.ID, &a.Symbol, &name, &a.Type)
	if err == sql.ErrNoRows {
		return models.Asset{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("querying asset %d: %w", id, err)
	}
	a.Name = name.String
	return a, nil
}

// --- helpers ---

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing decimal %q: %w", raw, err)
	}
	return d, nil
}

func sumBalanceRows(rows *sql.Rows) ([]BalanceRow, error) {
	type key struct {
		book    models.BookAccount
		account int64
		asset   int64
	}
	totals := make(map[key]*BalanceRow)
	var order []key
	for rows.Next() {
		var k key
		var rawAmount, rawValue string
		if err := rows.Scan(&k.book, &k.account, &k.asset, &rawAmount, &rawValue); err != nil {
			return nil, err
		}
		amount, err := parseDecimal(rawAmount)
		if err != nil {
			return nil, err
		}
		value, err := parseDecimal(rawValue)
		if err != nil {
			return nil, err
		}
		row, ok := totals[k]
		if !ok {
			row = &BalanceRow{Book: k.book, AccountID: k.account, AssetID: k.asset}
			totals[k] = row
			order = append(order, k)
		}
		row.Amount = row.Amount.Add(amount)
		row.Value = row.Value.Add(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.book != b.book {
			return a.book < b.book
		}
		if a.account != b.account {
			return a.account < b.account
		}
		return a.asset < b.asset
	})
	result := make([]BalanceRow, 0, len(order))
	for _, k := range order {
		result = append(result, *totals[k])
	}
	return result, nil
}
