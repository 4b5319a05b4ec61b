package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/database"
	"github.com/username/ledgerfolio/src/models"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db), db
}

func exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func beginTx(t *testing.T, store *SQLiteStore) Tx {
	t.Helper()
	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func TestLoadOperationsReplayOrder(t *testing.T) {
	store, db := newTestStore(t)
	// Three different operations share the timestamp 1000; replay must
	// order them by operation type. The transfer also exercises leg
	// expansion: two accounts and a fee give three legs.
	exec(t, db, `INSERT INTO trades (id, timestamp, account_id, asset_id, qty, price, fee)
		VALUES (5, 1000, 1, 4, '10', '5', '0')`)
	exec(t, db, `INSERT INTO actions (id, timestamp, account_id, peer_id) VALUES (3, 1000, 1, 1)`)
	exec(t, db, `INSERT INTO action_details (action_id, category_id, amount) VALUES (3, 1, '100')`)
	exec(t, db, `INSERT INTO transfers (id, withdrawal_timestamp, withdrawal_account, withdrawal,
		deposit_timestamp, deposit_account, deposit, fee_account, fee, asset_id)
		VALUES (2, 1000, 1, '50', 2000, 2, '50', 1, '1', NULL)`)

	tx := beginTx(t, store)
	ops, err := tx.LoadOperations(0)
	if err != nil {
		t.Fatalf("loading operations: %v", err)
	}

	var got []string
	for _, op := range ops {
		got = append(got, models.Ref(op).String())
	}
	want := []string{
		"income_spending #3",
		"trade #5",
		"transfer #2", // outgoing leg
		"transfer #2", // fee leg
		"transfer #2", // incoming leg at 2000
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d operations %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("operation %d = %s, want %s", i, got[i], want[i])
		}
	}

	legs := []models.TransferLeg{models.LegOutgoing, models.LegFee, models.LegIncoming}
	for i, op := range ops[2:] {
		transfer, ok := op.(models.Transfer)
		if !ok {
			t.Fatalf("operation %d is %T, want a transfer", i+2, op)
		}
		if transfer.Leg != legs[i] {
			t.Errorf("leg %d = %d, want %d", i, transfer.Leg, legs[i])
		}
	}
}

func TestLoadOperationsPerLegWindow(t *testing.T) {
	store, db := newTestStore(t)
	exec(t, db, `INSERT INTO transfers (id, withdrawal_timestamp, withdrawal_account, withdrawal,
		deposit_timestamp, deposit_account, deposit, fee_account, fee, asset_id)
		VALUES (1, 1000, 1, '50', 3000, 2, '50', NULL, '0', NULL)`)

	tx := beginTx(t, store)
	ops, err := tx.LoadOperations(2000)
	if err != nil {
		t.Fatalf("loading operations: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("loaded %d operations, want only the deposit leg", len(ops))
	}
	transfer := ops[0].(models.Transfer)
	if transfer.Leg != models.LegIncoming {
		t.Errorf("leg = %d, want the incoming leg", transfer.Leg)
	}
}

func TestLoadOpenLotsOrdering(t *testing.T) {
	store, db := newTestStore(t)
	addLot := func(ts, opType, opID int64, price, remaining string) {
		exec(t, db, `INSERT INTO open_lots (timestamp, op_type, operation_id, account_id,
			asset_id, price, remaining_qty) VALUES (?, ?, ?, 1, 4, ?, ?)`,
			ts, opType, opID, price, remaining)
	}
	addLot(2000, int64(models.OpTrade), 1, "10", "5")
	addLot(1000, int64(models.OpTrade), 2, "8", "0")
	// A corporate action lot at the same instant as a trade lot comes
	// first: its op_type sorts higher.
	addLot(2000, int64(models.OpCorporateAction), 3, "9", "7")

	tx := beginTx(t, store)
	lots, err := tx.LoadOpenLots(1, 4)
	if err != nil {
		t.Fatalf("loading lots: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("loaded %d lots, want 2 with remaining quantity", len(lots))
	}
	if lots[0].OperationID != 3 || lots[1].OperationID != 1 {
		t.Errorf("lot order = %d, %d, want 3, 1", lots[0].OperationID, lots[1].OperationID)
	}
}

func TestDeleteFromRestoresConsumedLots(t *testing.T) {
	store, db := newTestStore(t)
	exec(t, db, `INSERT INTO open_lots (timestamp, op_type, operation_id, account_id,
		asset_id, price, remaining_qty) VALUES (1000, ?, 1, 1, 4, '10', '2')`,
		int64(models.OpTrade))
	exec(t, db, `INSERT INTO closed_deals (account_id, asset_id, open_op_type, open_op_id,
		open_timestamp, open_price, close_op_type, close_op_id, close_timestamp, close_price, qty)
		VALUES (1, 4, ?, 1, 1000, '10', ?, 2, 2000, '12', '8')`,
		int64(models.OpTrade), int64(models.OpTrade))
	exec(t, db, `INSERT INTO postings (timestamp, op_type, operation_id, book, account_id,
		asset_id, amount, value) VALUES (2000, ?, 2, ?, 1, 4, '-8', '-80')`,
		int64(models.OpTrade), models.BookAssets)

	tx := beginTx(t, store)
	if err := tx.DeleteFrom(1500); err != nil {
		t.Fatalf("delete from: %v", err)
	}

	lots, err := tx.LoadOpenLots(1, 4)
	if err != nil {
		t.Fatalf("loading lots: %v", err)
	}
	if len(lots) != 1 {
		t.Fatalf("loaded %d lots, want 1", len(lots))
	}
	if !lots[0].RemainingQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("restored remaining = %s, want 10", lots[0].RemainingQty)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	deals, err := store.ClosedDeals(context.Background(), 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("loading deals: %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("loaded %d deals after delete, want 0", len(deals))
	}
}

func TestBookSumsBefore(t *testing.T) {
	store, db := newTestStore(t)
	addPosting := func(ts int64, book models.BookAccount, amount string) {
		exec(t, db, `INSERT INTO postings (timestamp, op_type, operation_id, book, account_id,
			amount, value) VALUES (?, ?, 1, ?, 1, ?, '0')`,
			ts, int64(models.OpIncomeSpending), book, amount)
	}
	addPosting(1000, models.BookMoney, "100")
	addPosting(1500, models.BookMoney, "50")
	addPosting(2000, models.BookMoney, "25")

	tx := beginTx(t, store)
	sums, err := tx.BookSumsBefore(2000)
	if err != nil {
		t.Fatalf("book sums: %v", err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d rows, want 1", len(sums))
	}
	if !sums[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("sum = %s, want 150 (the posting at the boundary is excluded)", sums[0].Amount)
	}
}

func TestAccountBalanceAsOf(t *testing.T) {
	store, db := newTestStore(t)
	addPosting := func(ts int64, amount string) {
		exec(t, db, `INSERT INTO postings (timestamp, op_type, operation_id, book, account_id,
			amount, value) VALUES (?, ?, 1, ?, 1, ?, '0')`,
			ts, int64(models.OpIncomeSpending), models.BookMoney, amount)
	}
	addPosting(1000, "100")
	addPosting(3000, "-40")

	ctx := context.Background()
	between, err := store.AccountBalance(ctx, models.BookMoney, 1, 0, 2000)
	if err != nil {
		t.Fatalf("balance as of 2000: %v", err)
	}
	if !between.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance as of 2000 = %s, want 100 (later posting excluded)", between)
	}

	now, err := store.AccountBalance(ctx, models.BookMoney, 1, 0, 0)
	if err != nil {
		t.Fatalf("unbounded balance: %v", err)
	}
	if !now.Equal(decimal.NewFromInt(60)) {
		t.Errorf("unbounded balance = %s, want 60", now)
	}

	rows, err := store.Balances(ctx, 2000)
	if err != nil {
		t.Fatalf("balances as of 2000: %v", err)
	}
	if len(rows) != 1 || !rows[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balances as of 2000 = %+v, want one row of 100", rows)
	}
}

func TestClosedDealsPeriodFilter(t *testing.T) {
	store, db := newTestStore(t)
	addDeal := func(closeTs int64) {
		exec(t, db, `INSERT INTO closed_deals (account_id, asset_id, open_op_type, open_op_id,
			open_timestamp, open_price, close_op_type, close_op_id, close_timestamp, close_price, qty)
			VALUES (1, 4, ?, 1, 500, '10', ?, 2, ?, '12', '5')`,
			int64(models.OpTrade), int64(models.OpTrade), closeTs)
	}
	addDeal(1000)
	addDeal(2000)
	addDeal(3000)

	ctx := context.Background()
	deals, err := store.ClosedDeals(ctx, 1, 4, 1500, 2500)
	if err != nil {
		t.Fatalf("deals in window: %v", err)
	}
	if len(deals) != 1 || deals[0].CloseTimestamp != 2000 {
		t.Fatalf("deals in [1500,2500] = %+v, want only the close at 2000", deals)
	}

	deals, err = store.ClosedDeals(ctx, 1, 4, 2000, 0)
	if err != nil {
		t.Fatalf("deals from 2000: %v", err)
	}
	if len(deals) != 2 {
		t.Errorf("deals from 2000 = %d, want 2 (the bound is inclusive)", len(deals))
	}
}

func TestOpenPositionsAssetFilter(t *testing.T) {
	store, db := newTestStore(t)
	addLot := func(assetID int64, qty string) {
		exec(t, db, `INSERT INTO open_lots (timestamp, op_type, operation_id, account_id,
			asset_id, price, remaining_qty) VALUES (1000, ?, 1, 1, ?, '10', ?)`,
			int64(models.OpTrade), assetID, qty)
	}
	addLot(4, "7")
	addLot(5, "3")

	positions, err := store.OpenPositions(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].AssetID != 5 || !positions[0].Qty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("position = %+v, want asset 5 qty 3", positions[0])
	}
}
