package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

type lotRow struct {
	timestamp int64
	price     string
	remaining string
}

func openLotRows(t *testing.T, db *sql.DB, accountID, assetID int64) []lotRow {
	t.Helper()
	rows, err := db.Query(
		`SELECT timestamp, price, remaining_qty FROM open_lots
		 WHERE account_id = ? AND asset_id = ? ORDER BY timestamp, id`, accountID, assetID)
	if err != nil {
		t.Fatalf("querying open lots: %v", err)
	}
	defer rows.Close()
	var lots []lotRow
	for rows.Next() {
		var lot lotRow
		if err := rows.Scan(&lot.timestamp, &lot.price, &lot.remaining); err != nil {
			t.Fatalf("scanning lot: %v", err)
		}
		lots = append(lots, lot)
	}
	return lots
}

func TestFIFOClosesOldestLotFirst(t *testing.T) {
	engine, _, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "10", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "10", "20", "0")
	seedTrade(t, db, 3, 3000, testAccount, assetA, "10", "30", "0")
	seedTrade(t, db, 4, 4000, testAccount, assetA, "-5", "40", "0")

	rebuild(t, engine, 0)

	lots := openLotRows(t, db, testAccount, assetA)
	if len(lots) != 3 {
		t.Fatalf("expected 3 lots, got %d", len(lots))
	}
	wantDecimal(t, decimal.RequireFromString(lots[0].remaining), "5", "oldest lot remaining")
	wantDecimal(t, decimal.RequireFromString(lots[1].remaining), "10", "second lot remaining")
	wantDecimal(t, decimal.RequireFromString(lots[2].remaining), "10", "third lot remaining")
}

func TestFIFOQuantityConservation(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "10", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "10", "20", "0")
	seedTrade(t, db, 3, 3000, testAccount, assetA, "10", "30", "0")
	seedTrade(t, db, 4, 4000, testAccount, assetA, "-5", "40", "0")
	seedTrade(t, db, 5, 5000, testAccount, assetA, "-12", "40", "0")

	rebuild(t, engine, 0)

	remaining := decimal.Zero
	for _, lot := range openLotRows(t, db, testAccount, assetA) {
		remaining = remaining.Add(decimal.RequireFromString(lot.remaining))
	}
	deals, err := store.ClosedDeals(context.Background(), testAccount, assetA, 0, 0)
	if err != nil {
		t.Fatalf("reading closed deals: %v", err)
	}
	matched := decimal.Zero
	for _, deal := range deals {
		matched = matched.Add(deal.Qty.Abs())
	}

	// Nothing is created or lost: open remainder plus matched quantity
	// equals everything ever bought.
	wantDecimal(t, remaining, "13", "total remaining quantity")
	wantDecimal(t, matched, "17", "total matched quantity")
	wantDecimal(t, remaining.Add(matched), "30", "remaining + matched")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "13", "assets balance")
}

func TestFIFOClosingSellSpansLots(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "10", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "10", "20", "0")
	seedTrade(t, db, 3, 3000, testAccount, assetA, "-15", "30", "0")

	rebuild(t, engine, 0)

	deals, err := store.ClosedDeals(context.Background(), testAccount, assetA, 0, 0)
	if err != nil {
		t.Fatalf("reading closed deals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(deals))
	}
	wantDecimal(t, deals[0].Qty, "10", "first deal qty")
	wantDecimal(t, deals[0].OpenPrice, "10", "first deal open price")
	wantDecimal(t, deals[1].Qty, "5", "second deal qty")
	wantDecimal(t, deals[1].OpenPrice, "20", "second deal open price")
	// 10*(30-10) + 5*(30-20)
	wantDecimal(t, deals[0].Profit().Add(deals[1].Profit()), "250", "realized profit")
	wantDecimal(t, bookAmount(t, store, models.BookIncomes, testAccount, 0), "-10250", "incomes balance")
}

func TestFIFOShortPositionCoveredByBuy(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "-10", "20", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "10", "15", "0")

	rebuild(t, engine, 0)

	deals, err := store.ClosedDeals(context.Background(), testAccount, assetA, 0, 0)
	if err != nil {
		t.Fatalf("reading closed deals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(deals))
	}
	wantDecimal(t, deals[0].Qty, "-10", "short cover deal qty")
	wantDecimal(t, deals[0].Profit(), "50", "short cover profit")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "0", "assets balance")
	// 10000 income plus 50 short gain.
	wantDecimal(t, bookAmount(t, store, models.BookIncomes, testAccount, 0), "-10050", "incomes balance")
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "10050", "money balance")
}
