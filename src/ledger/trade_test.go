package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

func TestBuyTradeWithFee(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "100", "14", "1")

	rebuild(t, engine, 0)

	// 100*14 + 1 fee leaves the cash account.
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "8599", "money balance")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "100", "assets balance")
	wantDecimal(t, bookAmount(t, store, models.BookCosts, testAccount, 0), "1", "costs balance")

	var category int64
	err := db.QueryRow("SELECT category_id FROM postings WHERE book = ?", models.BookCosts).Scan(&category)
	if err != nil {
		t.Fatalf("reading fee posting: %v", err)
	}
	if category != models.CategoryFees {
		t.Errorf("fee posting category = %d, want %d", category, models.CategoryFees)
	}
}

func TestSellRealizesProfit(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "100", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "-10", "120", "0")

	rebuild(t, engine, 0)

	var profit string
	err := db.QueryRow(
		"SELECT amount FROM postings WHERE book = ? AND category_id = ?",
		models.BookIncomes, models.CategoryProfit).Scan(&profit)
	if err != nil {
		t.Fatalf("reading profit posting: %v", err)
	}
	wantDecimal(t, decimal.RequireFromString(profit), "-200", "profit posting")
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "10200", "money balance")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "0", "assets balance")
}

func TestSellAtLossRealizesNegativeProfit(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "10000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "100", "0")
	seedTrade(t, db, 2, 2000, testAccount, assetA, "-10", "80", "0")

	rebuild(t, engine, 0)

	var profit string
	err := db.QueryRow(
		"SELECT amount FROM postings WHERE book = ? AND category_id = ?",
		models.BookIncomes, models.CategoryProfit).Scan(&profit)
	if err != nil {
		t.Fatalf("reading profit posting: %v", err)
	}
	wantDecimal(t, decimal.RequireFromString(profit), "200", "loss posting")
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "9800", "money balance")

	deals, err := store.ClosedDeals(context.Background(), testAccount, assetA, 0, 0)
	if err != nil {
		t.Fatalf("reading closed deals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(deals))
	}
	wantDecimal(t, deals[0].Profit(), "-200", "deal profit")
}

func TestTradeWithoutBrokerFails(t *testing.T) {
	engine, _, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, 0)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedTrade(t, db, 1, 1000, testAccount, assetA, "100", "14", "0")

	err := engine.Rebuild(context.Background(), 0)
	var consistencyErr *ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("expected a consistency error, got %v", err)
	}
	if !strings.Contains(consistencyErr.Error(), "bank isn't set") {
		t.Errorf("unexpected error message: %v", consistencyErr)
	}
}

func TestBuyWithoutCashTakesCredit(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "100", "0")
	seedIncomeSpending(t, db, 2, 2000, testAccount, models.CategoryIncome, "400")

	rebuild(t, engine, 0)

	// The whole purchase was funded with credit; later income repays part
	// of it without touching the money book.
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "0", "money balance")
	wantDecimal(t, bookAmount(t, store, models.BookLiabilities, testAccount, 0), "-600", "liabilities balance")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "10", "assets balance")
}
