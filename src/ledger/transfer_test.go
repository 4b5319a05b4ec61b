package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/models"
)

func TestCashTransferWithFee(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAccount(t, db, testAccount2, testCurrency, 0)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "1000")
	seedTransfer(t, db, 1, 1000, testAccount, "105", 2000, testAccount2, "100", testAccount, "5", 0)

	rebuild(t, engine, 0)

	// 105 left, 5 paid as fee, 100 arrived.
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "890", "source money")
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount2, 0), "100", "destination money")
	wantDecimal(t, bookAmount(t, store, models.BookCosts, testAccount, 0), "5", "fee costs")
	wantDecimal(t, bookAmount(t, store, models.BookTransfers, testAccount, 0), "105", "source transfers")
	wantDecimal(t, bookAmount(t, store, models.BookTransfers, testAccount2, 0), "-100", "destination transfers")

	var category, peer int64
	err := db.QueryRow("SELECT category_id, peer_id FROM postings WHERE book = ?",
		models.BookCosts).Scan(&category, &peer)
	if err != nil {
		t.Fatalf("reading fee posting: %v", err)
	}
	if category != models.CategoryFees || peer != models.PeerFinancial {
		t.Errorf("fee posting category/peer = %d/%d, want %d/%d",
			category, peer, models.CategoryFees, models.PeerFinancial)
	}
}

func TestCashTransferIntoEmptyAccountTakesCredit(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, 0)
	seedAccount(t, db, testAccount2, testCurrency, 0)
	seedTransfer(t, db, 1, 1000, testAccount, "100", 2000, testAccount2, "100", 0, "0", 0)

	rebuild(t, engine, 0)

	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount, 0), "0", "source money")
	wantDecimal(t, bookAmount(t, store, models.BookLiabilities, testAccount, 0), "-100", "source liabilities")
	wantDecimal(t, bookAmount(t, store, models.BookMoney, testAccount2, 0), "100", "destination money")
}

func TestAssetTransferKeepsCostBasis(t *testing.T) {
	engine, store, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAccount(t, db, testAccount2, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "1000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "5", "0")
	seedTransfer(t, db, 1, 2000, testAccount, "10", 3000, testAccount2, "10", 0, "0", assetA)

	rebuild(t, engine, 0)

	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount, assetA), "0", "source assets")
	wantDecimal(t, bookAmount(t, store, models.BookAssets, testAccount2, assetA), "10", "destination assets")

	lots := openLotRows(t, db, testAccount2, assetA)
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot on the destination, got %d", len(lots))
	}
	if lots[0].timestamp != 3000 {
		t.Errorf("lot timestamp = %d, want the deposit timestamp 3000", lots[0].timestamp)
	}
	wantDecimal(t, decimal.RequireFromString(lots[0].price), "5", "transferred lot price")

	positions, err := store.OpenPositions(context.Background(), testAccount2, 0)
	if err != nil {
		t.Fatalf("reading positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	wantDecimal(t, positions[0].Qty, "10", "position qty")
	wantDecimal(t, positions[0].Value, "50", "position value")
}

func TestPartialAssetTransferFails(t *testing.T) {
	engine, _, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, testOrg)
	seedAccount(t, db, testAccount2, testCurrency, testOrg)
	seedAsset(t, db, assetA, "A", models.AssetStock)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "1000")
	seedTrade(t, db, 1, 1000, testAccount, assetA, "10", "5", "0")
	seedTransfer(t, db, 1, 2000, testAccount, "15", 3000, testAccount2, "15", 0, "0", assetA)

	err := engine.Rebuild(context.Background(), 0)
	var consistencyErr *ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("expected a consistency error, got %v", err)
	}
	if !consistencyErr.HasQuantities {
		t.Error("expected expected/actual diagnostics on the error")
	}
	wantDecimal(t, consistencyErr.Expected, "15", "expected quantity")
	wantDecimal(t, consistencyErr.Actual, "10", "actual quantity")
}

func TestPartialRebuildReplaysDepositLegOnly(t *testing.T) {
	engine, _, db := newTestEngine(t)
	seedAccount(t, db, testAccount, testCurrency, 0)
	seedAccount(t, db, testAccount2, testCurrency, 0)
	seedIncomeSpending(t, db, 1, 500, testAccount, models.CategoryIncome, "1000")
	seedTransfer(t, db, 1, 1000, testAccount, "100", 3000, testAccount2, "100", 0, "0", 0)

	rebuild(t, engine, 0)
	full := snapshotLedger(t, db)

	// A rebuild starting between the legs must keep the withdrawal and
	// replay only the deposit.
	rebuild(t, engine, 2000)
	if got := snapshotLedger(t, db); !reflect.DeepEqual(full, got) {
		t.Errorf("partial rebuild diverged from full rebuild:\nfull: %v\npartial: %v", full, got)
	}
}
