package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/ledgerfolio/src/ledger"
	"github.com/username/ledgerfolio/src/logger"
	"github.com/username/ledgerfolio/src/models"
	"github.com/username/ledgerfolio/src/services"
	"github.com/username/ledgerfolio/src/storage"
	"github.com/username/ledgerfolio/src/utils"
)

// LedgerHandler serves the ledger API: rebuild plus the read side
// (balances, closed deals, open positions).
type LedgerHandler struct {
	store        storage.Store
	engine       *ledger.Engine
	quoteService services.QuoteService

	// The engine carries per-pass state; rebuilds are strictly sequential.
	rebuildMu sync.Mutex
}

func NewLedgerHandler(store storage.Store, engine *ledger.Engine, quoteService services.QuoteService) *LedgerHandler {
	return &LedgerHandler{
		store:        store,
		engine:       engine,
		quoteService: quoteService,
	}
}

type rebuildRequest struct {
	From int64 `json:"from"`
}

type rebuildResponse struct {
	RequestID string `json:"request_id"`
	From      int64  `json:"from"`
	Status    string `json:"status"`
}

// HandleRebuild replays the ledger from the requested timestamp. A zero
// (or absent) from replays the full history.
func (h *LedgerHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	var req rebuildRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.From < 0 {
		utils.SendJSONError(w, "from must not be negative", http.StatusBadRequest)
		return
	}
	logger.L.Info("Handling ledger rebuild request", "requestId", requestID, "from", req.From)

	h.rebuildMu.Lock()
	err := h.engine.Rebuild(r.Context(), req.From)
	h.rebuildMu.Unlock()
	if err != nil {
		var validationErr *ledger.ValidationError
		var consistencyErr *ledger.ConsistencyError
		if errors.As(err, &validationErr) || errors.As(err, &consistencyErr) {
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		logger.L.Error("Ledger rebuild failed", "requestId", requestID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("rebuild failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, rebuildResponse{RequestID: requestID, From: req.From, Status: "ok"}, http.StatusOK)
}

type balanceEntry struct {
	Book      string          `json:"book"`
	AccountID int64           `json:"account_id"`
	AssetID   int64           `json:"asset_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
}

// HandleGetBalances returns the aggregated amount per (book, account,
// asset). An optional as_of query parameter bounds the aggregation to
// postings at or before that timestamp; absent means the whole history.
func (h *LedgerHandler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	asOf, ok := queryID(w, r, "as_of")
	if !ok {
		return
	}
	rows, err := h.store.Balances(r.Context(), asOf)
	if err != nil {
		logger.L.Error("Error retrieving ledger balances", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving balances: %v", err), http.StatusInternalServerError)
		return
	}
	entries := make([]balanceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, balanceEntry{
			Book:      row.Book.String(),
			AccountID: row.AccountID,
			AssetID:   row.AssetID,
			Amount:    row.Amount,
			Value:     row.Value,
		})
	}
	utils.SendJSON(w, entries, http.StatusOK)
}

type closedDealEntry struct {
	models.ClosedDeal
	Profit decimal.Decimal `json:"profit"`
}

// HandleGetClosedDeals returns realized deals, optionally filtered by
// account_id and asset_id, and by a close-timestamp window through the
// from and to query parameters.
func (h *LedgerHandler) HandleGetClosedDeals(w http.ResponseWriter, r *http.Request) {
	accountID, ok := queryID(w, r, "account_id")
	if !ok {
		return
	}
	assetID, ok := queryID(w, r, "asset_id")
	if !ok {
		return
	}
	from, ok := queryID(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryID(w, r, "to")
	if !ok {
		return
	}
	deals, err := h.store.ClosedDeals(r.Context(), accountID, assetID, from, to)
	if err != nil {
		logger.L.Error("Error retrieving closed deals", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving closed deals: %v", err), http.StatusInternalServerError)
		return
	}
	entries := make([]closedDealEntry, 0, len(deals))
	for _, deal := range deals {
		entries = append(entries, closedDealEntry{ClosedDeal: deal, Profit: deal.Profit()})
	}
	utils.SendJSON(w, entries, http.StatusOK)
}

type positionEntry struct {
	AccountID   int64            `json:"account_id"`
	AssetID     int64            `json:"asset_id"`
	Qty         decimal.Decimal  `json:"qty"`
	Value       decimal.Decimal  `json:"value"`
	MarketPrice *decimal.Decimal `json:"market_price,omitempty"`
	MarketValue *decimal.Decimal `json:"market_value,omitempty"`
}

// HandleGetOpenPositions returns remaining holdings with, when a quote is
// stored, their current market valuation in the account's currency.
func (h *LedgerHandler) HandleGetOpenPositions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := queryID(w, r, "account_id")
	if !ok {
		return
	}
	assetID, ok := queryID(w, r, "asset_id")
	if !ok {
		return
	}
	positions, err := h.store.OpenPositions(r.Context(), accountID, assetID)
	if err != nil {
		logger.L.Error("Error retrieving open positions", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving open positions: %v", err), http.StatusInternalServerError)
		return
	}

	now := time.Now().Unix()
	entries := make([]positionEntry, 0, len(positions))
	for _, pos := range positions {
		pe := positionEntry{
			AccountID: pos.AccountID,
			AssetID:   pos.AssetID,
			Qty:       pos.Qty,
			Value:     pos.Value,
		}
		account, err := h.store.Account(r.Context(), pos.AccountID)
		if err == nil {
			quote, qErr := h.quoteService.LatestQuote(r.Context(), pos.AssetID, account.CurrencyID, now)
			if qErr == nil {
				marketValue := pos.Qty.Mul(quote)
				pe.MarketPrice = &quote
				pe.MarketValue = &marketValue
			} else if !errors.Is(qErr, storage.ErrNotFound) {
				logger.L.Error("Error resolving quote for position",
					"assetId", pos.AssetID, "error", qErr)
			}
		}
		entries = append(entries, pe)
	}
	utils.SendJSON(w, entries, http.StatusOK)
}

// queryID parses an optional numeric query parameter; 0 means unset.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		utils.SendJSONError(w, fmt.Sprintf("invalid %s", name), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
