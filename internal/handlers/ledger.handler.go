package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	xhttp "github.com/nimasrn/balance-bot/pkg/http"
	"github.com/shopspring/decimal"
)

type ReportService interface {
	AllBalances(ctx context.Context) (*model.BalanceSummary, error)
	UserByID(ctx context.Context, id int64) (*model.User, error)
	UserHistoryByID(ctx context.Context, id int64, limit int) ([]*model.Transaction, error)
	History(ctx context.Context, limit int) ([]*model.Transaction, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type TransferService interface {
	Transfer(ctx context.Context, req model.TransferRequest) *model.TransferResult
	Reset(ctx context.Context, balance *decimal.Decimal) error
	DefaultBalance() decimal.Decimal
}

type LedgerHandler struct {
	reports   ReportService
	transfers TransferService
}

func RegisterLedgerRoutes(e *router.Group, h *LedgerHandler) {
	e.GET("/balances", h.GetBalances)
	e.GET("/users/{id}/balance", h.GetUserBalance)
	e.GET("/users/{id}/transactions", h.ListUserTransactions)
	e.GET("/transactions", h.ListTransactions)
	e.GET("/stats", h.GetStats)
	e.POST("/transfers", h.CreateTransfer)
	e.POST("/admin/reset", h.Reset)
}

func NewLedgerHandler(reports ReportService, transfers TransferService) *LedgerHandler {
	return &LedgerHandler{
		reports:   reports,
		transfers: transfers,
	}
}

type identityRequest struct {
	PlatformID int64  `json:"platform_id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
}

func (r identityRequest) identity() model.Identity {
	return model.Identity{PlatformID: r.PlatformID, Name: r.Name, Username: r.Username}
}

type transferRequest struct {
	From   identityRequest `json:"from"`
	To     identityRequest `json:"to"`
	Amount json.Number     `json:"amount"`
}

type resetRequest struct {
	Balance *json.Number `json:"balance"`
}

type balanceResponse struct {
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type transactionsResponse struct {
	Items []*model.Transaction `json:"items"`
	Count int                  `json:"count"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *LedgerHandler) GetBalances(ctx *xhttp.RequestCtx) {
	summary, err := h.reports.AllBalances(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, summary)
}

// GetUserBalance answers zero for users that do not exist.
func (h *LedgerHandler) GetUserBalance(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.reports.UserByID(ctx, id)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	res := balanceResponse{UserID: id, Balance: decimal.Zero}
	if user != nil {
		res.Balance = user.Balance
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *LedgerHandler) ListUserTransactions(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid user id")
		return
	}

	items, err := h.reports.UserHistoryByID(ctx, id, queryLimit(ctx))
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newTransactionsResponse(items))
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	items, err := h.reports.History(ctx, queryLimit(ctx))
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newTransactionsResponse(items))
}

func (h *LedgerHandler) GetStats(ctx *xhttp.RequestCtx) {
	stats, err := h.reports.Stats(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

func (h *LedgerHandler) CreateTransfer(ctx *xhttp.RequestCtx) {
	var req transferRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	amount, err := model.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid amount: "+err.Error())
		return
	}

	res := h.transfers.Transfer(ctx, model.TransferRequest{
		From:   req.From.identity(),
		To:     req.To.identity(),
		Amount: amount,
	})

	switch {
	case res.Success:
		writeJSON(ctx, xhttp.StatusOK, res)
	case res.Kind == model.FailureStorage:
		writeJSON(ctx, xhttp.StatusInternalServerError, res)
	default:
		writeJSON(ctx, xhttp.StatusUnprocessableEntity, res)
	}
}

func (h *LedgerHandler) Reset(ctx *xhttp.RequestCtx) {
	var req resetRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	target := h.transfers.DefaultBalance()
	var balance *decimal.Decimal
	if req.Balance != nil {
		d, err := model.ParseAmount(req.Balance.String())
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid balance: "+err.Error())
			return
		}
		balance, target = &d, d
	}

	if err := h.transfers.Reset(ctx, balance); err != nil {
		if errors.Is(err, repository.ErrNegativeBalance) ||
			errors.Is(err, model.ErrMalformedAmount) ||
			errors.Is(err, model.ErrAmountOutOfRange) {
			writeError(ctx, xhttp.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, map[string]any{"status": "reset", "balance": target})
}

func newTransactionsResponse(items []*model.Transaction) transactionsResponse {
	if items == nil {
		items = []*model.Transaction{}
	}
	return transactionsResponse{Items: items, Count: len(items)}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(ctx.PostBody()))
	dec.UseNumber()
	return dec.Decode(dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

// queryLimit reads ?limit=; anything unparsable means the service default.
func queryLimit(ctx *xhttp.RequestCtx) int {
	n, err := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
