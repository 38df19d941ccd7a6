package handlers

import (
	"net/http"
	"strconv"

	"ledger-service/internal/services"
	"ledger-service/pkg/common"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	Transactions *services.TransactionService
}

func NewTransactionHandler(transactions *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{Transactions: transactions}
}

type CreateTransactionRequest struct {
	UserId      int     `json:"user_id" binding:"required"`
	WalletId    int     `json:"wallet_id" binding:"required"`
	Amount      int64   `json:"amount" binding:"required"`
	PaymentType string  `json:"payment_type" binding:"required"`
	ServiceId   int     `json:"service_id" binding:"required"`
	Channel     *string `json:"channel"`
	Commission  int64   `json:"commission"`
	Tax         int64   `json:"tax"`
	Fee         int64   `json:"fee"`
	Cashback    int64   `json:"cashback"`
	CreatedBy   string  `json:"created_by"`
}

// Create opens a PENDING transaction and debits the payer. A replayed
// Idempotency-Key returns the original transaction unchanged.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}
	trx, err := h.Transactions.Create(services.CreateTransactionDTO{
		UserId:         req.UserId,
		WalletId:       req.WalletId,
		Amount:         req.Amount,
		PaymentType:    req.PaymentType,
		ServiceId:      req.ServiceId,
		Channel:        req.Channel,
		Commission:     req.Commission,
		Tax:            req.Tax,
		Fee:            req.Fee,
		Cashback:       req.Cashback,
		IdempotencyKey: idempotencyKey(c),
		CreatedBy:      createdBy,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(trx, "transaction created"))
}

type UpdateStatusRequest struct {
	Status            string  `json:"status" binding:"required"`
	ProviderReference *string `json:"provider_reference"`
	PerformedBy       string  `json:"performed_by"`
}

// UpdateStatus applies the provider outcome to a PENDING transaction.
func (h *TransactionHandler) UpdateStatus(c *gin.Context) {
	transactionId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid transaction id", nil, http.StatusBadRequest))
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "provider-callback"
	}
	trx, err := h.Transactions.UpdateStatus(services.UpdateStatusDTO{
		TransactionId:     transactionId,
		Status:            req.Status,
		ProviderReference: req.ProviderReference,
		PerformedBy:       performedBy,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(trx, "status updated"))
}

type RefundRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
	PerformedBy string `json:"performed_by"`
}

// Refund reverses a SUCCESS transaction up to its original amount.
func (h *TransactionHandler) Refund(c *gin.Context) {
	transactionId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid transaction id", nil, http.StatusBadRequest))
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "api"
	}
	trx, err := h.Transactions.Refund(services.RefundDTO{
		TransactionId: transactionId,
		Amount:        req.Amount,
		Reason:        req.Reason,
		PerformedBy:   performedBy,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(trx, "transaction refunded"))
}

// List returns a user's transactions, newest first, with optional status and
// date filters.
func (h *TransactionHandler) List(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	transactions, total, err := h.Transactions.List(services.ListTransactionsDTO{
		UserId:    userId,
		Status:    c.Query("status"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(transactions, total, page, limit, ""))
}
