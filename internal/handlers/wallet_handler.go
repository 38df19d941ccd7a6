package handlers

import (
	"net/http"
	"strconv"

	"ledger-service/internal/models"
	"ledger-service/internal/services"
	"ledger-service/pkg/common"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type WalletHandler struct {
	Wallets     *services.WalletService
	Idempotency *services.IdempotencyService
}

func NewWalletHandler(wallets *services.WalletService, idem *services.IdempotencyService) *WalletHandler {
	return &WalletHandler{Wallets: wallets, Idempotency: idem}
}

type CreateWalletRequest struct {
	UserId int `json:"user_id" binding:"required"`
}

// Create provisions the main and commission wallets for a user.
func (h *WalletHandler) Create(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	wallets, err := h.Wallets.CreateWallets(services.CreateWalletDTO{UserId: req.UserId})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(wallets, "wallets created"))
}

// GetBalance returns one wallet's balances by user_id and wallet_type.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid user_id", nil, http.StatusBadRequest))
		return
	}
	walletType := c.DefaultQuery("wallet_type", models.WalletTypeMain)

	w, err := h.Wallets.GetWallet(userId, walletType)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"user_id":           w.UserId,
		"wallet_type":       w.WalletType,
		"balance":           w.Balance,
		"available_balance": w.AvailableBalance,
		"hold_balance":      w.HoldBalance,
	}, "success"))
}

type MovementRequest struct {
	UserId        int    `json:"user_id" binding:"required"`
	WalletType    string `json:"wallet_type"`
	Amount        int64  `json:"amount" binding:"required"`
	ReferenceType string `json:"reference_type"`
	Narration     string `json:"narration"`
	CreatedBy     string `json:"created_by"`
}

func (r *MovementRequest) toDTO(key *string) services.CreditDTO {
	walletType := r.WalletType
	if walletType == "" {
		walletType = models.WalletTypeMain
	}
	referenceType := r.ReferenceType
	if referenceType == "" {
		referenceType = models.RefTypeAdjustment
	}
	createdBy := r.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}
	return services.CreditDTO{
		UserId:         r.UserId,
		WalletType:     walletType,
		Amount:         r.Amount,
		ReferenceType:  referenceType,
		Narration:      r.Narration,
		CreatedBy:      createdBy,
		IdempotencyKey: key,
	}
}

// Credit settles funds into a wallet. An Idempotency-Key header makes the
// request replay-safe: the key claim and the credit commit together.
func (h *WalletHandler) Credit(c *gin.Context) {
	h.move(c, h.Wallets.CreditIn)
}

// Debit settles funds out of a wallet.
func (h *WalletHandler) Debit(c *gin.Context) {
	h.move(c, h.Wallets.DebitIn)
}

func (h *WalletHandler) move(c *gin.Context, op func(db *gorm.DB, data services.CreditDTO) (*models.Wallet, error)) {
	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	key := idempotencyKey(c)
	dto := req.toDTO(key)

	var w *models.Wallet
	var err error
	if key != nil {
		err = h.Idempotency.Guard(*key, &req.UserId, "wallet-movement", func(tx *gorm.DB) error {
			w, err = op(tx, dto)
			return err
		})
	} else {
		w, err = op(h.Wallets.DB, dto)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"balance":           w.Balance,
		"available_balance": w.AvailableBalance,
	}, "success"))
}

type HoldRequest struct {
	UserId     int    `json:"user_id" binding:"required"`
	WalletType string `json:"wallet_type"`
	Amount     int64  `json:"amount" binding:"required"`
}

func (r *HoldRequest) toDTO() services.HoldDTO {
	walletType := r.WalletType
	if walletType == "" {
		walletType = models.WalletTypeMain
	}
	return services.HoldDTO{UserId: r.UserId, WalletType: walletType, Amount: r.Amount}
}

// Hold reserves available funds without settling them.
func (h *WalletHandler) Hold(c *gin.Context) {
	var req HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}
	w, err := h.Wallets.Hold(req.toDTO())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"available_balance": w.AvailableBalance,
		"hold_balance":      w.HoldBalance,
	}, "funds held"))
}

// Release returns held funds to available.
func (h *WalletHandler) Release(c *gin.Context) {
	var req HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}
	w, err := h.Wallets.Release(req.toDTO())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"available_balance": w.AvailableBalance,
		"hold_balance":      w.HoldBalance,
	}, "funds released"))
}

// ListLedger returns the ledger entries for a wallet, newest first.
func (h *WalletHandler) ListLedger(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, total, err := h.Wallets.ListLedger(services.LedgerQueryDTO{
		UserId:     userId,
		WalletType: c.DefaultQuery("wallet_type", models.WalletTypeMain),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(entries, total, page, limit, ""))
}
