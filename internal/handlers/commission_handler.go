package handlers

import (
	"net/http"
	"strconv"
	"time"

	"ledger-service/internal/services"
	"ledger-service/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type CommissionHandler struct {
	Commission *services.CommissionService
	Queue      *asynq.Client
	Log        *zap.Logger
}

func NewCommissionHandler(commission *services.CommissionService, queue *asynq.Client, log *zap.Logger) *CommissionHandler {
	return &CommissionHandler{Commission: commission, Queue: queue, Log: log}
}

type SaveSettingRequest struct {
	Scope           string     `json:"scope" binding:"required"`
	RoleId          *int       `json:"role_id"`
	TargetUserId    *int       `json:"target_user_id"`
	ServiceId       int        `json:"service_id" binding:"required"`
	Channel         *string    `json:"channel"`
	CommissionType  string     `json:"commission_type" binding:"required"`
	CommissionValue float64    `json:"commission_value"`
	EffectiveFrom   *time.Time `json:"effective_from"`
	EffectiveTo     *time.Time `json:"effective_to"`
}

// SaveSetting stores one commission rule. EffectiveFrom defaults to now.
func (h *CommissionHandler) SaveSetting(c *gin.Context) {
	var req SaveSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	effectiveFrom := time.Now()
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}
	setting, err := h.Commission.SaveSetting(services.SaveSettingDTO{
		Scope:           req.Scope,
		RoleId:          req.RoleId,
		TargetUserId:    req.TargetUserId,
		ServiceId:       req.ServiceId,
		Channel:         req.Channel,
		CommissionType:  req.CommissionType,
		CommissionValue: req.CommissionValue,
		EffectiveFrom:   effectiveFrom,
		EffectiveTo:     req.EffectiveTo,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(setting, "setting saved"))
}

// ListEarnings returns a user's commission earnings with the signed total.
func (h *CommissionHandler) ListEarnings(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	earnings, total, sum, err := h.Commission.ListEarnings(services.EarningsQueryDTO{
		UserId: userId,
		Page:   page,
		Limit:  limit,
		From:   c.Query("from"),
		To:     c.Query("to"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	result := common.PaginateResponse(earnings, total, page, limit, "")
	c.JSON(http.StatusOK, gin.H{
		"message":     result.Message,
		"data":        result.Data,
		"count":       result.Count,
		"currentPage": result.CurrentPage,
		"nextPage":    result.NextPage,
		"prevPage":    result.PrevPage,
		"lastPage":    result.LastPage,
		"totalEarned": sum,
	})
}

// Reverse queues a commission clawback for a distributed transaction.
func (h *CommissionHandler) Reverse(c *gin.Context) {
	transactionId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid transaction id", nil, http.StatusBadRequest))
		return
	}

	task, err := services.NewCommissionReverseTask(services.CommissionJobPayload{TransactionId: transactionId})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, err := h.Queue.Enqueue(task, asynq.Queue("critical")); err != nil {
		h.Log.Error("failed to enqueue commission reversal",
			zap.Int("transaction_id", transactionId), zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, common.NewSuccessResponse(gin.H{
		"transaction_id": transactionId,
	}, "commission reversal queued"))
}
