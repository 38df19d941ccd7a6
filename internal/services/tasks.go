package services

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task types. Defined here because the enqueuing services own the payload
// shapes; the worker mux maps them to the consumer.
const (
	TypeCommissionDistribute = "commission:distribute"
	TypeCommissionReverse    = "commission:reverse"
	TypeAuditEvent           = "audit:event"
)

type CommissionJobPayload struct {
	TransactionId int `json:"transaction_id"`
}

func NewCommissionDistributeTask(payload CommissionJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCommissionDistribute, data), nil
}

func NewCommissionReverseTask(payload CommissionJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCommissionReverse, data), nil
}

func NewAuditEventTask(event AuditEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAuditEvent, data), nil
}
