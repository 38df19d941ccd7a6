package services

import (
	"fmt"
	"os"

	"ledger-service/internal/models"
	"ledger-service/pkg/common"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditEvent is the structured record emitted after each mutating operation.
type AuditEvent struct {
	EventId      string  `json:"event_id"`
	Action       string  `json:"action"`
	Entity       string  `json:"entity"`
	EntityId     string  `json:"entity_id"`
	PerformedBy  string  `json:"performed_by"`
	OldValues    *string `json:"old_values,omitempty"`
	NewValues    *string `json:"new_values,omitempty"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// AuditService emits audit events after the financial commit, outbox-style:
// Emit only enqueues; persistence and delivery happen in the worker. Nothing
// here can roll back a financial mutation.
type AuditService struct {
	DB      *gorm.DB
	Queue   *asynq.Client
	BaseUrl string
	Log     *zap.Logger
}

func NewAuditService(db *gorm.DB, queue *asynq.Client, log *zap.Logger) *AuditService {
	return &AuditService{
		DB:      db,
		Queue:   queue,
		BaseUrl: os.Getenv("AUDIT_SERVICE_URL"),
		Log:     log,
	}
}

// Emit queues the event. Best-effort: failures are logged and swallowed.
func (s *AuditService) Emit(event AuditEvent) {
	if event.EventId == "" {
		event.EventId = uuid.NewString()
	}
	if s.Queue == nil {
		s.Log.Info("audit event (no queue configured)",
			zap.String("action", event.Action),
			zap.String("entity", event.Entity),
			zap.String("entity_id", event.EntityId))
		return
	}
	task, err := NewAuditEventTask(event)
	if err != nil {
		s.Log.Error("failed to build audit task", zap.Error(err))
		return
	}
	if _, err := s.Queue.Enqueue(task, asynq.Queue("low")); err != nil {
		s.Log.Error("failed to enqueue audit event",
			zap.String("event_id", event.EventId), zap.Error(err))
	}
}

// Deliver persists the event and pushes it to the external audit service.
// Called from the worker. Delivery failure is logged, never returned, so the
// task is not retried into a duplicate row.
func (s *AuditService) Deliver(event AuditEvent) {
	row := models.AuditLog{
		EventId:      event.EventId,
		Action:       event.Action,
		Entity:       event.Entity,
		EntityId:     event.EntityId,
		PerformedBy:  event.PerformedBy,
		OldValues:    event.OldValues,
		NewValues:    event.NewValues,
		Status:       event.Status,
		ErrorMessage: event.ErrorMessage,
	}
	if err := s.DB.Where("event_id = ?", event.EventId).FirstOrCreate(&row).Error; err != nil {
		s.Log.Error("failed to persist audit log",
			zap.String("event_id", event.EventId), zap.Error(err))
	}

	if s.BaseUrl == "" {
		return
	}
	url := fmt.Sprintf("%s/events", s.BaseUrl)
	if _, err := common.Post(url, event, nil); err != nil {
		s.Log.Warn("audit delivery failed",
			zap.String("event_id", event.EventId), zap.Error(err))
	}
}
