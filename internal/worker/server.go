package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ledger-service/internal/consumers"
	"ledger-service/internal/services"

	"github.com/hibiken/asynq"
)

type Worker struct {
	Processor *consumers.CommissionProcessor
}

func NewWorker(processor *consumers.CommissionProcessor) *Worker {
	return &Worker{
		Processor: processor,
	}
}

func (w *Worker) HandleCommissionDistribute(ctx context.Context, t *asynq.Task) error {
	var p services.CommissionJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.Processor.ProcessDistribute(p)
}

func (w *Worker) HandleCommissionReverse(ctx context.Context, t *asynq.Task) error {
	var p services.CommissionJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.Processor.ProcessReverse(p)
}

func (w *Worker) HandleAuditEvent(ctx context.Context, t *asynq.Task) error {
	var event services.AuditEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	w.Processor.ProcessAuditEvent(event)
	return nil
}

func StartWorker(redisOpt asynq.RedisClientOpt, processor *consumers.CommissionProcessor) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	worker := NewWorker(processor)
	mux := asynq.NewServeMux()

	mux.HandleFunc(services.TypeCommissionDistribute, worker.HandleCommissionDistribute)
	mux.HandleFunc(services.TypeCommissionReverse, worker.HandleCommissionReverse)
	mux.HandleFunc(services.TypeAuditEvent, worker.HandleAuditEvent)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run worker server: %v", err)
	}
}
