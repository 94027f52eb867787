package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"analysis-worker/domain"
	"analysis-worker/metrics"
)

type MessageReceiver interface {
	ReceiveMessage(ctx context.Context) (*domain.InboundMessage, error)
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg domain.InboundMessage) Outcome
}

// WorkerService polls the queue and processes one message at a time until
// its context is cancelled.
type WorkerService struct {
	receiver  MessageReceiver
	processor MessageProcessor
	backoff   time.Duration
	logger    *zap.Logger
}

func NewWorkerService(receiver MessageReceiver, processor MessageProcessor, backoff time.Duration, logger *zap.Logger) *WorkerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerService{
		receiver:  receiver,
		processor: processor,
		backoff:   backoff,
		logger:    logger,
	}
}

// Start blocks until ctx is cancelled. A message already being processed
// when shutdown begins is finished first.
func (w *WorkerService) Start(ctx context.Context) {
	w.logger.Info("worker started")
	for ctx.Err() == nil {
		if err := w.poll(ctx); err != nil {
			metrics.ReceiveErrorsTotal.Inc()
			w.logger.Error("worker iteration failed, backing off",
				zap.Duration("backoff", w.backoff),
				zap.Error(err),
			)
			w.sleep(ctx)
		}
	}
	w.logger.Info("worker stopped")
}

func (w *WorkerService) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()

	msg, err := w.receiver.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if msg == nil {
		return nil
	}

	w.processor.ProcessMessage(context.WithoutCancel(ctx), *msg)
	return nil
}

func (w *WorkerService) sleep(ctx context.Context) {
	timer := time.NewTimer(w.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
