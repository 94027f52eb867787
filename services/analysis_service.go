package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"analysis-worker/domain"
	"analysis-worker/metrics"
	"analysis-worker/models"
)

const tracerName = "analysis-worker/services"

// Pipeline stages, used as log fields and metric labels
const (
	StageParse   = "parse"
	StageLocate  = "locate"
	StageFetch   = "fetch"
	StageSample  = "sample"
	StageInfer   = "infer"
	StagePersist = "persist"
	StageRecord  = "record_error"
	StageAck     = "ack"
)

// Outcome is the final state of a processed message
type Outcome string

const (
	// OutcomeSucceeded: result persisted and message acknowledged
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailedRecorded: failure written to the error field and message acknowledged
	OutcomeFailedRecorded Outcome = "failed_recorded"
	// OutcomeRetained: nothing acknowledged, the queue will redeliver
	OutcomeRetained Outcome = "retained"
)

// Consumer-side interfaces
type QueueRepository interface {
	ReceiveMessage(ctx context.Context) (*domain.InboundMessage, error)
	DeleteMessage(ctx context.Context, receiptHandle string) error
}

type ContentFetcher interface {
	Fetch(ctx context.Context, loc domain.Locator) (*domain.ContentHandle, error)
}

type Sampler interface {
	Sample(ctx context.Context, handle *domain.ContentHandle, count int) (domain.FrameBatch, error)
}

type InferenceGateway interface {
	Infer(ctx context.Context, batch domain.FrameBatch, prompt string) (string, error)
}

type ResultSink interface {
	RecordField(ctx context.Context, key domain.RecordKey, field, value string) error
}

type CompletionGuard interface {
	IsCompleted(ctx context.Context, messageID string) (bool, error)
	MarkCompleted(ctx context.Context, messageID string) error
}

type RunLedger interface {
	StartRun(ctx context.Context, run *models.AnalysisRun) error
	RecordFrames(ctx context.Context, runID string, indices []int) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
}

type ResultIndexer interface {
	IndexResult(ctx context.Context, result domain.AnalysisResult) error
}

type AnalysisService struct {
	queue      QueueRepository
	fetcher    ContentFetcher
	sampler    Sampler
	inference  InferenceGateway
	sink       ResultSink
	guard      CompletionGuard
	ledger     RunLedger
	indexer    ResultIndexer
	logger     *zap.Logger
	tracer     trace.Tracer
	frameCount int
}

// Functional Options Pattern
type AnalysisOption func(*AnalysisService)

func WithQueue(q QueueRepository) AnalysisOption {
	return func(s *AnalysisService) { s.queue = q }
}

func WithContentFetcher(f ContentFetcher) AnalysisOption {
	return func(s *AnalysisService) { s.fetcher = f }
}

func WithSampler(sm Sampler) AnalysisOption {
	return func(s *AnalysisService) { s.sampler = sm }
}

func WithInferenceGateway(g InferenceGateway) AnalysisOption {
	return func(s *AnalysisService) { s.inference = g }
}

func WithResultSink(r ResultSink) AnalysisOption {
	return func(s *AnalysisService) { s.sink = r }
}

// WithCompletionGuard enables acknowledging redeliveries of already
// completed messages without running the pipeline again.
func WithCompletionGuard(g CompletionGuard) AnalysisOption {
	return func(s *AnalysisService) { s.guard = g }
}

func WithRunLedger(l RunLedger) AnalysisOption {
	return func(s *AnalysisService) { s.ledger = l }
}

func WithResultIndexer(i ResultIndexer) AnalysisOption {
	return func(s *AnalysisService) { s.indexer = i }
}

func WithLogger(l *zap.Logger) AnalysisOption {
	return func(s *AnalysisService) { s.logger = l }
}

func WithFrameCount(n int) AnalysisOption {
	return func(s *AnalysisService) { s.frameCount = n }
}

func NewAnalysisService(opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		frameCount: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessMessage runs one message through parse, fetch, sample, infer and
// persist. The message is acknowledged only when either the result or the
// failure was durably recorded.
func (s *AnalysisService) ProcessMessage(ctx context.Context, msg domain.InboundMessage) Outcome {
	ctx, span := s.tracer.Start(ctx, "ProcessMessage",
		trace.WithAttributes(attribute.String("messaging.message.id", msg.ID)))
	defer span.End()

	log := s.logger.With(zap.String("message_id", msg.ID))
	outcome := s.process(ctx, msg, log)

	span.SetAttributes(attribute.String("analysis.outcome", string(outcome)))
	metrics.MessagesProcessedTotal.WithLabelValues(string(outcome)).Inc()
	log.Info("message processed", zap.String("outcome", string(outcome)))
	return outcome
}

func (s *AnalysisService) process(ctx context.Context, msg domain.InboundMessage, log *zap.Logger) Outcome {
	if s.alreadyCompleted(ctx, msg.ID, log) {
		log.Info("message already completed, acknowledging redelivery")
		s.ack(ctx, msg, log)
		return OutcomeSucceeded
	}

	req, err := domain.ParseAnalysisRequest(msg.Body)
	if err != nil {
		s.failed(log, StageParse, err)
		return OutcomeRetained
	}
	log = log.With(zap.String("video_uri", req.Locator), zap.String("field", req.TargetField))

	loc, err := domain.ParseLocator(req.Locator)
	if err != nil {
		s.failed(log, StageLocate, err)
		return OutcomeRetained
	}

	var handle *domain.ContentHandle
	err = s.stage(ctx, StageFetch, func(ctx context.Context) error {
		var err error
		handle, err = s.fetcher.Fetch(ctx, loc)
		return err
	})
	if err != nil {
		// without the record key there is nowhere to report the failure
		s.failed(log, StageFetch, err)
		return OutcomeRetained
	}

	key := handle.Key()
	log = log.With(zap.String("user_id", key.OwnerID), zap.String("video_id", key.ContentID))
	runID := s.startRun(ctx, msg, req, key, log)

	text, batch, stage, err := s.analyze(ctx, req, handle, log)
	if err != nil {
		s.failed(log, stage, err)
		return s.recordFailure(ctx, msg, req, key, runID, err, log)
	}
	s.recordFrames(ctx, runID, batch, log)

	err = s.stage(ctx, StagePersist, func(ctx context.Context) error {
		return s.sink.RecordField(ctx, key, req.TargetField, text)
	})
	if err != nil {
		s.failed(log, StagePersist, err)
		s.finishRun(ctx, runID, domain.StatusFailed, err.Error(), log)
		return OutcomeRetained
	}

	s.finishRun(ctx, runID, domain.StatusCompleted, "", log)
	s.markCompleted(ctx, msg.ID, log)
	s.index(ctx, domain.AnalysisResult{
		MessageID:    msg.ID,
		VideoURI:     req.Locator,
		Key:          key,
		Field:        req.TargetField,
		Instruction:  req.Instruction,
		Result:       text,
		FrameIndices: batch.Indices(),
	}, log)
	s.ack(ctx, msg, log)
	return OutcomeSucceeded
}

// analyze samples and interprets the fetched content. The local copy is
// released before returning, whatever the result.
func (s *AnalysisService) analyze(ctx context.Context, req domain.AnalysisRequest, handle *domain.ContentHandle, log *zap.Logger) (string, domain.FrameBatch, string, error) {
	defer func() {
		if err := handle.Release(); err != nil {
			log.Warn("failed to release local content", zap.Error(err))
		}
	}()

	var batch domain.FrameBatch
	err := s.stage(ctx, StageSample, func(ctx context.Context) error {
		var err error
		batch, err = s.sampler.Sample(ctx, handle, s.frameCount)
		return err
	})
	if err != nil {
		return "", domain.FrameBatch{}, StageSample, err
	}
	metrics.FramesSampledTotal.Add(float64(len(batch.Frames)))
	log.Debug("frames sampled", zap.Ints("indices", batch.Indices()), zap.Int("total_frames", batch.TotalFrames))

	var text string
	err = s.stage(ctx, StageInfer, func(ctx context.Context) error {
		var err error
		text, err = s.inference.Infer(ctx, batch, req.FormattedPrompt)
		return err
	})
	if err != nil {
		return "", batch, StageInfer, err
	}
	return text, batch, "", nil
}

func (s *AnalysisService) recordFailure(ctx context.Context, msg domain.InboundMessage, req domain.AnalysisRequest, key domain.RecordKey, runID string, cause error, log *zap.Logger) Outcome {
	errMsg := cause.Error()
	err := s.stage(ctx, StageRecord, func(ctx context.Context) error {
		return s.sink.RecordField(ctx, key, req.ErrorField, errMsg)
	})
	if err != nil {
		log.Error("failed to record error field",
			zap.String("error_field", req.ErrorField),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		s.finishRun(ctx, runID, domain.StatusFailed, errMsg, log)
		return OutcomeRetained
	}

	s.finishRun(ctx, runID, domain.StatusFailed, errMsg, log)
	s.markCompleted(ctx, msg.ID, log)
	s.ack(ctx, msg, log)
	return OutcomeFailedRecorded
}

// stage runs fn inside its own span and records its duration and failure.
func (s *AnalysisService) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *AnalysisService) failed(log *zap.Logger, stage string, err error) {
	metrics.StageFailuresTotal.WithLabelValues(stage).Inc()
	log.Error("message processing failed",
		zap.String("stage", stage),
		zap.Bool("timeout", errors.Is(err, domain.ErrInferenceTimeout)),
		zap.Error(err),
	)
}

func (s *AnalysisService) ack(ctx context.Context, msg domain.InboundMessage, log *zap.Logger) {
	if err := s.queue.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
		metrics.StageFailuresTotal.WithLabelValues(StageAck).Inc()
		log.Error("failed to acknowledge message", zap.Error(err))
	}
}

func (s *AnalysisService) alreadyCompleted(ctx context.Context, messageID string, log *zap.Logger) bool {
	if s.guard == nil {
		return false
	}
	done, err := s.guard.IsCompleted(ctx, messageID)
	if err != nil {
		log.Warn("completion lookup failed", zap.Error(err))
		return false
	}
	return done
}

func (s *AnalysisService) markCompleted(ctx context.Context, messageID string, log *zap.Logger) {
	if s.guard == nil {
		return
	}
	if err := s.guard.MarkCompleted(ctx, messageID); err != nil {
		log.Warn("failed to mark message completed", zap.Error(err))
	}
}

func (s *AnalysisService) startRun(ctx context.Context, msg domain.InboundMessage, req domain.AnalysisRequest, key domain.RecordKey, log *zap.Logger) string {
	if s.ledger == nil {
		return ""
	}
	run := &models.AnalysisRun{
		ID:          uuid.NewString(),
		MessageID:   msg.ID,
		VideoURI:    req.Locator,
		TargetField: req.TargetField,
		UserID:      key.OwnerID,
		VideoID:     key.ContentID,
		Status:      domain.StatusProcessing,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.ledger.StartRun(ctx, run); err != nil {
		log.Warn("failed to record run start", zap.Error(err))
		return ""
	}
	return run.ID
}

func (s *AnalysisService) recordFrames(ctx context.Context, runID string, batch domain.FrameBatch, log *zap.Logger) {
	if s.ledger == nil || runID == "" {
		return
	}
	if err := s.ledger.RecordFrames(ctx, runID, batch.Indices()); err != nil {
		log.Warn("failed to record sampled frames", zap.Error(err))
	}
}

func (s *AnalysisService) finishRun(ctx context.Context, runID, status, errMsg string, log *zap.Logger) {
	if s.ledger == nil || runID == "" {
		return
	}
	if err := s.ledger.FinishRun(ctx, runID, status, errMsg); err != nil {
		log.Warn("failed to record run end", zap.Error(err))
	}
}

func (s *AnalysisService) index(ctx context.Context, result domain.AnalysisResult, log *zap.Logger) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexResult(ctx, result); err != nil {
		log.Warn("failed to index result", zap.Error(err))
	}
}
