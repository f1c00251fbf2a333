package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/sse"
	"github.com/prepmind/prepmind-backend/internal/types"
	"github.com/prepmind/prepmind-backend/internal/utils"
)

type StartResult struct {
	Session    *types.GenerationSession `json:"session"`
	FirstBatch []*types.Question        `json:"first_batch"`
}

type Progress struct {
	Status        string            `json:"status"`
	ProducedCount int               `json:"produced_count"`
	TotalCount    int               `json:"total_count"`
	Questions     []*types.Question `json:"questions_so_far"`
}

// GenerationService runs chunked question generation: the first batch comes
// back synchronously, the rest is produced in the background in batches.
// Persisted questions are the source of truth for progress.
type GenerationService interface {
	Start(ctx context.Context, userID uuid.UUID, subject string, totalCount int, difficulty string) (*StartResult, error)
	GetProgress(ctx context.Context, id uuid.UUID) (*Progress, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.GenerationSession, error)
	RetryFailed(ctx context.Context, id uuid.UUID) (*types.GenerationSession, error)
	ListQuestions(ctx context.Context, id uuid.UUID) ([]*types.Question, error)
}

type GenerationConfig struct {
	BatchSize     int
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration
	MaxTotalCount int
}

func ResolveGenerationConfigFromEnv(log *logger.Logger) GenerationConfig {
	return GenerationConfig{
		BatchSize:     utils.GetEnvAsInt("GENERATION_BATCH_SIZE", 5, log),
		MaxRetries:    utils.GetEnvAsInt("GENERATION_MAX_RETRIES", 3, log),
		MaxConcurrent: utils.GetEnvAsInt("GENERATION_MAX_CONCURRENT", 4, log),
		RetryBackoff:  time.Duration(utils.GetEnvAsInt("GENERATION_RETRY_BACKOFF_MS", 1000, log)) * time.Millisecond,
		MaxTotalCount: utils.GetEnvAsInt("GENERATION_MAX_TOTAL", 100, log),
	}
}

type generationService struct {
	db  *gorm.DB
	log *logger.Logger

	sseHub      *sse.SSEHub
	sessionRepo repos.GenerationSessionRepo
	qRepo       repos.QuestionRepo
	retrieval   RetrievalService

	cfg GenerationConfig

	sem     chan struct{}
	cancels sync.Map // session id -> context.CancelFunc
}

func NewGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sseHub *sse.SSEHub,
	sessionRepo repos.GenerationSessionRepo,
	qRepo repos.QuestionRepo,
	retrieval RetrievalService,
	cfg GenerationConfig,
) GenerationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxTotalCount <= 0 {
		cfg.MaxTotalCount = 100
	}
	return &generationService{
		db:          db,
		log:         baseLog.With("service", "GenerationService"),
		sseHub:      sseHub,
		sessionRepo: sessionRepo,
		qRepo:       qRepo,
		retrieval:   retrieval,
		cfg:         cfg,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (s *generationService) Start(ctx context.Context, userID uuid.UUID, subject string, totalCount int, difficulty string) (*StartResult, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject required", ErrInvalidRequest)
	}
	if totalCount <= 0 || totalCount > s.cfg.MaxTotalCount {
		return nil, fmt.Errorf("%w: total_count must be between 1 and %d", ErrInvalidRequest, s.cfg.MaxTotalCount)
	}
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "", "easy", "medium", "hard":
	default:
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, difficulty)
	}
	difficulty = normalizeDifficulty(difficulty)

	now := time.Now()
	session := &types.GenerationSession{
		ID:         uuid.New(),
		UserID:     userID,
		Subject:    subject,
		Difficulty: difficulty,
		Status:     types.GenerationStatusPending,
		TotalCount: totalCount,
		Metadata:   datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.sessionRepo.Create(ctx, nil, []*types.GenerationSession{session}); err != nil {
		return nil, fmt.Errorf("create generation session: %w", err)
	}

	first := totalCount
	if first > s.cfg.BatchSize {
		first = s.cfg.BatchSize
	}

	// The first batch follows the same per-batch policy as background ones:
	// bounded retries, then knowledge-only fallback, then failed.
	qs, err := s.generateBatchWithRetry(ctx, session, first, 1)
	if err != nil {
		s.log.Warn("First batch exhausted retries, trying knowledge-only fallback",
			"generation_id", session.ID, "error", err)
		qs, err = s.retrieval.GenerateMCQKnowledgeOnly(ctx, subject, first, difficulty)
		if err != nil {
			s.failSession(ctx, session.ID, err)
			return nil, err
		}
		for _, q := range qs {
			q.Grounded = false
		}
	}
	for i, q := range qs {
		q.GenerationID = session.ID
		q.Seq = i + 1
	}
	if _, err := s.qRepo.Create(ctx, nil, qs); err != nil {
		err = fmt.Errorf("persist first batch: %w", err)
		s.failSession(ctx, session.ID, err)
		return nil, err
	}

	session.ProducedCount = len(qs)
	if session.ProducedCount >= totalCount {
		session.Status = types.GenerationStatusCompleted
	} else {
		session.Status = types.GenerationStatusGenerating
	}
	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]any{
		"status":         session.Status,
		"produced_count": session.ProducedCount,
	}); err != nil {
		return nil, fmt.Errorf("update generation session: %w", err)
	}

	s.broadcast(session.UserID, sse.SSEEventGenerationProgress, map[string]any{
		"generation_id":  session.ID,
		"status":         session.Status,
		"produced_count": session.ProducedCount,
		"total_count":    session.TotalCount,
	})

	if session.Status == types.GenerationStatusGenerating {
		s.continueGeneration(session)
	} else {
		s.broadcast(session.UserID, sse.SSEEventGenerationCompleted, map[string]any{
			"generation_id":  session.ID,
			"produced_count": session.ProducedCount,
		})
	}

	return &StartResult{Session: session, FirstBatch: qs}, nil
}

// continueGeneration launches the background worker for a session. The
// semaphore bounds concurrent sessions; cancellation takes effect even
// while a session waits for a slot.
func (s *generationService) continueGeneration(session *types.GenerationSession) {
	ctx, cancelFn := context.WithCancel(context.Background())
	s.cancels.Store(session.ID, cancelFn)

	go func() {
		defer func() {
			s.cancels.Delete(session.ID)
			cancelFn()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.markCancelled(session)
			return
		}
		defer func() { <-s.sem }()

		s.runSession(ctx, session)
	}()
}

func (s *generationService) runSession(ctx context.Context, session *types.GenerationSession) {
	for {
		if ctx.Err() != nil {
			s.markCancelled(session)
			return
		}

		count, err := s.qRepo.CountByGenerationID(ctx, nil, session.ID)
		if err != nil {
			s.markFailed(session, fmt.Errorf("count produced questions: %w", err))
			return
		}
		produced := int(count)
		if produced >= session.TotalCount {
			s.markCompleted(session, produced)
			return
		}

		batch := session.TotalCount - produced
		if batch > s.cfg.BatchSize {
			batch = s.cfg.BatchSize
		}
		maxSeq, err := s.qRepo.MaxSeqByGenerationID(ctx, nil, session.ID)
		if err != nil {
			s.markFailed(session, fmt.Errorf("load max seq: %w", err))
			return
		}
		part := maxSeq/s.cfg.BatchSize + 1

		qs, err := s.generateBatchWithRetry(ctx, session, batch, part)
		if err != nil {
			if ctx.Err() != nil {
				s.markCancelled(session)
				return
			}
			// Last resort: knowledge-only fallback for this batch.
			s.log.Warn("Batch generation exhausted retries, trying knowledge-only fallback",
				"generation_id", session.ID, "error", err)
			qs, err = s.retrieval.GenerateMCQKnowledgeOnly(ctx, session.Subject, batch, session.Difficulty)
			if err != nil {
				s.markFailed(session, err)
				return
			}
			for _, q := range qs {
				q.Grounded = false
			}
		}

		for i, q := range qs {
			q.GenerationID = session.ID
			q.Seq = maxSeq + i + 1
		}
		if _, err := s.qRepo.Create(ctx, nil, qs); err != nil {
			s.markFailed(session, fmt.Errorf("persist batch: %w", err))
			return
		}

		produced = maxSeq + len(qs)
		if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]any{
			"produced_count": produced,
		}); err != nil {
			s.log.Warn("Failed to update produced count", "generation_id", session.ID, "error", err)
		}
		s.broadcast(session.UserID, sse.SSEEventGenerationProgress, map[string]any{
			"generation_id":  session.ID,
			"status":         types.GenerationStatusGenerating,
			"produced_count": produced,
			"total_count":    session.TotalCount,
		})
	}
}

func (s *generationService) generateBatchWithRetry(ctx context.Context, session *types.GenerationSession, batch int, part int) ([]*types.Question, error) {
	backoff := s.cfg.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		qs, _, err := s.retrieval.GenerateMCQBatch(ctx, session.Subject, batch, session.Difficulty, part)
		if err == nil {
			return qs, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("Batch generation attempt failed",
			"generation_id", session.ID,
			"attempt", attempt,
			"max_retries", s.cfg.MaxRetries,
			"error", err,
		)
		if attempt == s.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (s *generationService) GetProgress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	questions, err := s.qRepo.GetByGenerationID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &Progress{
		Status:        session.Status,
		ProducedCount: len(questions),
		TotalCount:    session.TotalCount,
		Questions:     questions,
	}, nil
}

func (s *generationService) Cancel(ctx context.Context, id uuid.UUID) (*types.GenerationSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	switch session.Status {
	case types.GenerationStatusPending, types.GenerationStatusGenerating:
	default:
		return nil, fmt.Errorf("%w: cannot cancel session in status %q", ErrInvalidRequest, session.Status)
	}

	if v, ok := s.cancels.Load(id); ok {
		v.(context.CancelFunc)()
	} else {
		// No live worker (e.g. after restart): mark the row directly.
		s.markCancelled(session)
	}
	session.Status = types.GenerationStatusCancelled
	return session, nil
}

func (s *generationService) RetryFailed(ctx context.Context, id uuid.UUID) (*types.GenerationSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	switch session.Status {
	case types.GenerationStatusFailed, types.GenerationStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: cannot retry session in status %q", ErrInvalidRequest, session.Status)
	}

	count, err := s.qRepo.CountByGenerationID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	produced := int(count)
	if produced >= session.TotalCount {
		s.markCompleted(session, produced)
		session.Status = types.GenerationStatusCompleted
		session.ProducedCount = produced
		return session, nil
	}

	if err := s.sessionRepo.UpdateFields(ctx, nil, id, map[string]any{
		"status":         types.GenerationStatusGenerating,
		"error":          "",
		"produced_count": produced,
	}); err != nil {
		return nil, err
	}
	session.Status = types.GenerationStatusGenerating
	session.ProducedCount = produced
	s.continueGeneration(session)
	return session, nil
}

func (s *generationService) ListQuestions(ctx context.Context, id uuid.UUID) ([]*types.Question, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.qRepo.GetByGenerationID(ctx, nil, id)
}

// failSession records a failure while the caller's context is still live,
// without broadcasting; Start returns the error to the caller directly.
func (s *generationService) failSession(ctx context.Context, id uuid.UUID, cause error) {
	failedAt := time.Now()
	_ = s.sessionRepo.UpdateFields(ctx, nil, id, map[string]any{
		"status":        types.GenerationStatusFailed,
		"error":         cause.Error(),
		"last_error_at": failedAt,
	})
}

// Status updates below run on a fresh context: the worker context may
// already be cancelled when they fire.

func (s *generationService) markCompleted(session *types.GenerationSession, produced int) {
	_ = s.sessionRepo.UpdateFields(context.Background(), nil, session.ID, map[string]any{
		"status":         types.GenerationStatusCompleted,
		"produced_count": produced,
		"error":          "",
	})
	s.broadcast(session.UserID, sse.SSEEventGenerationCompleted, map[string]any{
		"generation_id":  session.ID,
		"produced_count": produced,
	})
	s.log.Info("Generation completed", "generation_id", session.ID, "produced", produced)
}

func (s *generationService) markFailed(session *types.GenerationSession, cause error) {
	now := time.Now()
	_ = s.sessionRepo.UpdateFields(context.Background(), nil, session.ID, map[string]any{
		"status":        types.GenerationStatusFailed,
		"error":         cause.Error(),
		"last_error_at": now,
	})
	s.broadcast(session.UserID, sse.SSEEventGenerationFailed, map[string]any{
		"generation_id": session.ID,
		"error":         cause.Error(),
	})
	s.log.Warn("Generation failed", "generation_id", session.ID, "error", cause)
}

func (s *generationService) markCancelled(session *types.GenerationSession) {
	ctx := context.Background()
	count, _ := s.qRepo.CountByGenerationID(ctx, nil, session.ID)
	_ = s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]any{
		"status":         types.GenerationStatusCancelled,
		"produced_count": int(count),
	})
	s.broadcast(session.UserID, sse.SSEEventGenerationCancelled, map[string]any{
		"generation_id":  session.ID,
		"produced_count": int(count),
	})
	s.log.Info("Generation cancelled", "generation_id", session.ID, "produced", count)
}

func (s *generationService) broadcast(userID uuid.UUID, event sse.SSEEvent, data map[string]any) {
	if s.sseHub == nil {
		return
	}
	s.sseHub.Broadcast(sse.SSEMessage{
		Channel: userID.String(),
		Event:   event,
		Data:    data,
	})
}
