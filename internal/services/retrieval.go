package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmind/prepmind-backend/internal/cache"
	"github.com/prepmind/prepmind-backend/internal/gateway"
	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/types"
	"github.com/prepmind/prepmind-backend/internal/utils"
	"github.com/prepmind/prepmind-backend/internal/vectorstore"
)

type ChatResult struct {
	Response         string   `json:"response"`
	Sources          []string `json:"sources"`
	RelevantDocCount int      `json:"relevant_doc_count"`
	Grounded         bool     `json:"grounded"`
}

type RetrievalService interface {
	// GenerateMCQ produces count questions for the subject. The bool result
	// reports whether the questions were grounded in retrieved corpus
	// content (false means knowledge-only fallback).
	GenerateMCQ(ctx context.Context, subject string, count int, difficulty string) ([]*types.Question, bool, error)
	// GenerateMCQBatch is GenerateMCQ keyed per exam part, so consecutive
	// batches of one session don't collapse onto the same cache entry.
	GenerateMCQBatch(ctx context.Context, subject string, count int, difficulty string, part int) ([]*types.Question, bool, error)
	GenerateMCQKnowledgeOnly(ctx context.Context, subject string, count int, difficulty string) ([]*types.Question, error)
	GenerateChatResponse(ctx context.Context, query string, subject string, sessionID string) (*ChatResult, error)
	SearchSimilar(ctx context.Context, query string, subject string, topK int) ([]*types.DocumentChunk, error)
	ClearCache(ctx context.Context) error
}

type RetrievalConfig struct {
	TopK            int
	MaxContextChars int
	CacheTTL        time.Duration
}

func ResolveRetrievalConfigFromEnv(log *logger.Logger) RetrievalConfig {
	return RetrievalConfig{
		TopK:            utils.GetEnvAsInt("TOP_K", 10, log),
		MaxContextChars: utils.GetEnvAsInt("MAX_CONTEXT_CHARS", 6000, log),
		CacheTTL:        time.Duration(utils.GetEnvAsInt("CACHE_TTL_SECONDS", 300, log)) * time.Second,
	}
}

type retrievalService struct {
	db  *gorm.DB
	log *logger.Logger

	respCache cache.Cache
	embedder  gateway.Embedder
	generator gateway.TextGenerator
	store     vectorstore.Store
	chunkRepo repos.DocumentChunkRepo

	cfg RetrievalConfig
}

func NewRetrievalService(
	db *gorm.DB,
	baseLog *logger.Logger,
	respCache cache.Cache,
	embedder gateway.Embedder,
	generator gateway.TextGenerator,
	store vectorstore.Store,
	chunkRepo repos.DocumentChunkRepo,
	cfg RetrievalConfig,
) RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 6000
	}
	return &retrievalService{
		db:        db,
		log:       baseLog.With("service", "RetrievalService"),
		respCache: respCache,
		embedder:  embedder,
		generator: generator,
		store:     store,
		chunkRepo: chunkRepo,
		cfg:       cfg,
	}
}

// The cache stores question content only, never persisted identity: a hit
// mints fresh IDs so two sessions sharing a cache entry can both persist
// their copies.
type cachedQuestion struct {
	PromptMD      string          `json:"prompt_md"`
	Options       json.RawMessage `json:"options"`
	CorrectIndex  int             `json:"correct_index"`
	ExplanationMD string          `json:"explanation_md"`
	Difficulty    string          `json:"difficulty"`
}

type cachedMCQ struct {
	Questions []cachedQuestion `json:"questions"`
	Grounded  bool             `json:"grounded"`
}

func toCachedMCQ(questions []*types.Question, grounded bool) cachedMCQ {
	out := cachedMCQ{
		Questions: make([]cachedQuestion, 0, len(questions)),
		Grounded:  grounded,
	}
	for _, q := range questions {
		out.Questions = append(out.Questions, cachedQuestion{
			PromptMD:      q.PromptMD,
			Options:       json.RawMessage(q.Options),
			CorrectIndex:  q.CorrectIndex,
			ExplanationMD: q.ExplanationMD,
			Difficulty:    q.Difficulty,
		})
	}
	return out
}

func (c cachedMCQ) materialize(subject string) []*types.Question {
	now := time.Now()
	questions := make([]*types.Question, 0, len(c.Questions))
	for _, cq := range c.Questions {
		questions = append(questions, &types.Question{
			ID:            uuid.New(),
			Subject:       subject,
			PromptMD:      cq.PromptMD,
			Options:       datatypes.JSON(cq.Options),
			CorrectIndex:  cq.CorrectIndex,
			ExplanationMD: cq.ExplanationMD,
			Difficulty:    cq.Difficulty,
			Grounded:      c.Grounded,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return questions
}

func (s *retrievalService) GenerateMCQ(ctx context.Context, subject string, count int, difficulty string) ([]*types.Question, bool, error) {
	return s.generateMCQPart(ctx, subject, count, difficulty, 0)
}

func (s *retrievalService) GenerateMCQBatch(ctx context.Context, subject string, count int, difficulty string, part int) ([]*types.Question, bool, error) {
	return s.generateMCQPart(ctx, subject, count, difficulty, part)
}

func (s *retrievalService) generateMCQPart(ctx context.Context, subject string, count int, difficulty string, part int) ([]*types.Question, bool, error) {
	if strings.TrimSpace(subject) == "" || count <= 0 {
		return nil, false, fmt.Errorf("%w: subject and positive count required", ErrInvalidRequest)
	}
	difficulty = normalizeDifficulty(difficulty)

	key := cacheKey("mcq", subject, strconv.Itoa(count), difficulty, strconv.Itoa(part))
	if raw, ok, err := s.respCache.Get(ctx, key); err == nil && ok {
		var cached cachedMCQ
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.log.Debug("MCQ cache hit", "subject", subject, "count", count)
			return cached.materialize(subject), cached.Grounded, nil
		}
	}

	chunks, err := s.searchChunks(ctx, subject+" "+difficulty+" exam preparation", subject)
	if err != nil {
		return nil, false, err
	}

	var questions []*types.Question
	grounded := len(chunks) > 0
	if grounded {
		questions, err = s.generateQuestions(ctx, subject, count, difficulty, part, s.buildContext(chunks))
	} else {
		s.log.Warn("No indexed content for subject, falling back to model knowledge", "subject", subject)
		questions, err = s.generateQuestions(ctx, subject, count, difficulty, part, "")
	}
	if err != nil {
		return nil, false, err
	}
	for _, q := range questions {
		q.Grounded = grounded
	}

	if raw, err := json.Marshal(toCachedMCQ(questions, grounded)); err == nil {
		_ = s.respCache.Set(ctx, key, raw, s.cfg.CacheTTL)
	}
	return questions, grounded, nil
}

func (s *retrievalService) GenerateMCQKnowledgeOnly(ctx context.Context, subject string, count int, difficulty string) ([]*types.Question, error) {
	if strings.TrimSpace(subject) == "" || count <= 0 {
		return nil, fmt.Errorf("%w: subject and positive count required", ErrInvalidRequest)
	}
	questions, err := s.generateQuestions(ctx, subject, count, normalizeDifficulty(difficulty), 0, "")
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// generateQuestions runs the structured MCQ generation, with one same-input
// retry when the output fails validation.
func (s *retrievalService) generateQuestions(ctx context.Context, subject string, count int, difficulty string, part int, contextBlock string) ([]*types.Question, error) {
	schema := mcqSchema()

	system := "You write fair multiple-choice exam questions. Every question has exactly 4 options and one correct answer."
	var user string
	if contextBlock != "" {
		system += " Ground every question strictly in the provided excerpts."
		user = fmt.Sprintf(
			"Subject: %s\nDifficulty: %s\n\n%s\nGenerate exactly %d multiple-choice questions with 4 options each. Include a short explanation for the correct answer.",
			subject, difficulty, contextBlock, count,
		)
	} else {
		user = fmt.Sprintf(
			"Subject: %s\nDifficulty: %s\n\nGenerate exactly %d multiple-choice questions with 4 options each from your own knowledge of the subject. Include a short explanation for the correct answer.",
			subject, difficulty, count,
		)
	}
	if part > 1 {
		user += fmt.Sprintf("\nThis is part %d of a longer exam; cover aspects not already covered by earlier parts.", part)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out, err := s.generator.GenerateJSON(ctx, system, user, "exam_questions", schema)
		if err != nil {
			if gateway.IsUnavailable(err) {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		questions, vErr := parseQuestions(out, subject, count, difficulty)
		if vErr == nil {
			return questions, nil
		}
		s.log.Warn("MCQ output failed validation, retrying once", "subject", subject, "error", vErr)
		lastErr = vErr
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, lastErr)
}

func mcqSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt_md":      map[string]any{"type": "string"},
						"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"correct_index":  map[string]any{"type": "integer"},
						"explanation_md": map[string]any{"type": "string"},
					},
					"required":             []string{"prompt_md", "options", "correct_index", "explanation_md"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"questions"},
		"additionalProperties": false,
	}
}

func parseQuestions(out map[string]any, subject string, count int, difficulty string) ([]*types.Question, error) {
	qsAny, ok := out["questions"].([]any)
	if !ok {
		return nil, fmt.Errorf("questions missing or wrong type")
	}
	if len(qsAny) != count {
		return nil, fmt.Errorf("expected %d questions, got %d", count, len(qsAny))
	}

	now := time.Now()
	qs := make([]*types.Question, 0, len(qsAny))
	for qi, qraw := range qsAny {
		qm, ok := qraw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("question %d is not an object", qi)
		}
		prompt := strings.TrimSpace(fmt.Sprint(qm["prompt_md"]))
		if prompt == "" {
			return nil, fmt.Errorf("question %d has empty prompt", qi)
		}
		opts := toStringSlice(qm["options"])
		if len(opts) != 4 {
			return nil, fmt.Errorf("question %d has %d options, want 4", qi, len(opts))
		}
		correct := intFromAny(qm["correct_index"], -1)
		if correct < 0 || correct > 3 {
			return nil, fmt.Errorf("question %d has correct_index %d out of range", qi, correct)
		}
		optsJSON, _ := json.Marshal(opts)

		qs = append(qs, &types.Question{
			ID:            uuid.New(),
			Subject:       subject,
			PromptMD:      prompt,
			Options:       datatypes.JSON(optsJSON),
			CorrectIndex:  correct,
			ExplanationMD: fmt.Sprint(qm["explanation_md"]),
			Difficulty:    difficulty,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return qs, nil
}

func (s *retrievalService) GenerateChatResponse(ctx context.Context, query string, subject string, sessionID string) (*ChatResult, error) {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: query and subject required", ErrInvalidRequest)
	}

	key := cacheKey("chat", subject, query)
	if raw, ok, err := s.respCache.Get(ctx, key); err == nil && ok {
		var cached ChatResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.log.Debug("Chat cache hit", "subject", subject)
			return &cached, nil
		}
	}

	chunks, err := s.searchChunks(ctx, query, subject)
	if err != nil {
		return nil, err
	}
	grounded := len(chunks) > 0

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response_md": map[string]any{"type": "string"},
		},
		"required":             []string{"response_md"},
		"additionalProperties": false,
	}

	system := "You are a study assistant for exam preparation. Answer concisely in markdown."
	var user string
	if grounded {
		system += " Ground your answer strictly in the provided excerpts."
		user = fmt.Sprintf("Subject: %s\n\n%s\nQuestion: %s", subject, s.buildContext(chunks), query)
	} else {
		user = fmt.Sprintf("Subject: %s\n\nQuestion: %s\n\nAnswer from your own knowledge of the subject.", subject, query)
	}

	out, err := s.generator.GenerateJSON(ctx, system, user, "chat_response", schema)
	if err != nil {
		if gateway.IsUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	response := strings.TrimSpace(fmt.Sprint(out["response_md"]))
	if response == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	sources := []string{}
	seen := map[string]bool{}
	for _, ch := range chunks {
		if !seen[ch.SourceFile] {
			seen[ch.SourceFile] = true
			sources = append(sources, ch.SourceFile)
		}
	}

	result := &ChatResult{
		Response:         response,
		Sources:          sources,
		RelevantDocCount: len(sources),
		Grounded:         grounded,
	}
	if raw, err := json.Marshal(result); err == nil {
		_ = s.respCache.Set(ctx, key, raw, s.cfg.CacheTTL)
	}
	return result, nil
}

func (s *retrievalService) SearchSimilar(ctx context.Context, query string, subject string, topK int) ([]*types.DocumentChunk, error) {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: query and subject required", ErrInvalidRequest)
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	return s.searchChunksWithK(ctx, query, subject, topK)
}

func (s *retrievalService) ClearCache(ctx context.Context) error {
	return s.respCache.Clear(ctx)
}

func (s *retrievalService) searchChunks(ctx context.Context, query string, subject string) ([]*types.DocumentChunk, error) {
	return s.searchChunksWithK(ctx, query, subject, s.cfg.TopK)
}

func (s *retrievalService) searchChunksWithK(ctx context.Context, query string, subject string, topK int) ([]*types.DocumentChunk, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrBackendUnavailable, err)
	}
	matches, err := s.store.Query(ctx, subject, vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("%w: vector query: %v", ErrBackendUnavailable, err)
	}
	if len(matches) == 0 {
		return []*types.DocumentChunk{}, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	chunks, err := s.chunkRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	// Preserve relevance order from the store.
	byID := make(map[uuid.UUID]*types.DocumentChunk, len(chunks))
	for _, ch := range chunks {
		if ch != nil {
			byID[ch.ID] = ch
		}
	}
	out := make([]*types.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

// buildContext assembles excerpt lines most-relevant first and stops at the
// context budget, so the least relevant chunks are the ones dropped.
func (s *retrievalService) buildContext(chunks []*types.DocumentChunk) string {
	var b strings.Builder
	b.WriteString("Excerpts:\n")
	used := b.Len()
	for _, ch := range chunks {
		line := fmt.Sprintf("[%s] %s\n", ch.SourceFile, ch.Text)
		if used+len(line) > s.cfg.MaxContextChars {
			remaining := s.cfg.MaxContextChars - used
			if remaining > 80 {
				b.WriteString(truncate(line, remaining))
				b.WriteString("\n")
			}
			break
		}
		b.WriteString(line)
		used += len(line)
	}
	return b.String()
}

// ---- helpers ----

func cacheKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

func normalizeDifficulty(difficulty string) string {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "easy":
		return "easy"
	case "hard":
		return "hard"
	default:
		return "medium"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func toStringSlice(v any) []string {
	if v == nil {
		return []string{}
	}
	a, ok := v.([]any)
	if !ok {
		if ss, ok2 := v.([]string); ok2 {
			return ss
		}
		return []string{}
	}
	out := make([]string, 0, len(a))
	for _, x := range a {
		out = append(out, fmt.Sprint(x))
	}
	return out
}

func intFromAny(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	default:
		return def
	}
}
