package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmind/prepmind-backend/internal/gateway"
	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/types"
	"github.com/prepmind/prepmind-backend/internal/utils"
	"github.com/prepmind/prepmind-backend/internal/vectorstore"
)

type SkippedDoc struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type IndexResult struct {
	Subject       string       `json:"subject"`
	Skipped       bool         `json:"skipped"`
	ChunksIndexed int          `json:"chunks_indexed"`
	DocumentCount int          `json:"document_count"`
	SkippedDocs   []SkippedDoc `json:"skipped_docs,omitempty"`
}

type SubjectStatus struct {
	Subject      string     `json:"subject"`
	Indexed      bool       `json:"indexed"`
	NeedsReindex bool       `json:"needs_reindex"`
	Reason       string     `json:"reason,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	IndexedAt    *time.Time `json:"indexed_at,omitempty"`
}

type Service interface {
	IndexSubject(ctx context.Context, subject string, force bool) (*IndexResult, error)
	IndexAllSubjects(ctx context.Context, force bool) ([]*IndexResult, error)
	Status(ctx context.Context) ([]*SubjectStatus, error)
}

type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	EmbedWorkers   int
}

func ResolveConfigFromEnv(log *logger.Logger) Config {
	return Config{
		ChunkSize:      utils.GetEnvAsInt("CHUNK_SIZE", 1200, log),
		ChunkOverlap:   utils.GetEnvAsInt("CHUNK_OVERLAP", 200, log),
		EmbedBatchSize: utils.GetEnvAsInt("EMBED_BATCH_SIZE", 64, log),
		EmbedWorkers:   utils.GetEnvAsInt("EMBED_WORKERS", 4, log),
	}
}

type service struct {
	db  *gorm.DB
	log *logger.Logger

	provider DocumentProvider
	embedder gateway.Embedder
	store    vectorstore.Store

	chunkRepo repos.DocumentChunkRepo
	indexRepo repos.SubjectIndexRepo

	cfg Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	provider DocumentProvider,
	embedder gateway.Embedder,
	store vectorstore.Store,
	chunkRepo repos.DocumentChunkRepo,
	indexRepo repos.SubjectIndexRepo,
	cfg Config,
) Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	return &service{
		db:        db,
		log:       baseLog.With("service", "IndexerService"),
		provider:  provider,
		embedder:  embedder,
		store:     store,
		chunkRepo: chunkRepo,
		indexRepo: indexRepo,
		cfg:       cfg,
		locks:     map[string]*sync.Mutex{},
	}
}

// subjectLock serializes re-indexing per subject; different subjects can
// index concurrently.
func (s *service) subjectLock(subject string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[subject]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[subject] = lock
	}
	return lock
}

func (s *service) IndexSubject(ctx context.Context, subject string, force bool) (*IndexResult, error) {
	lock := s.subjectLock(subject)
	lock.Lock()
	defer lock.Unlock()

	docs, err := s.provider.GetDocumentSet(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("load document set for %s: %w", subject, err)
	}

	sum := Checksum(docs)
	existing, err := s.indexRepo.GetBySubject(ctx, nil, subject)
	if err != nil {
		return nil, fmt.Errorf("load subject index for %s: %w", subject, err)
	}
	if existing != nil && existing.Checksum == sum && !force {
		s.log.Debug("Corpus unchanged, skipping re-index", "subject", subject)
		return &IndexResult{
			Subject:       subject,
			Skipped:       true,
			ChunksIndexed: existing.ChunkCount,
			DocumentCount: existing.DocumentCount,
		}, nil
	}

	topic := s.provider.Topic(subject)
	chunks := []*types.DocumentChunk{}
	skipped := []SkippedDoc{}
	now := time.Now()

	for _, d := range docs {
		if d.Err != nil {
			skipped = append(skipped, SkippedDoc{Name: d.Name, Reason: d.Err.Error()})
			continue
		}
		if !utf8.Valid(d.Content) {
			skipped = append(skipped, SkippedDoc{Name: d.Name, Reason: "not valid UTF-8 text"})
			continue
		}
		pieces := SplitText(string(d.Content), s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		for i, piece := range pieces {
			chunks = append(chunks, &types.DocumentChunk{
				ID:         uuid.New(),
				Subject:    subject,
				SourceFile: d.Name,
				Index:      i,
				Text:       piece,
				Metadata:   datatypes.JSON(mustJSON(map[string]any{"topic": topic})),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	if len(skipped) > 0 {
		s.log.Warn("Some documents skipped during indexing", "subject", subject, "skipped", len(skipped))
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	// Replace semantics: old chunks go away atomically with the new write.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chunkRepo.DeleteBySubject(ctx, tx, subject); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if _, err := s.chunkRepo.Create(ctx, tx, chunks); err != nil {
			return fmt.Errorf("create chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteNamespace(ctx, subject); err != nil {
		return nil, fmt.Errorf("clear vector namespace: %w", err)
	}
	if err := s.store.Upsert(ctx, subject, vectors); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	if _, err := s.indexRepo.Upsert(ctx, nil, &types.SubjectIndex{
		Subject:       subject,
		Checksum:      sum,
		ChunkCount:    len(chunks),
		DocumentCount: len(docs),
		SkippedDocs:   datatypes.JSON(mustJSON(skipped)),
		IndexedAt:     time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("record subject index: %w", err)
	}

	s.log.Info("Subject indexed",
		"subject", subject,
		"documents", len(docs),
		"chunks", len(chunks),
		"skipped_docs", len(skipped),
	)
	return &IndexResult{
		Subject:       subject,
		ChunksIndexed: len(chunks),
		DocumentCount: len(docs),
		SkippedDocs:   skipped,
	}, nil
}

func (s *service) embedChunks(ctx context.Context, chunks []*types.DocumentChunk) ([]vectorstore.Vector, error) {
	if len(chunks) == 0 {
		return []vectorstore.Vector{}, nil
	}

	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedWorkers)

	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		start := start
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			inputs := make([]string, 0, end-start)
			for _, ch := range chunks[start:end] {
				inputs = append(inputs, ch.Text)
			}
			vecs, err := s.embedder.Embed(gctx, inputs)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch [%d:%d]: got %d embeddings", start, end, len(vecs))
			}
			copy(embeddings[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors := make([]vectorstore.Vector, 0, len(chunks))
	for i, ch := range chunks {
		ch.Embedding = datatypes.JSON(mustJSON(embeddings[i]))
		vectors = append(vectors, vectorstore.Vector{
			ID:     ch.ID.String(),
			Values: embeddings[i],
			Metadata: map[string]any{
				"subject":     ch.Subject,
				"source_file": ch.SourceFile,
			},
		})
	}
	return vectors, nil
}

func (s *service) IndexAllSubjects(ctx context.Context, force bool) ([]*IndexResult, error) {
	subjects, err := s.provider.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*IndexResult, 0, len(subjects))
	for _, subject := range subjects {
		res, err := s.IndexSubject(ctx, subject, force)
		if err != nil {
			return results, fmt.Errorf("index subject %s: %w", subject, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *service) Status(ctx context.Context) ([]*SubjectStatus, error) {
	subjects, err := s.provider.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SubjectStatus, 0, len(subjects))
	for _, subject := range subjects {
		st := &SubjectStatus{Subject: subject}

		existing, err := s.indexRepo.GetBySubject(ctx, nil, subject)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			st.NeedsReindex = true
			st.Reason = "never indexed"
			out = append(out, st)
			continue
		}
		st.Indexed = true
		st.ChunkCount = existing.ChunkCount
		indexedAt := existing.IndexedAt
		st.IndexedAt = &indexedAt

		docs, err := s.provider.GetDocumentSet(ctx, subject)
		if err != nil {
			st.NeedsReindex = true
			st.Reason = fmt.Sprintf("document set unavailable: %v", err)
			out = append(out, st)
			continue
		}
		if Checksum(docs) != existing.Checksum {
			st.NeedsReindex = true
			st.Reason = "corpus changed since last index"
		}
		out = append(out, st)
	}
	return out, nil
}

// ---- helpers ----

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
