package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/repos/testutil"
	"github.com/prepmind/prepmind-backend/internal/vectorstore"
)

type fakeProvider struct {
	docs map[string][]Document
}

func (p *fakeProvider) ListSubjects(ctx context.Context) ([]string, error) {
	out := []string{}
	for s := range p.docs {
		out = append(out, s)
	}
	return out, nil
}

func (p *fakeProvider) GetDocumentSet(ctx context.Context, subject string) ([]Document, error) {
	docs, ok := p.docs[subject]
	if !ok {
		return nil, errors.New("unknown subject")
	}
	return docs, nil
}

func (p *fakeProvider) Topic(subject string) string { return "test topic" }

type fakeEmbedder struct {
	calls atomic.Int64
}

func (e *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1, 0}
	}
	return out, nil
}

func doc(name, content string) Document {
	return Document{Name: name, Size: int64(len(content)), Content: []byte(content)}
}

func newTestService(t *testing.T, provider *fakeProvider, embedder *fakeEmbedder) (Service, repos.DocumentChunkRepo, repos.SubjectIndexRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	chunkRepo := repos.NewDocumentChunkRepo(db, log)
	indexRepo := repos.NewSubjectIndexRepo(db, log)
	store := vectorstore.NewLocalStore(log, chunkRepo)
	svc := NewService(db, log, provider, embedder, store, chunkRepo, indexRepo, Config{
		ChunkSize:      300,
		ChunkOverlap:   50,
		EmbedBatchSize: 2,
		EmbedWorkers:   2,
	})
	return svc, chunkRepo, indexRepo
}

func TestIndexSubjectIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"physics": {
			doc("a.txt", "Newton's first law describes inertia. Objects at rest stay at rest."),
			doc("b.txt", "Energy is conserved in a closed system. Work equals force times distance."),
		},
	}}
	embedder := &fakeEmbedder{}
	svc, chunkRepo, _ := newTestService(t, provider, embedder)

	res, err := svc.IndexSubject(ctx, "physics", false)
	if err != nil {
		t.Fatalf("first index: %v", err)
	}
	if res.Skipped {
		t.Fatalf("first index should not be skipped")
	}
	if res.ChunksIndexed == 0 || res.DocumentCount != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	callsAfterFirst := embedder.calls.Load()

	res2, err := svc.IndexSubject(ctx, "physics", false)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !res2.Skipped {
		t.Fatalf("unchanged corpus should be skipped")
	}
	if embedder.calls.Load() != callsAfterFirst {
		t.Fatalf("skip should not re-embed")
	}

	count, err := chunkRepo.CountBySubject(ctx, nil, "physics")
	if err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if int(count) != res.ChunksIndexed {
		t.Fatalf("chunk rows %d != reported %d", count, res.ChunksIndexed)
	}
}

func TestIndexSubjectForceReindexes(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"math": {doc("a.txt", "Derivatives measure instantaneous rate of change of a function.")},
	}}
	embedder := &fakeEmbedder{}
	svc, _, _ := newTestService(t, provider, embedder)

	if _, err := svc.IndexSubject(ctx, "math", false); err != nil {
		t.Fatalf("index: %v", err)
	}
	res, err := svc.IndexSubject(ctx, "math", true)
	if err != nil {
		t.Fatalf("force index: %v", err)
	}
	if res.Skipped {
		t.Fatalf("force should bypass checksum skip")
	}
}

func TestIndexSubjectChecksumChangeTriggersReindex(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"chem": {doc("a.txt", "Atoms bond by sharing or transferring electrons between shells.")},
	}}
	embedder := &fakeEmbedder{}
	svc, chunkRepo, _ := newTestService(t, provider, embedder)

	if _, err := svc.IndexSubject(ctx, "chem", false); err != nil {
		t.Fatalf("index: %v", err)
	}

	provider.docs["chem"] = []Document{
		doc("a.txt", "Atoms bond by sharing or transferring electrons between shells."),
		doc("b.txt", "A mole contains Avogadro's number of particles of a substance."),
	}
	res, err := svc.IndexSubject(ctx, "chem", false)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if res.Skipped {
		t.Fatalf("changed corpus must not be skipped")
	}
	if res.DocumentCount != 2 {
		t.Fatalf("expected 2 documents, got %d", res.DocumentCount)
	}

	// Replace semantics: chunk rows reflect only the latest index run.
	count, err := chunkRepo.CountBySubject(ctx, nil, "chem")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if int(count) != res.ChunksIndexed {
		t.Fatalf("stale chunks left behind: rows=%d reported=%d", count, res.ChunksIndexed)
	}
}

func TestIndexSubjectRecordsSkippedDocs(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"bio": {
			doc("good.txt", "Cells are the basic structural unit of all living organisms."),
			{Name: "broken.txt", Err: errors.New("permission denied")},
			{Name: "binary.bin.txt", Size: 4, Content: []byte{0xff, 0xfe, 0x00, 0x80}},
		},
	}}
	embedder := &fakeEmbedder{}
	svc, _, indexRepo := newTestService(t, provider, embedder)

	res, err := svc.IndexSubject(ctx, "bio", false)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(res.SkippedDocs) != 2 {
		t.Fatalf("expected 2 skipped docs, got %+v", res.SkippedDocs)
	}

	row, err := indexRepo.GetBySubject(ctx, nil, "bio")
	if err != nil {
		t.Fatalf("load index row: %v", err)
	}
	if row == nil {
		t.Fatalf("index row missing")
	}
	var persisted []SkippedDoc
	if err := json.Unmarshal(row.SkippedDocs, &persisted); err != nil {
		t.Fatalf("decode skipped docs: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected 2 persisted skipped docs, got %d", len(persisted))
	}
}

func TestStatusReportsNeedsReindex(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"hist": {doc("a.txt", "The printing press accelerated the spread of written knowledge.")},
	}}
	embedder := &fakeEmbedder{}
	svc, _, _ := newTestService(t, provider, embedder)

	statuses, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].NeedsReindex || statuses[0].Indexed {
		t.Fatalf("unexpected pre-index status: %+v", statuses[0])
	}

	if _, err := svc.IndexSubject(ctx, "hist", false); err != nil {
		t.Fatalf("index: %v", err)
	}
	statuses, err = svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statuses[0].NeedsReindex || !statuses[0].Indexed {
		t.Fatalf("unexpected post-index status: %+v", statuses[0])
	}

	provider.docs["hist"][0] = doc("a.txt", "The printing press accelerated the spread of written knowledge everywhere.")
	statuses, err = svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !statuses[0].NeedsReindex {
		t.Fatalf("changed corpus should need reindex: %+v", statuses[0])
	}
}

func TestIndexSubjectEmbedFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{docs: map[string][]Document{
		"geo": {doc("a.txt", "Plate tectonics explains continental drift over geological time.")},
	}}

	db := testutil.DB(t)
	log := testutil.Logger(t)
	chunkRepo := repos.NewDocumentChunkRepo(db, log)
	indexRepo := repos.NewSubjectIndexRepo(db, log)
	svc := NewService(db, log, provider, failingEmbedder{}, vectorstore.NewLocalStore(log, chunkRepo), chunkRepo, indexRepo, Config{})

	if _, err := svc.IndexSubject(ctx, "geo", false); err == nil {
		t.Fatalf("expected embed failure to surface")
	}
	row, err := indexRepo.GetBySubject(ctx, nil, "geo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row != nil {
		t.Fatalf("failed run must not record a subject index")
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}
