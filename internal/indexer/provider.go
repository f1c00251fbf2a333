package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/utils"
)

// Document is one corpus file. Err is set when the file could not be read;
// the indexer records it as a skip instead of failing the whole subject.
type Document struct {
	Name    string
	Size    int64
	Content []byte
	Err     error
}

type DocumentProvider interface {
	ListSubjects(ctx context.Context) ([]string, error)
	GetDocumentSet(ctx context.Context, subject string) ([]Document, error)
	Topic(subject string) string
}

type manifestEntry struct {
	Path  string `yaml:"path"`
	Topic string `yaml:"topic"`
}

type manifest struct {
	Subjects map[string]manifestEntry `yaml:"subjects"`
}

// fsProvider maps subjects to corpus directories via a YAML manifest:
//
//	subjects:
//	  physics:
//	    path: ./corpus/physics
//	    topic: "high school physics"
type fsProvider struct {
	log      *logger.Logger
	subjects map[string]manifestEntry
}

func NewFSProviderFromEnv(log *logger.Logger) (DocumentProvider, error) {
	path := strings.TrimSpace(utils.GetEnv("SUBJECTS_CONFIG", "subjects.yaml", log))
	return NewFSProvider(log, path)
}

func NewFSProvider(log *logger.Logger, manifestPath string) (DocumentProvider, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read subjects manifest %s: %w", manifestPath, err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse subjects manifest %s: %w", manifestPath, err)
	}
	if len(m.Subjects) == 0 {
		return nil, fmt.Errorf("subjects manifest %s declares no subjects", manifestPath)
	}
	return &fsProvider{
		log:      log.With("service", "FSDocumentProvider"),
		subjects: m.Subjects,
	}, nil
}

func (p *fsProvider) ListSubjects(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(p.subjects))
	for subject := range p.subjects {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out, nil
}

func (p *fsProvider) Topic(subject string) string {
	return p.subjects[subject].Topic
}

func (p *fsProvider) GetDocumentSet(ctx context.Context, subject string) ([]Document, error) {
	entry, ok := p.subjects[subject]
	if !ok {
		return nil, fmt.Errorf("unknown subject %q", subject)
	}

	dirEntries, err := os.ReadDir(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir %s: %w", entry.Path, err)
	}

	docs := []Document{}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		doc := Document{Name: name}
		if info, err := de.Info(); err == nil {
			doc.Size = info.Size()
		}
		content, err := os.ReadFile(filepath.Join(entry.Path, name))
		if err != nil {
			doc.Err = err
		} else {
			doc.Content = content
			doc.Size = int64(len(content))
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
