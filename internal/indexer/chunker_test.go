package indexer

import (
	"strings"
	"testing"
)

func TestSplitTextEmpty(t *testing.T) {
	if got := SplitText("", 1000, 100); len(got) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(got))
	}
	if got := SplitText("   \n\t  ", 1000, 100); len(got) != 0 {
		t.Fatalf("expected no chunks for whitespace text, got %d", len(got))
	}
}

func TestSplitTextSingleChunk(t *testing.T) {
	text := "First sentence. Second sentence. Third sentence."
	got := SplitText(text, 1000, 100)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(got), got)
	}
	if got[0] != text {
		t.Fatalf("chunk should preserve text, got %q", got[0])
	}
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("This is a filler sentence with some reasonable length for chunking. ")
	}
	chunkSize := 500
	got := SplitText(b.String(), chunkSize, 100)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, ch := range got {
		if len(ch) > chunkSize {
			t.Fatalf("chunk %d exceeds size: %d > %d", i, len(ch), chunkSize)
		}
	}
}

func TestSplitTextOverlapRepeatsTrailingSentence(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number one of the corpus used here. ")
	}
	got := SplitText(b.String(), 300, 120)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	// The tail sentence of chunk N should open chunk N+1.
	first := got[0]
	lastSentence := "Sentence number one of the corpus used here."
	if !strings.HasSuffix(first, lastSentence) {
		t.Fatalf("unexpected first chunk tail: %q", first)
	}
	if !strings.HasPrefix(got[1], lastSentence) {
		t.Fatalf("expected overlap at start of second chunk, got %q", got[1])
	}
}

func TestSplitTextBreaksAtSentenceBoundaries(t *testing.T) {
	text := "Alpha beta gamma delta. Epsilon zeta eta theta! Iota kappa lambda mu? Nu xi omicron pi."
	got := SplitText(text, 200, 0)
	for _, ch := range got {
		trimmed := strings.TrimSpace(ch)
		last := trimmed[len(trimmed)-1]
		if last != '.' && last != '!' && last != '?' {
			t.Fatalf("chunk does not end at sentence boundary: %q", ch)
		}
	}
}

func TestSplitTextOversizedSentenceHardSplit(t *testing.T) {
	long := strings.Repeat("x", 1000)
	got := SplitText(long, 300, 50)
	if len(got) < 3 {
		t.Fatalf("expected hard split into several pieces, got %d", len(got))
	}
	for i, ch := range got {
		if len(ch) > 300 {
			t.Fatalf("piece %d exceeds chunk size: %d", i, len(ch))
		}
	}
	// Hard split pieces overlap by the configured amount.
	if !strings.HasPrefix(got[1], "x") {
		t.Fatalf("unexpected piece content")
	}
}

func TestSplitTextMinimumChunkSize(t *testing.T) {
	text := strings.Repeat("Short one. ", 50)
	got := SplitText(text, 10, 5)
	for i, ch := range got {
		if len(ch) > 200 {
			t.Fatalf("chunk %d exceeds clamped minimum size: %d", i, len(ch))
		}
	}
}
