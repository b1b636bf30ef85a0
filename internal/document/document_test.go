package document

import (
	"testing"

	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/ngram"
)

func TestReadCountsOccurrences(t *testing.T) {
	line := codec.Encode([]byte("aaaa"))
	doc, err := Read(1, line, 2, ngram.UnitByte)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc.Vocab) != 1 {
		t.Fatalf("expected a single distinct n-gram, got %d", len(doc.Vocab))
	}
	for _, count := range doc.Vocab {
		if count != 3 {
			t.Fatalf("expected count 3 for \"aa\" in \"aaaa\", got %d", count)
		}
	}
	if doc.ID != 1 {
		t.Fatalf("expected id 1, got %d", doc.ID)
	}
}

func TestReadInvalidLine(t *testing.T) {
	if _, err := Read(1, "not base64!!", 2, ngram.UnitByte); err == nil {
		t.Fatal("expected decode error")
	}
}
