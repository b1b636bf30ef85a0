// Package document holds the transient per-line document representation
// shared by the DF counter, vectorizer, and scorer.
package document

import (
	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/ngram"
)

// Document is a single input line's decoded body reduced to an n-gram
// occurrence count map. It is constructed in a worker, consumed within the
// same batch, and discarded.
type Document struct {
	ID    int
	Vocab map[uint64]int
}

// Read decodes one base64 input line and extracts its n-gram vocabulary.
func Read(id int, line string, ngramSize int, unit ngram.Unit) (Document, error) {
	body, err := codec.Decode(line)
	if err != nil {
		return Document{}, err
	}
	doc := Document{ID: id, Vocab: make(map[uint64]int)}
	for h := range ngram.Extract(body, ngramSize, unit) {
		doc.Vocab[h]++
	}
	return doc, nil
}
