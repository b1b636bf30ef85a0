// Package ngram produces overlapping n-gram hashes from a decoded document
// body. The segmentation unit (raw bytes or whitespace-delimited tokens) is
// a property of the extractor; callers only ever see opaque 64-bit hashes.
package ngram

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// Unit selects the segmentation granularity used to build n-grams.
type Unit int

const (
	// UnitByte slides a fixed-size window over the raw byte stream.
	UnitByte Unit = iota
	// UnitToken slides a fixed-size window over whitespace-delimited tokens.
	UnitToken
)

// ParseUnit maps a CLI flag value to a Unit, defaulting to UnitByte for an
// unrecognized value.
func ParseUnit(s string) Unit {
	if s == "token" {
		return UnitToken
	}
	return UnitByte
}

// Extract returns every overlapping n-gram hash of the given size in body,
// in left-to-right order. Two documents with byte-equal bodies always
// produce identical hash sequences. size must be >= 1; for documents
// shorter than size no n-grams are produced.
func Extract(body []byte, size int, unit Unit) func(yield func(uint64) bool) {
	switch unit {
	case UnitToken:
		return extractTokens(body, size)
	default:
		return extractBytes(body, size)
	}
}

func extractBytes(body []byte, size int) func(yield func(uint64) bool) {
	return func(yield func(uint64) bool) {
		if size < 1 || len(body) < size {
			return
		}
		for i := 0; i+size <= len(body); i++ {
			if !yield(xxhash.Sum64(body[i : i+size])) {
				return
			}
		}
	}
}

func extractTokens(body []byte, size int) func(yield func(uint64) bool) {
	return func(yield func(uint64) bool) {
		tokens := bytes.Fields(body)
		if size < 1 || len(tokens) < size {
			return
		}
		for i := 0; i+size <= len(tokens); i++ {
			h := xxhash.New()
			for j := 0; j < size; j++ {
				if j > 0 {
					h.Write([]byte{' '})
				}
				h.Write(tokens[i+j])
			}
			if !yield(h.Sum64()) {
				return
			}
		}
	}
}
