package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bitextor/docalign/internal/document"
	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/scorer"
	"github.com/bitextor/docalign/internal/vectorizer"
)

// ScoreRequest carries one base64-encoded target document to be vectorized
// and scored against a resident reference index.
type ScoreRequest struct {
	DocID int    `json:"doc_id"`
	Line  string `json:"line"`
}

// ScoreResponse carries every reference candidate that cleared the
// server's configured threshold.
type ScoreResponse struct {
	Pairs []scorer.Pair `json:"pairs"`
}

// ScoreService answers Score RPCs against a reference index already built
// in the serving process, so repeated probe documents never pay index
// construction cost again. It is the docalign-specific method registered
// on the generic Server by NewScoreServer.
type ScoreService struct {
	Index         *refindex.Index
	DF            *docfreq.DF
	Pruned        *docfreq.PrunedSet
	DocumentCount int
	NgramSize     int
	Unit          ngram.Unit
	Threshold     float64
}

func (s *ScoreService) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var req ScoreRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding score request: %w", err)
	}

	doc, err := document.Read(req.DocID, req.Line, s.NgramSize, s.Unit)
	if err != nil {
		return nil, fmt.Errorf("reading probe document: %w", err)
	}
	ref := vectorizer.Vectorize(doc, s.DocumentCount, s.DF, s.Pruned)

	sink := scorer.NewCollectSink()
	scorer.Score(ref, s.Index, s.Threshold, sink)

	return ScoreResponse{Pairs: sink.Pairs}, nil
}

// NewScoreServer builds a Server with a single "DocAlign.Score" method
// backed by svc, ready to Serve.
func NewScoreServer(svc *ScoreService) *Server {
	s := NewServer()
	s.Register("DocAlign.Score", svc.handle)
	return s
}

// ScoreRemote calls the DocAlign.Score method on an already-Dialed client.
func ScoreRemote(c *Client, req ScoreRequest) (ScoreResponse, error) {
	var resp ScoreResponse
	if err := c.Call("DocAlign.Score", req, &resp); err != nil {
		return ScoreResponse{}, err
	}
	return resp, nil
}
