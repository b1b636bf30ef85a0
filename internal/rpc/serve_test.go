package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/scorer"
)

func writeScoreServeCorpus(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(line)))
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, "corpus.b64")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	return path
}

// TestScoreRemoteMatchesInProcessScoring checks that a Score RPC round trip
// over a real TCP loopback connection returns the same candidate scores
// the in-process scorer would for the same probe document.
func TestScoreRemoteMatchesInProcessScoring(t *testing.T) {
	lines := []string{
		"the quick brown fox jumps over the lazy dog",
		"a journey of a thousand miles begins with a single step",
	}
	path := writeScoreServeCorpus(t, lines)

	ctx := context.Background()
	df := docfreq.NewDF()
	if _, err := docfreq.ComputeDF(ctx, df, path, 3, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF: %v", err)
	}
	pruned := df.Prune(1, 1000)

	index, _, err := refindex.Build(ctx, path, 3, ngram.UnitByte, len(lines), df, pruned, 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	probeLine := base64.StdEncoding.EncodeToString([]byte("the quick brown fox jumps over the lazy dog"))

	svc := &ScoreService{
		Index:         index,
		DF:            df,
		Pruned:        pruned,
		DocumentCount: len(lines),
		NgramSize:     3,
		Unit:          ngram.UnitByte,
		Threshold:     0.0,
	}
	server := NewScoreServer(svc)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve("127.0.0.1:0") }()

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := server.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server never started listening")
	}
	t.Cleanup(func() {
		server.Stop()
		<-errCh
	})

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	remote, err := ScoreRemote(client, ScoreRequest{DocID: 99, Line: probeLine})
	if err != nil {
		t.Fatalf("ScoreRemote: %v", err)
	}

	local := svc.handleLocally(t, 99, probeLine)
	if len(remote.Pairs) != len(local) {
		t.Fatalf("remote returned %d pairs, local scoring returned %d", len(remote.Pairs), len(local))
	}

	// scorer.Score iterates a map internally, so pair order is not
	// guaranteed to match between independent calls; compare by RefID.
	localByRef := make(map[int]scorer.Pair, len(local))
	for _, p := range local {
		localByRef[p.RefID] = p
	}
	for _, rp := range remote.Pairs {
		lp, ok := localByRef[rp.RefID]
		if !ok {
			t.Fatalf("remote pair for ref %d has no local counterpart", rp.RefID)
		}
		if rp.TargetID != lp.TargetID {
			t.Fatalf("ref %d target mismatch: remote=%d local=%d", rp.RefID, rp.TargetID, lp.TargetID)
		}
		if diff := rp.Score - lp.Score; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("ref %d score mismatch: remote=%f local=%f", rp.RefID, rp.Score, lp.Score)
		}
	}
}

// handleLocally reproduces ScoreService.handle's work directly, without
// going over the wire, as the comparison baseline above.
func (s *ScoreService) handleLocally(t *testing.T, docID int, line string) []scorer.Pair {
	t.Helper()
	raw, err := json.Marshal(ScoreRequest{DocID: docID, Line: line})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := s.handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return resp.(ScoreResponse).Pairs
}
