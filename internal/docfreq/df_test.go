package docfreq

import "testing"

func TestDFSetLookup(t *testing.T) {
	df := NewDF()
	if _, ok := df.Lookup(1); ok {
		t.Fatal("expected empty table to report no match")
	}
	df.Set(1, 5)
	count, ok := df.Lookup(1)
	if !ok || count != 5 {
		t.Fatalf("expected (5, true), got (%d, %v)", count, ok)
	}
	if df.Len() != 1 {
		t.Fatalf("expected length 1, got %d", df.Len())
	}
}

func TestDFPruneSplitsByThreshold(t *testing.T) {
	df := NewDF()
	df.Set(1, 1)   // below min, dropped entirely
	df.Set(2, 5)   // kept
	df.Set(3, 100) // above max, moved to pruned set

	pruned := df.Prune(2, 50)

	if df.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", df.Len())
	}
	if count, ok := df.Lookup(2); !ok || count != 5 {
		t.Fatalf("expected hash 2 to survive with count 5, got (%d, %v)", count, ok)
	}
	if _, ok := df.Lookup(1); ok {
		t.Fatal("expected hash 1 to be dropped for falling below minCount")
	}
	if _, ok := df.Lookup(3); ok {
		t.Fatal("expected hash 3 to be removed from the live table once pruned")
	}
	if !pruned.Contains(3) {
		t.Fatal("expected hash 3 to be recorded in the pruned set")
	}
	if pruned.Contains(2) {
		t.Fatal("did not expect hash 2 in the pruned set")
	}
	if pruned.Len() != 1 {
		t.Fatalf("expected pruned set length 1, got %d", pruned.Len())
	}
}

func TestDFPruneEmpty(t *testing.T) {
	df := NewDF()
	pruned := df.Prune(1, 10)
	if pruned.Len() != 0 {
		t.Fatalf("expected empty pruned set, got %d", pruned.Len())
	}
	if df.Len() != 0 {
		t.Fatalf("expected empty table, got %d", df.Len())
	}
}
