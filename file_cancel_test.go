package atomtree_test

import (
	"context"
	"testing"

	"github.com/simonhull/atomtree"
)

func TestOpenMany(t *testing.T) {
	paths := []string{
		writeTemp(t, buildBook(true)),
		writeTemp(t, buildBook(false)),
		writeTemp(t, buildBook(true)),
	}

	docs, err := atomtree.OpenMany(context.Background(), paths, atomtree.WithStrictParsing())
	if err != nil {
		t.Fatalf("OpenMany failed: %v", err)
	}
	defer func() {
		for _, d := range docs {
			d.Close()
		}
	}()

	if len(docs) != len(paths) {
		t.Fatalf("got %d documents, want %d", len(docs), len(paths))
	}
	for i, d := range docs {
		if d.Path != paths[i] {
			t.Errorf("docs[%d].Path = %q, want %q", i, d.Path, paths[i])
		}
	}
	if docs[1].Chapters() != nil || len(docs[2].Chapters()) != 2 {
		t.Error("documents are not in input order")
	}
}

func TestOpenMany_Empty(t *testing.T) {
	docs, err := atomtree.OpenMany(context.Background(), nil)
	if docs != nil || err != nil {
		t.Errorf("OpenMany(nil) = %v, %v", docs, err)
	}
}

// TestOpenMany_Cancellation verifies that cancelled operations clean up resources
func TestOpenMany_Cancellation(t *testing.T) {
	paths := make([]string, 5)
	for i := range paths {
		paths[i] = writeTemp(t, buildBook(true))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, err := atomtree.OpenMany(ctx, paths)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if docs != nil {
		t.Error("expected nil documents on error")
	}
}

// TestOpenMany_PartialFailure verifies cleanup on partial failure
func TestOpenMany_PartialFailure(t *testing.T) {
	validPath := writeTemp(t, buildBook(true))
	paths := []string{
		validPath,
		"/nonexistent/file.m4b",
		validPath,
	}

	docs, err := atomtree.OpenMany(context.Background(), paths)
	if err == nil {
		t.Fatal("expected error from nonexistent file")
	}
	if docs != nil {
		t.Error("expected nil documents on partial failure")
	}
}
