package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := fs.Put(ctx, "doc1/contract.pdf", strings.NewReader("hello"), 5, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := fs.Get(ctx, "doc1/contract.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}
	if err := fs.Delete(ctx, "doc1/contract.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Get(ctx, "doc1/contract.pdf"); err == nil {
		t.Fatalf("expected error reading deleted object")
	}
	// deleting again is not an error
	if err := fs.Delete(ctx, "doc1/contract.pdf"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs/path", ".."} {
		if err := fs.Put(ctx, key, strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}
