package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type testRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStore_WriteAndRead(t *testing.T) {
	s := New(t.TempDir())

	rec := testRecord{ID: "123", Name: "test", Value: 42}

	err := s.WriteJSON(filepath.Join("chat", "chat_1.json"), rec)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if !s.Exists(filepath.Join("chat", "chat_1.json")) {
		t.Fatal("File was not created")
	}

	var got testRecord
	err = s.ReadJSON(filepath.Join("chat", "chat_1.json"), &got)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	if got != rec {
		t.Errorf("Data mismatch: got %+v, want %+v", got, rec)
	}
}

func TestStore_ReadNotFound(t *testing.T) {
	s := New(t.TempDir())

	var rec testRecord
	err := s.ReadJSON("missing.json", &rec)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_ReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	var rec testRecord
	err := s.ReadJSON("bad.json", &rec)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got: %v", err)
	}
}

func TestStore_RemoveMissingIsNoError(t *testing.T) {
	s := New(t.TempDir())

	if err := s.Remove("never-existed.json"); err != nil {
		t.Errorf("Remove of missing file should not error, got: %v", err)
	}
}

func TestStore_ListJSON(t *testing.T) {
	s := New(t.TempDir())

	for _, name := range []string{"chat_1", "chat_2"} {
		if err := s.WriteJSON(filepath.Join("chat", name+".json"), testRecord{ID: name}); err != nil {
			t.Fatal(err)
		}
	}
	// Non-JSON files are ignored.
	if err := os.WriteFile(s.Path(filepath.Join("chat", "notes.txt")), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := s.ListJSON("chat")
	if err != nil {
		t.Fatalf("ListJSON failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("Expected 2 names, got %v", names)
	}

	empty, err := s.ListJSON("missing-dir")
	if err != nil {
		t.Fatalf("ListJSON on missing dir failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected empty list, got %v", empty)
	}
}

func TestStore_NoPartialWrites(t *testing.T) {
	s := New(t.TempDir())

	// Hammer the same file from several goroutines; every read must observe
	// a fully written record.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.WriteJSON("contended.json", testRecord{ID: "x", Value: n})
		}(i)
	}
	wg.Wait()

	var got testRecord
	if err := s.ReadJSON("contended.json", &got); err != nil {
		t.Fatalf("ReadJSON after concurrent writes failed: %v", err)
	}
	if got.ID != "x" {
		t.Errorf("Unexpected record: %+v", got)
	}
}
