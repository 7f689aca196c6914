package kvstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get("token"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Set("token", "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := s.Get("token")
	if err != nil || v != "abc" {
		t.Errorf("Expected abc, got %q (%v)", v, err)
	}

	if err := s.Delete("token"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("token"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Set("active_session", "s1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("auth_token", "tok"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	v, err := reopened.Get("active_session")
	if err != nil || v != "s1" {
		t.Errorf("Expected s1 after reopen, got %q (%v)", v, err)
	}
}

func TestFileStoreClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after clear, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected backing file removed")
	}
}

func TestFileStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "store.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected file written: %v", err)
	}
}
