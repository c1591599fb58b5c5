package cache

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "lookups.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	c := openTemp(t)

	if _, ok, err := c.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v, err=%v", ok, err)
	}

	if err := c.Set("k1", []byte(`{"title": "T"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get("k1")
	if err != nil || !ok {
		t.Fatalf("Get(k1) = ok=%v, err=%v", ok, err)
	}
	if string(got) != `{"title": "T"}` {
		t.Errorf("Get(k1) = %s", got)
	}
}

func TestCache_SetReplaces(t *testing.T) {
	c := openTemp(t)
	if err := c.Set("k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("k", []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := c.Get("k")
	if !ok || string(got) != "new" {
		t.Errorf("Get(k) = %q, %v", got, ok)
	}
}

func TestCache_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookups.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	got, ok, _ := c2.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("entry did not survive reopen: %q, %v", got, ok)
	}
}

func TestKey(t *testing.T) {
	if Key("a", "b") == Key("ab") {
		t.Error("part boundaries must affect the key")
	}
	if Key("title", "x") != Key("title", "x") {
		t.Error("Key must be deterministic")
	}
	if len(Key("x")) != 64 {
		t.Errorf("Key length = %d, want 64 hex chars", len(Key("x")))
	}
}
