package storage

import (
	"fmt"
	"sort"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	v2 := NewPrefixDB(inner, []byte("v2/"))
	v3 := NewPrefixDB(inner, []byte("v3/"))

	if err := v2.Put([]byte("key"), []byte("legacy")); err != nil {
		t.Fatal(err)
	}
	if err := v3.Put([]byte("key"), []byte("current")); err != nil {
		t.Fatal(err)
	}

	got, err := v2.Get([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "legacy" {
		t.Fatalf("v2.Get = %q, want %q", got, "legacy")
	}
	got, err = v3.Get([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "current" {
		t.Fatalf("v3.Get = %q, want %q", got, "current")
	}

	if ok, _ := v2.Has([]byte("v3/key")); ok {
		t.Fatal("v2 should not see v3's raw key")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("apps/"))

	db.Put([]byte("w1/c1"), []byte("a"))
	db.Put([]byte("w1/c2"), []byte("b"))
	db.Put([]byte("w2/c1"), []byte("c"))

	var keys []string
	err := db.ForEach([]byte("w1/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "w1/c1" || keys[1] != "w1/c2" {
		t.Fatalf("ForEach keys = %v, want [w1/c1 w1/c2]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	v2 := NewPrefixDB(inner, []byte("v2/"))
	v3 := NewPrefixDB(inner, []byte("v3/"))

	v2.Put([]byte("k1"), []byte("v1"))
	v2.Put([]byte("k2"), []byte("v2"))
	v3.Put([]byte("k1"), []byte("other"))

	if err := v2.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	keys, err := v2.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("v2 has %d keys after DeleteAll", len(keys))
	}

	got, err := v3.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("v3.Get after v2.DeleteAll: %v", err)
	}
	if string(got) != "other" {
		t.Fatalf("v3.Get = %q, want %q", got, "other")
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("v4/"))

	b := db.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, _ := inner.Has([]byte("v4/a")); !ok {
		t.Error("inner missing v4/a")
	}
	if ok, _ := inner.Has([]byte("v4/b")); !ok {
		t.Error("inner missing v4/b")
	}
}

func TestMultiBatch_SpansNamespaces(t *testing.T) {
	inner := NewMemory()
	v2 := NewPrefixDB(inner, []byte("v2/"))
	v3 := NewPrefixDB(inner, []byte("v3/"))
	v2.Put([]byte("key"), []byte("old"))

	mb := NewMultiBatch(inner)
	mb.Put(v3, []byte("key"), []byte("new"))
	mb.Delete(v2, []byte("key"))

	if ok, _ := v3.Has([]byte("key")); ok {
		t.Fatal("v3 write visible before Commit")
	}
	if err := mb.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := v2.Has([]byte("key")); ok {
		t.Error("v2 key should be gone")
	}
	if got, _ := v3.Get([]byte("key")); string(got) != "new" {
		t.Errorf("v3.Get = %q, want %q", got, "new")
	}
}
