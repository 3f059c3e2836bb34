package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	alice := NewPrefixDB(inner, []byte("alice/"))
	bob := NewPrefixDB(inner, []byte("bob/"))

	if err := alice.Put([]byte("k"), []byte("alice-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := bob.Put([]byte("k"), []byte("bob-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := alice.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("alice-value")) {
		t.Errorf("Get = %q, want alice-value", got)
	}

	// Deleting in one namespace leaves the other untouched.
	if err := alice.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := alice.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
	if ok, _ := bob.Has([]byte("k")); !ok {
		t.Error("delete crossed namespaces")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("w/"))

	for _, k := range []string{"u/1", "u/2", "r/1"} {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	// Noise outside the namespace must stay invisible.
	if err := inner.Put([]byte("other/u/9"), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var keys []string
	err := db.ForEach([]byte("u/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "u/1" || keys[1] != "u/2" {
		t.Errorf("ForEach keys = %v, want [u/1 u/2]", keys)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	doomed := NewPrefixDB(inner, []byte("doomed/"))
	kept := NewPrefixDB(inner, []byte("kept/"))

	for _, db := range []*PrefixDB{doomed, kept} {
		for _, k := range []string{"a", "b", "c"} {
			if err := db.Put([]byte(k), []byte("v")); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
	}

	if err := doomed.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	count := 0
	if err := doomed.ForEach(nil, func(_, _ []byte) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if count != 0 {
		t.Errorf("%d keys survived DeleteAll", count)
	}
	if ok, _ := kept.Has([]byte("a")); !ok {
		t.Error("DeleteAll crossed namespaces")
	}
}

func TestPrefixDB_BatchPrependsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("w/"))

	batch := NewBatch(db)
	if err := batch.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("batch Put: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := db.Get([]byte("k")); err != nil {
		t.Errorf("Get via prefix: %v", err)
	}
	if _, err := inner.Get([]byte("w/k")); err != nil {
		t.Errorf("Get via inner: %v", err)
	}
}
