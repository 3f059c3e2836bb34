package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// backends returns each DB implementation under a common harness.
func backends(t *testing.T) map[string]DB {
	t.Helper()
	badgerDB, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { badgerDB.Close() })
	return map[string]DB{
		"memory": NewMemory(),
		"badger": badgerDB,
	}
}

func TestDB_PutGetDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key, value := []byte("k1"), []byte("v1")
			if err := db.Put(key, value); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := db.Get(key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, value) {
				t.Errorf("Get = %q, want %q", got, value)
			}

			ok, err := db.Has(key)
			if err != nil || !ok {
				t.Errorf("Has = %v, %v, want true", ok, err)
			}

			if err := db.Delete(key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := db.Get(key); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Get after delete: got %v, want ErrKeyNotFound", err)
			}
			ok, err = db.Has(key)
			if err != nil || ok {
				t.Errorf("Has after delete = %v, %v, want false", ok, err)
			}
		})
	}
}

func TestDB_GetMissing(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Get([]byte("ghost")); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("got %v, want ErrKeyNotFound", err)
			}
		})
	}
}

func TestDB_GetReturnsCopy(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Put([]byte("k"), []byte("abc")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := db.Get([]byte("k"))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			got[0] = 'z'
			again, err := db.Get([]byte("k"))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(again, []byte("abc")) {
				t.Error("mutating a returned value corrupted the store")
			}
		})
	}
}

func TestDB_ForEachOrder(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Insert out of order under two prefixes.
			for _, k := range []string{"a/3", "b/1", "a/1", "a/2"} {
				if err := db.Put([]byte(k), []byte(k)); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			var keys []string
			err := db.ForEach([]byte("a/"), func(key, value []byte) error {
				keys = append(keys, string(key))
				return nil
			})
			if err != nil {
				t.Fatalf("ForEach: %v", err)
			}
			want := []string{"a/1", "a/2", "a/3"}
			if len(keys) != len(want) {
				t.Fatalf("ForEach visited %v, want %v", keys, want)
			}
			for i := range want {
				if keys[i] != want[i] {
					t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
				}
			}
		})
	}
}

func TestDB_ForEachStopsOnError(t *testing.T) {
	sentinel := errors.New("stop")
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				if err := db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			visited := 0
			err := db.ForEach([]byte("k"), func(key, value []byte) error {
				visited++
				if visited == 2 {
					return sentinel
				}
				return nil
			})
			if !errors.Is(err, sentinel) {
				t.Errorf("got %v, want sentinel", err)
			}
			if visited != 2 {
				t.Errorf("visited %d keys, want 2", visited)
			}
		})
	}
}

func TestDB_BatchCommit(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Put([]byte("old"), []byte("v")); err != nil {
				t.Fatalf("Put: %v", err)
			}

			batch := NewBatch(db)
			if err := batch.Put([]byte("new"), []byte("v")); err != nil {
				t.Fatalf("batch Put: %v", err)
			}
			if err := batch.Delete([]byte("old")); err != nil {
				t.Fatalf("batch Delete: %v", err)
			}

			// Nothing lands before Commit.
			if ok, _ := db.Has([]byte("new")); ok {
				t.Error("batch write visible before commit")
			}

			if err := batch.Commit(); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if ok, _ := db.Has([]byte("new")); !ok {
				t.Error("batch write missing after commit")
			}
			if ok, _ := db.Has([]byte("old")); ok {
				t.Error("batch delete not applied")
			}
		})
	}
}

func TestBadger_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want v", got)
	}
}
