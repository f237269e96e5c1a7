package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// dbFactories lists the DB implementations under test.
func dbFactories(t *testing.T) map[string]func() DB {
	t.Helper()
	return map[string]func() DB{
		"memory": func() DB { return NewMemory() },
		"badger": func() DB {
			db, err := NewBadger(t.TempDir())
			if err != nil {
				t.Fatalf("NewBadger: %v", err)
			}
			return db
		},
	}
}

func TestDBPutGetDelete(t *testing.T) {
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			key := []byte("k1")
			if err := db.Put(key, []byte("v1")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			v, err := db.Get(key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(v) != "v1" {
				t.Errorf("Get = %q, want v1", v)
			}

			ok, err := db.Has(key)
			if err != nil || !ok {
				t.Errorf("Has = %v, %v; want true, nil", ok, err)
			}

			if err := db.Delete(key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := db.Get(key); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("Get after delete: %v, want ErrKeyNotFound", err)
			}
		})
	}
}

func TestDBEmptyValueRoundTrip(t *testing.T) {
	// Index entries store all their information in the key and write an
	// empty value; an empty value must survive commit and must not be
	// confused with a delete.
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			err := db.Update(func(txn Txn) error {
				return txn.Put([]byte("idx/1"), []byte{})
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}

			ok, err := db.Has([]byte("idx/1"))
			if err != nil || !ok {
				t.Fatalf("Has after empty Put = %v, %v; want true, nil", ok, err)
			}
			v, err := db.Get([]byte("idx/1"))
			if err != nil {
				t.Fatalf("Get after empty Put: %v", err)
			}
			if len(v) != 0 {
				t.Errorf("value = %q, want empty", v)
			}

			var seen int
			if err := db.ForEach([]byte("idx/"), func(_, _ []byte) error {
				seen++
				return nil
			}); err != nil {
				t.Fatalf("ForEach: %v", err)
			}
			if seen != 1 {
				t.Errorf("ForEach saw %d keys, want 1", seen)
			}

			if err := db.Delete([]byte("idx/1")); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if ok, _ := db.Has([]byte("idx/1")); ok {
				t.Error("key still present after delete")
			}
		})
	}
}

func TestDBForEachPrefix(t *testing.T) {
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			db.Put([]byte("a/1"), []byte("x"))
			db.Put([]byte("a/2"), []byte("y"))
			db.Put([]byte("b/1"), []byte("z"))

			var seen int
			err := db.ForEach([]byte("a/"), func(key, value []byte) error {
				seen++
				return nil
			})
			if err != nil {
				t.Fatalf("ForEach: %v", err)
			}
			if seen != 2 {
				t.Errorf("seen = %d, want 2", seen)
			}
		})
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			db.Put([]byte("keep"), []byte("old"))

			failErr := errors.New("boom")
			err := db.Update(func(txn Txn) error {
				if err := txn.Put([]byte("keep"), []byte("new")); err != nil {
					return err
				}
				if err := txn.Put([]byte("extra"), []byte("1")); err != nil {
					return err
				}
				return failErr
			})
			if !errors.Is(err, failErr) {
				t.Fatalf("Update err = %v, want boom", err)
			}

			v, err := db.Get([]byte("keep"))
			if err != nil || string(v) != "old" {
				t.Errorf("keep = %q, %v; want old", v, err)
			}
			if _, err := db.Get([]byte("extra")); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("extra should not exist, got err %v", err)
			}
		})
	}
}

func TestUpdateSeesOwnWrites(t *testing.T) {
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			err := db.Update(func(txn Txn) error {
				if err := txn.Put([]byte("p/1"), []byte("v")); err != nil {
					return err
				}
				v, err := txn.Get([]byte("p/1"))
				if err != nil {
					return fmt.Errorf("read own write: %w", err)
				}
				if string(v) != "v" {
					return fmt.Errorf("read own write = %q", v)
				}
				var count int
				if err := txn.ForEach([]byte("p/"), func(_, _ []byte) error {
					count++
					return nil
				}); err != nil {
					return err
				}
				if count != 1 {
					return fmt.Errorf("ForEach saw %d pending keys, want 1", count)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	for name, factory := range dbFactories(t) {
		t.Run(name, func(t *testing.T) {
			db := factory()
			defer db.Close()

			// Each goroutine claims a distinct slot key if still free.
			// With 2 slots and 8 claimants, exactly 2 must win.
			const claimants = 8
			var wins int
			var mu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < claimants; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					err := db.Update(func(txn Txn) error {
						for _, slot := range []string{"slot/0", "slot/1"} {
							ok, err := txn.Has([]byte(slot))
							if err != nil {
								return err
							}
							if !ok {
								return txn.Put([]byte(slot), []byte{byte(n)})
							}
						}
						return errors.New("full")
					})
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			if wins != 2 {
				t.Errorf("wins = %d, want 2", wins)
			}
		})
	}
}
