package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rhuss/ribamar/pkg/storage"
)

func makeAccount(credIDs ...string) storage.Document {
	creds := make([]any, 0, len(credIDs))
	for _, id := range credIDs {
		creds = append(creds, map[string]any{"id": id, "hash": "h-" + id})
	}
	return storage.Document{
		"creation":    int64(1000),
		"credentials": creds,
		"data":        map[string]any{"name": "Alice", "city": "Recife"},
	}
}

func TestInsertAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	id, err := s.Insert(ctx, "Account", makeAccount("alice"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Fatal("Insert returned empty id")
	}

	got, err := s.Get(ctx, "Account", storage.IDKey, id)
	if err != nil {
		t.Fatalf("Get by id failed: %v", err)
	}
	if got.ID() != id {
		t.Errorf("ID = %q, want %q", got.ID(), id)
	}
	if got["creation"] != float64(1000) {
		t.Errorf("creation = %v (%T), want normalized float64", got["creation"], got["creation"])
	}

	byCred, err := s.Get(ctx, "Account", "credentials.id", "alice")
	if err != nil {
		t.Fatalf("Get by nested array key failed: %v", err)
	}
	if byCred.ID() != id {
		t.Errorf("nested lookup id = %q, want %q", byCred.ID(), id)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	_, err := s.Get(context.Background(), "Account", "credentials.id", "nobody")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	id, _ := s.Insert(ctx, "Account", makeAccount("alice"))

	got, _ := s.Get(ctx, "Account", storage.IDKey, id)
	got["data"].(map[string]any)["name"] = "Mallory"

	again, _ := s.Get(ctx, "Account", storage.IDKey, id)
	if name := again["data"].(map[string]any)["name"]; name != "Alice" {
		t.Errorf("stored document was mutated through a returned copy: name = %v", name)
	}
}

func TestInsertConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	if _, err := s.Insert(ctx, "Reset", storage.Document{storage.IDKey: "r1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	_, err := s.Insert(ctx, "Reset", storage.Document{storage.IDKey: "r1"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestFind(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i, exp := range []int64{100, 200, 300} {
		doc := storage.Document{"token": string(rune('a' + i)), "expiry": exp}
		if _, err := s.Insert(ctx, "Reset", doc); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		conds []storage.Condition
		want  []string
	}{
		{"all", nil, []string{"a", "b", "c"}},
		{"lt", []storage.Condition{storage.Lt("expiry", 250)}, []string{"a", "b"}},
		{"gt", []storage.Condition{storage.Gt("expiry", 100)}, []string{"b", "c"}},
		{"eq", []storage.Condition{storage.Eq("token", "b")}, []string{"b"}},
		{"combined", []storage.Condition{storage.Gt("expiry", 100), storage.Lt("expiry", 300)}, []string{"b"}},
		{"type mismatch", []storage.Condition{storage.Lt("expiry", "z")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "Reset", tt.conds...)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			got := []string{}
			for _, d := range docs {
				got = append(got, d["token"].(string))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Find mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindNestedData(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Insert(ctx, "Account", makeAccount("alice"))
	other := makeAccount("bob")
	other["data"] = map[string]any{"name": "Bob", "city": "Natal"}
	s.Insert(ctx, "Account", other)

	docs, err := s.Find(ctx, "Account", storage.Eq("data.city", "Natal"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 || docs[0]["data"].(map[string]any)["name"] != "Bob" {
		t.Errorf("Find(data.city=Natal) = %v, want Bob only", docs)
	}
}

func TestUpdate(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	id, _ := s.Insert(ctx, "Account", makeAccount("alice"))

	err := s.Update(ctx, "Account", "credentials.id", "alice", storage.Document{
		storage.IDKey: "hijack",
		"data":        map[string]any{"name": "Alicia"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Get(ctx, "Account", storage.IDKey, id)
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if name := got["data"].(map[string]any)["name"]; name != "Alicia" {
		t.Errorf("name = %v, want Alicia", name)
	}
	if len(got["credentials"].([]any)) != 1 {
		t.Error("fields outside the update were lost")
	}

	err = s.Update(ctx, "Account", storage.IDKey, "missing", storage.Document{"x": 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Insert(ctx, "Reset", storage.Document{"key": "alice"})
	s.Insert(ctx, "Reset", storage.Document{"key": "alice"})
	s.Insert(ctx, "Reset", storage.Document{"key": "bob"})

	n, err := s.Delete(ctx, "Reset", "key", "alice")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	if ok, _ := s.Exists(ctx, "Reset", "key", "alice"); ok {
		t.Error("Exists(alice) = true after delete")
	}
	if ok, _ := s.Exists(ctx, "Reset", "key", "bob"); !ok {
		t.Error("Exists(bob) = false, want true")
	}

	n, _ = s.Delete(ctx, "Reset", "key", "nobody")
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if _, err := s.Get(ctx, "Account", "$where", "1"); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Get error = %v, want ErrInvalidKey", err)
	}
	if _, err := s.Find(ctx, "Account", storage.Eq("data.$gt", 1)); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Find error = %v, want ErrInvalidKey", err)
	}
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	s.Insert(ctx, "Reset", storage.Document{"token": "a"})
	s.Insert(ctx, "Reset", storage.Document{"token": "b"})
	s.Insert(ctx, "Reset", storage.Document{"token": "c"})

	docs, _ := s.Find(ctx, "Reset")
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if ok, _ := s.Exists(ctx, "Reset", "token", "a"); ok {
		t.Error("oldest document was not evicted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Insert(ctx, "Account", makeAccount("c"))
			if err != nil {
				t.Errorf("Insert failed: %v", err)
				return
			}
			s.Update(ctx, "Account", storage.IDKey, id, storage.Document{"touched": true})
			s.Find(ctx, "Account", storage.Eq("touched", true))
		}()
	}
	wg.Wait()

	docs, _ := s.Find(ctx, "Account")
	if len(docs) != 20 {
		t.Errorf("len = %d, want 20", len(docs))
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}
