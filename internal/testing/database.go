package testing

import (
	"context"
	"testing"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store/sqlstore"
)

// CreateTestDB creates an in-memory SQLite test database with the
// bookkeeping migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.OpenWithMigrations(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// CreateFileStore creates a SQLite store at path carrying sch, for tests
// that hand DSNs to code which opens its own connections.
func CreateFileStore(t *testing.T, path string, sch *schema.Schema) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenWithMigrations(path, nil)
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", path, err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	if err := schema.Save(ctx, database, sch); err != nil {
		t.Fatalf("Failed to save schema: %v", err)
	}
	s := sqlstore.New(database, sch, nil, sqlstore.Options{})
	if err := s.EnsureTables(ctx); err != nil {
		t.Fatalf("Failed to create instance tables: %v", err)
	}
	return s
}

// CreateTestStore creates an in-memory store carrying sch, with its schema
// persisted and instance tables created.
func CreateTestStore(t *testing.T, sch *schema.Schema) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()

	database := CreateTestDB(t)
	if err := schema.Save(ctx, database, sch); err != nil {
		t.Fatalf("Failed to save schema: %v", err)
	}
	s := sqlstore.New(database, sch, nil, sqlstore.Options{})
	if err := s.EnsureTables(ctx); err != nil {
		t.Fatalf("Failed to create instance tables: %v", err)
	}
	return s
}

// Seed writes instances into a store regardless of reference order: rows
// are created with scalar attributes first and references are filled in
// afterwards. Every instance must carry a positive key.
func Seed(t *testing.T, s *sqlstore.Store, insts ...*instance.Instance) {
	t.Helper()
	ctx := context.Background()
	sch := s.Schema()

	for _, inst := range insts {
		values := make(map[string][]instance.Value)
		for _, name := range inst.Attributes() {
			if a, ok := sch.Attribute(inst.Class(), name); ok && !a.IsInstance() {
				values[name] = inst.Values(name)
			}
		}
		if _, err := s.StoreInstance(ctx, inst.Key(), inst.Class(), values); err != nil {
			t.Fatalf("Failed to seed %s: %v", inst, err)
		}
	}
	for _, inst := range insts {
		for _, name := range inst.Attributes() {
			a, ok := sch.Attribute(inst.Class(), name)
			if !ok || !a.IsInstance() || len(inst.Values(name)) == 0 {
				continue
			}
			if err := s.UpdateInstanceAttribute(ctx, inst.Key(), inst.Class(), name, inst.Values(name)); err != nil {
				t.Fatalf("Failed to seed %s.%s: %v", inst, name, err)
			}
		}
	}
}
