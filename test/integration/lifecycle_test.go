package integration

import (
	"context"
	"testing"

	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/fdw"
	"github.com/quarrydb/quarry/pkg/types"
)

func TestDescribeCachePersistsAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	store := ordersStore(t)

	first := newEnvAt(t, dir, store)
	first.open(t, "orders")
	if got := store.CallCount("DescribeTable"); got != 1 {
		t.Fatalf("DescribeTable calls = %d, want 1", got)
	}
	if err := first.engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh engine over the same data dir serves the layout from the
	// description cache without touching the remote store.
	second := newEnvAt(t, dir, store)
	second.open(t, "orders")
	if got := store.CallCount("DescribeTable"); got != 1 {
		t.Fatalf("DescribeTable calls after reopen = %d, want still 1", got)
	}
}

func TestImportedDefinitionsServeReads(t *testing.T) {
	store := ordersStore(t)
	err := store.CreateTable(remote.TableDescription{
		Schema:         types.KeySchema{TableName: "customers", PartitionAttr: "id"},
		AttributeKinds: map[string]types.Kind{"id": types.KindString},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	err = store.Seed("customers",
		types.Item{"id": types.String("c1"), "name": types.String("Ada")},
		types.Item{"id": types.String("c2"), "name": types.String("Grace")},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := newEnvAt(t, t.TempDir(), store)

	defs, err := e.engine.ImportSchema(context.Background(), fdw.ImportOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}

	// Every imported definition opens and reads all of its table.
	for _, def := range defs {
		tbl := e.open(t, def.Name)
		rows, err := tbl.Read(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("read %s: %v", def.Name, err)
		}
		got := drain(t, rows)
		if want := len(e.store.Items(def.Name)); len(got) != want {
			t.Fatalf("table %s: rows = %d, want %d", def.Name, len(got), want)
		}
	}
}
