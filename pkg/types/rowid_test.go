package types

import "testing"

func TestRowIDCanonicalForm(t *testing.T) {
	schema := KeySchema{TableName: "t", PartitionAttr: "zone", SortAttr: "asset"}
	sort := String("a1")
	id, err := RowID(Key{Partition: String("z9"), Sort: &sort}, schema)
	if err != nil {
		t.Fatalf("RowID failed: %v", err)
	}
	// Attributes appear in sorted order regardless of key role.
	want := `{"asset":"a1","zone":"z9"}`
	if id != want {
		t.Errorf("id = %s, want %s", id, want)
	}
}

func TestRowIDRoundTrip(t *testing.T) {
	schema := KeySchema{TableName: "t", PartitionAttr: "pk", SortAttr: "sk"}
	sort := Number("42")
	key := Key{Partition: String("k1"), Sort: &sort}

	id, err := RowID(key, schema)
	if err != nil {
		t.Fatalf("RowID failed: %v", err)
	}
	parsed, err := ParseRowID(id, schema)
	if err != nil {
		t.Fatalf("ParseRowID failed: %v", err)
	}
	if !parsed.Equal(key) {
		t.Errorf("round trip changed the key: %+v vs %+v", parsed, key)
	}
	if parsed.Sort.Kind() != KindNumber || parsed.Sort.Text() != "42" {
		t.Errorf("sort value lost its numeric text: %s", parsed.Sort)
	}
}

func TestRowIDWithoutSortKey(t *testing.T) {
	schema := KeySchema{TableName: "t", PartitionAttr: "pk"}
	id, err := RowID(Key{Partition: String("only")}, schema)
	if err != nil {
		t.Fatalf("RowID failed: %v", err)
	}
	if id != `{"pk":"only"}` {
		t.Errorf("id = %s", id)
	}
	key, err := ParseRowID(id, schema)
	if err != nil {
		t.Fatalf("ParseRowID failed: %v", err)
	}
	if key.Sort != nil {
		t.Error("sortless table must parse with nil sort")
	}
}

func TestRowIDMissingSortValue(t *testing.T) {
	schema := KeySchema{TableName: "t", PartitionAttr: "pk", SortAttr: "sk"}
	if _, err := RowID(Key{Partition: String("k")}, schema); err == nil {
		t.Error("expected error when sort value is missing")
	}
}

func TestParseRowIDErrors(t *testing.T) {
	schema := KeySchema{TableName: "t", PartitionAttr: "pk", SortAttr: "sk"}
	if _, err := ParseRowID(`not json`, schema); err == nil {
		t.Error("expected error for malformed identifier")
	}
	if _, err := ParseRowID(`{"sk":"x"}`, schema); err == nil {
		t.Error("expected error for missing partition attribute")
	}
	if _, err := ParseRowID(`{"pk":"x"}`, schema); err == nil {
		t.Error("expected error for missing sort attribute")
	}
}
