package manifest

import "testing"

// TestArchetypeCreation tests the creation and reuse of archetypes
func TestArchetypeCreation(t *testing.T) {
	sto := Factory.NewStorage()

	compA, _ := sto.NewEntity()
	compB, _ := sto.NewEntity()

	tests := []struct {
		name      string
		first     []Entity
		second    []Entity
		sameTable bool
	}{
		{"Same components share a table", []Entity{compA, compB}, []Entity{compA, compB}, true},
		{"Order does not matter", []Entity{compA, compB}, []Entity{compB, compA}, true},
		{"Different components split", []Entity{compA}, []Entity{compA, compB}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e1, err := sto.NewEntity(tt.first...)
			if err != nil {
				t.Fatalf("NewEntity() error = %v", err)
			}
			e2, err := sto.NewEntity(tt.second...)
			if err != nil {
				t.Fatalf("NewEntity() error = %v", err)
			}
			t1, _, ok1 := sto.EntityRecord(e1)
			t2, _, ok2 := sto.EntityRecord(e2)
			if !ok1 || !ok2 {
				t.Fatalf("missing entity records")
			}
			if (t1 == t2) != tt.sameTable {
				t.Errorf("tables shared = %v, want %v", t1 == t2, tt.sameTable)
			}
		})
	}
}

func TestComponentAddRemove(t *testing.T) {
	sto := Factory.NewStorage()

	compA, _ := sto.NewEntity()
	compB, _ := sto.NewEntity()

	e, err := sto.NewEntity(compA)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}

	if err := sto.Add(e, compB); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	table, _, _ := sto.EntityRecord(e)
	if !table.Contains(compA) || !table.Contains(compB) {
		t.Errorf("entity table missing components after add: %v", table.Type())
	}

	// Adding twice is an error
	if err := sto.Add(e, compB); err == nil {
		t.Errorf("expected error adding duplicate component")
	}

	if err := sto.Remove(e, compA); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	table, _, _ = sto.EntityRecord(e)
	if table.Contains(compA) {
		t.Errorf("component still present after remove")
	}
	if !table.Contains(compB) {
		t.Errorf("unrelated component lost by remove")
	}

	if err := sto.Remove(e, compA); err == nil {
		t.Errorf("expected error removing absent component")
	}
}

func TestDestroyAndLiveness(t *testing.T) {
	sto := Factory.NewStorage()
	comp, _ := sto.NewEntity()

	entities, err := sto.NewEntities(3, comp)
	if err != nil {
		t.Fatalf("NewEntities() error = %v", err)
	}
	first, last := entities[0], entities[2]

	if err := sto.Destroy(first); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if sto.IsAlive(first) {
		t.Errorf("destroyed entity still alive")
	}
	if sto.GetAlive(first.Lo()) != 0 {
		t.Errorf("GetAlive resolves destroyed entity")
	}

	// The swap-removed survivor keeps a valid record
	table, row, ok := sto.EntityRecord(last)
	if !ok {
		t.Fatalf("survivor lost its record")
	}
	if table.Entities()[row] != last {
		t.Errorf("survivor record points at the wrong row")
	}
	if table.Count() != 2 {
		t.Errorf("table count = %d after destroy, want 2", table.Count())
	}

	if err := sto.Destroy(first); err == nil {
		t.Errorf("expected error destroying a dead entity")
	}
}

func TestIDIndexWildcards(t *testing.T) {
	sto := Factory.NewStorage()

	pred, _ := sto.NewEntity()
	objA, _ := sto.NewEntity()
	objB, _ := sto.NewEntity()

	e1, _ := sto.NewEntity(Pair(pred, objA))
	e2, _ := sto.NewEntity(Pair(pred, objB))

	t1, _, _ := sto.EntityRecord(e1)
	t2, _, _ := sto.EntityRecord(e2)

	tests := []struct {
		name string
		id   Entity
		want []Table
	}{
		{"exact pair", Pair(pred, objA), []Table{t1}},
		{"pred wildcard", Pair(pred, Wildcard), []Table{t1, t2}},
		{"obj wildcard", Pair(Wildcard, objA), []Table{t1}},
		{"full wildcard pair", Pair(Wildcard, Wildcard), []Table{t1, t2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := sto.Tables(tt.id)
			var got []Table
			for _, tr := range records {
				if tr.Table.Count() > 0 {
					got = append(got, tr.Table)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tables, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("table %d mismatch", i)
				}
			}
		})
	}
}

func TestPredicateAttributes(t *testing.T) {
	sto := Factory.NewStorage()

	locatedIn, _ := sto.NewEntity()
	if sto.HasAttribute(locatedIn, Transitive) {
		t.Errorf("fresh predicate reports Transitive")
	}
	if err := sto.Add(locatedIn, Transitive); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !sto.HasAttribute(locatedIn, Transitive) {
		t.Errorf("predicate missing Transitive after add")
	}

	// IsA ships transitive, inclusive and final
	for _, attr := range []Entity{Transitive, TransitiveSelf, Final} {
		if !sto.HasAttribute(IsA, attr) {
			t.Errorf("IsA missing builtin attribute %d", uint64(attr))
		}
	}
}

func TestLockedStorage(t *testing.T) {
	sto := Factory.NewStorage()
	comp, _ := sto.NewEntity()
	e, _ := sto.NewEntity(comp)

	sto.Lock()

	if _, err := sto.NewEntity(comp); err == nil {
		t.Errorf("expected LockedStorageError from NewEntity")
	}
	if err := sto.Add(e, Transitive); err == nil {
		t.Errorf("expected LockedStorageError from Add")
	}
	if err := sto.Destroy(e); err == nil {
		t.Errorf("expected LockedStorageError from Destroy")
	}

	sto.Unlock()
	if _, err := sto.NewEntity(comp); err != nil {
		t.Errorf("NewEntity() after unlock error = %v", err)
	}
}

func TestOperationQueue(t *testing.T) {
	sto := Factory.NewStorage()
	compA, _ := sto.NewEntity()
	compB, _ := sto.NewEntity()
	e, _ := sto.NewEntity(compA)

	sto.Lock()

	if err := sto.EnqueueAdd(e, compB); err != nil {
		t.Fatalf("EnqueueAdd() error = %v", err)
	}
	if err := sto.EnqueueNewEntities(2, compA); err != nil {
		t.Fatalf("EnqueueNewEntities() error = %v", err)
	}

	// Nothing applied while locked
	table, _, _ := sto.EntityRecord(e)
	if table.Contains(compB) {
		t.Errorf("queued add applied while locked")
	}

	sto.Unlock()

	table, _, _ = sto.EntityRecord(e)
	if !table.Contains(compB) {
		t.Errorf("queued add not applied on unlock")
	}
	if got := len(sto.Tables(compA)); got == 0 {
		t.Fatalf("no tables registered for component")
	}
}

func TestOperationQueueDestroyWins(t *testing.T) {
	sto := Factory.NewStorage()
	compA, _ := sto.NewEntity()
	compB, _ := sto.NewEntity()
	e, _ := sto.NewEntity(compA)

	sto.Lock()
	if err := sto.EnqueueAdd(e, compB); err != nil {
		t.Fatalf("EnqueueAdd() error = %v", err)
	}
	if err := sto.EnqueueDestroy(e); err != nil {
		t.Fatalf("EnqueueDestroy() error = %v", err)
	}
	// Component ops after a queued destroy are dropped
	if err := sto.EnqueueAdd(e, compB); err != nil {
		t.Fatalf("EnqueueAdd() error = %v", err)
	}
	sto.Unlock()

	if sto.IsAlive(e) {
		t.Errorf("entity alive after queued destroy")
	}
}
