package manifest

import (
	"testing"
)

// starWars is the shared test dataset: a small IsA hierarchy with a handful
// of characters and relations between them.
type starWars struct {
	sto Storage

	Thing, CelestialBody, Planet, Moon Entity
	Person, Character, Human, Droid    Entity
	Luke, Leia, R2D2, C3PO             Entity
	Tatooine, Alderaan, Vader, HanSolo Entity
	HomePlanet, Enemy, Likes           Entity
}

func newStarWars(t testing.TB) *starWars {
	t.Helper()
	sto := Factory.NewStorage()
	w := &starWars{sto: sto}

	newEntity := func() Entity {
		e, err := sto.NewEntity()
		if err != nil {
			t.Fatalf("NewEntity() error = %v", err)
		}
		return e
	}
	for _, e := range []*Entity{
		&w.Thing, &w.CelestialBody, &w.Planet, &w.Moon,
		&w.Person, &w.Character, &w.Human, &w.Droid,
		&w.Luke, &w.Leia, &w.R2D2, &w.C3PO,
		&w.Tatooine, &w.Alderaan, &w.Vader, &w.HanSolo,
		&w.HomePlanet, &w.Enemy, &w.Likes,
	} {
		*e = newEntity()
	}

	add := func(e, id Entity) {
		t.Helper()
		if err := sto.Add(e, id); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	add(w.CelestialBody, Pair(IsA, w.Thing))
	add(w.Planet, Pair(IsA, w.CelestialBody))
	add(w.Moon, Pair(IsA, w.CelestialBody))
	add(w.Person, Pair(IsA, w.Thing))
	add(w.Character, Pair(IsA, w.Person))
	add(w.Human, Pair(IsA, w.Character))
	add(w.Droid, Pair(IsA, w.Character))

	add(w.Luke, w.Human)
	add(w.Luke, Pair(IsA, w.Human))
	add(w.Leia, w.Human)
	add(w.Leia, Pair(IsA, w.Human))
	add(w.R2D2, w.Droid)
	add(w.R2D2, Pair(IsA, w.Droid))
	add(w.C3PO, w.Droid)
	add(w.C3PO, Pair(IsA, w.Droid))

	add(w.Luke, Pair(w.HomePlanet, w.Tatooine))
	add(w.Leia, Pair(w.HomePlanet, w.Alderaan))
	add(w.Luke, Pair(w.Enemy, w.Vader))
	add(w.Leia, Pair(w.Likes, w.HanSolo))
	add(w.HanSolo, Pair(w.Likes, w.Leia))

	return w
}

func (w *starWars) mustRule(t testing.TB, terms ...Term) *Rule {
	t.Helper()
	rule, err := Factory.NewRule(w.sto, terms...)
	if err != nil {
		t.Fatalf("NewRule() error = %v", err)
	}
	return rule
}

// collectEntities drains the iterator, flattening each result's row range.
func collectEntities(it *Iterator) []Entity {
	var out []Entity
	for it.Next() {
		out = append(out, it.Entities()...)
	}
	return out
}

func sameEntities(got, want []Entity) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFactMatch(t *testing.T) {
	w := newStarWars(t)

	t.Run("holding fact matches once", func(t *testing.T) {
		rule := w.mustRule(t, Relation(E(w.HomePlanet), E(w.Luke), E(w.Tatooine)))
		it := rule.Iter()
		if !it.Next() {
			t.Fatalf("fact did not match")
		}
		if it.Table() != nil {
			t.Errorf("fact match yielded a table")
		}
		if it.Next() {
			t.Errorf("fact matched more than once")
		}
	})

	t.Run("absent fact does not match", func(t *testing.T) {
		rule := w.mustRule(t, Relation(E(w.HomePlanet), E(w.Luke), E(w.Alderaan)))
		it := rule.Iter()
		if it.Next() {
			t.Fatalf("absent fact matched")
		}
	})
}

func TestFindSubject(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Relation(E(w.HomePlanet), V("."), E(w.Tatooine)))
	got := collectEntities(rule.Iter())
	if !sameEntities(got, []Entity{w.Luke}) {
		t.Errorf("matched %v, want [Luke]", got)
	}
}

func TestJoinTwoTerms(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t,
		Relation(E(w.HomePlanet), V("."), V("_X")),
		Relation(E(w.Enemy), V("."), V("_Y")),
	)
	x := rule.FindVar("_X")
	y := rule.FindVar("_Y")

	it := rule.Iter()
	if !it.Next() {
		t.Fatalf("no match")
	}
	if got := it.Entities(); !sameEntities(got, []Entity{w.Luke}) {
		t.Errorf("this = %v, want [Luke]", got)
	}
	if got := it.Var(x); got != w.Tatooine {
		t.Errorf("_X = %d, want Tatooine", uint64(got))
	}
	if got := it.Var(y); got != w.Vader {
		t.Errorf("_Y = %d, want Vader", uint64(got))
	}
	if it.Next() {
		t.Errorf("unexpected second match")
	}
}

func TestFindTransitive(t *testing.T) {
	w := newStarWars(t)

	// IsA is transitive-self: the root comes first, then the subsets in
	// depth-first order.
	rule := w.mustRule(t, Relation(E(IsA), V("."), E(w.Character)))
	got := collectEntities(rule.Iter())
	want := []Entity{w.Character, w.Human, w.Droid, w.Luke, w.Leia, w.R2D2, w.C3PO}
	if !sameEntities(got, want) {
		t.Errorf("matched %v, want %v", got, want)
	}
}

func TestTransitiveSelfSupersets(t *testing.T) {
	w := newStarWars(t)

	// Walking upwards from a literal subject yields the subject itself
	// before its proper supersets.
	rule := w.mustRule(t, Relation(E(IsA), E(w.Luke), V("_X")))
	x := rule.FindVar("_X")

	var got []Entity
	it := rule.Iter()
	for it.Next() {
		got = append(got, it.Var(x))
	}
	want := []Entity{w.Luke, w.Human, w.Character, w.Person, w.Thing}
	if !sameEntities(got, want) {
		t.Errorf("supersets = %v, want %v", got, want)
	}
}

func TestMutualLikes(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t,
		Relation(E(w.Likes), V("."), V("_X")),
		Relation(E(w.Likes), V("_X"), V(".")),
	)
	x := rule.FindVar("_X")

	got := map[Entity]Entity{}
	it := rule.Iter()
	for it.Next() {
		entities := it.Entities()
		if len(entities) != 1 {
			t.Fatalf("expected single-entity results, got %d", len(entities))
		}
		got[entities[0]] = it.Var(x)
	}

	want := map[Entity]Entity{
		w.Leia:    w.HanSolo,
		w.HanSolo: w.Leia,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for this, other := range want {
		if got[this] != other {
			t.Errorf("this=%d: _X = %d, want %d",
				uint64(this), uint64(got[this]), uint64(other))
		}
	}
}

func TestVariablePredicate(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Relation(V("_X"), V("."), E(w.Tatooine)))
	x := rule.FindVar("_X")

	it := rule.Iter()
	if !it.Next() {
		t.Fatalf("no match")
	}
	if got := it.Entities(); !sameEntities(got, []Entity{w.Luke}) {
		t.Errorf("this = %v, want [Luke]", got)
	}
	if got := it.Var(x); got != w.HomePlanet {
		t.Errorf("_X = %d, want HomePlanet", uint64(got))
	}
	if it.Next() {
		t.Errorf("unexpected second match")
	}
}

func TestNegation(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t,
		Component(E(w.Human), V(".")),
		Relation(E(w.Enemy), V("."), E(w.Vader)).Negated(),
	)
	got := collectEntities(rule.Iter())
	if !sameEntities(got, []Entity{w.Leia}) {
		t.Errorf("matched %v, want [Leia]", got)
	}
}

func TestOptional(t *testing.T) {
	w := newStarWars(t)

	// Rey is human but has no home planet on record.
	rey, err := w.sto.NewEntity(w.Human)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}

	rule := w.mustRule(t,
		Component(E(w.Human), V(".")),
		Relation(E(w.HomePlanet), V("."), V("_P")).Opt(),
	)
	p := rule.FindVar("_P")

	got := map[Entity]Entity{}
	it := rule.Iter()
	for it.Next() {
		for _, e := range it.Entities() {
			got[e] = it.Var(p)
		}
	}

	want := map[Entity]Entity{
		w.Luke: w.Tatooine,
		w.Leia: w.Alderaan,
		rey:    Wildcard,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results %v, want %d", len(got), got, len(want))
	}
	for this, planet := range want {
		if got[this] != planet {
			t.Errorf("this=%d: _P = %d, want %d",
				uint64(this), uint64(got[this]), uint64(planet))
		}
	}
}

func TestDeterminism(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Relation(E(IsA), V("."), E(w.Character)))
	first := collectEntities(rule.Iter())
	second := collectEntities(rule.Iter())
	if !sameEntities(first, second) {
		t.Errorf("results differ across iterations: %v vs %v", first, second)
	}
}

func TestSetVar(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Relation(E(w.HomePlanet), V("."), V("_X")))
	x := rule.FindVar("_X")

	it := rule.Iter()
	if err := it.SetVar(x, w.Tatooine); err != nil {
		t.Fatalf("SetVar() error = %v", err)
	}
	got := collectEntities(it)
	if !sameEntities(got, []Entity{w.Luke}) {
		t.Errorf("matched %v, want [Luke]", got)
	}

	it = rule.Iter()
	defer it.Reset()
	if !it.Next() {
		t.Fatalf("unconstrained iteration yielded nothing")
	}
	if err := it.SetVar(x, w.Tatooine); err == nil {
		t.Errorf("SetVar() after Next succeeded, want error")
	}
}

func TestDeadLiteralSubject(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Relation(E(w.HomePlanet), E(w.Luke), E(w.Tatooine)))
	if err := w.sto.Destroy(w.Luke); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	it := rule.Iter()
	if it.Next() {
		t.Errorf("rule matched through a destroyed subject")
	}
}

func TestIteratorLocksStorage(t *testing.T) {
	w := newStarWars(t)

	rule := w.mustRule(t, Component(E(w.Human), V(".")))

	it := rule.Iter()
	if !w.sto.Locked() {
		t.Errorf("storage not locked by live iterator")
	}
	for it.Next() {
	}
	if w.sto.Locked() {
		t.Errorf("storage still locked after exhaustion")
	}

	it = rule.Iter()
	it.Next()
	it.Reset()
	if w.sto.Locked() {
		t.Errorf("storage still locked after Reset")
	}
	if it.Next() {
		t.Errorf("iterator yielded after Reset")
	}
}

func TestRuleCache(t *testing.T) {
	w := newStarWars(t)

	cache := Factory.NewRuleCache(8)
	rule := w.mustRule(t, Component(E(w.Human), V(".")))
	idx, err := cache.Register("humans", rule)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	found, ok := cache.GetIndex("humans")
	if !ok || found != idx {
		t.Fatalf("GetIndex() = %d, %v", found, ok)
	}
	if got := *cache.GetItem(idx); got != rule {
		t.Errorf("cached rule mismatch")
	}
}

func BenchmarkJoinIter(b *testing.B) {
	w := newStarWars(b)

	rule, err := Factory.NewRule(w.sto,
		Relation(E(w.HomePlanet), V("."), V("_X")),
		Relation(E(w.Enemy), V("."), V("_Y")),
	)
	if err != nil {
		b.Fatalf("NewRule() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := rule.Iter()
		for it.Next() {
		}
	}
}

func BenchmarkTransitiveIter(b *testing.B) {
	w := newStarWars(b)

	rule, err := Factory.NewRule(w.sto, Relation(E(IsA), V("."), E(w.Character)))
	if err != nil {
		b.Fatalf("NewRule() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := rule.Iter()
		for it.Next() {
		}
	}
}
