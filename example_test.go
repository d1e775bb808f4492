package manifest_test

import (
	"fmt"

	"github.com/TheBitDrifter/manifest"
)

// Example shows basic manifest usage: populating a storage with facts and
// evaluating a rule with variables.
func Example_basic() {
	storage := manifest.Factory.NewStorage()

	// Predicates and objects are plain entities
	likes, _ := storage.NewEntity()
	alice, _ := storage.NewEntity()
	bob, _ := storage.NewEntity()
	carol, _ := storage.NewEntity()

	// Facts
	storage.Add(alice, manifest.Pair(likes, bob))
	storage.Add(bob, manifest.Pair(likes, alice))
	storage.Add(carol, manifest.Pair(likes, alice))

	// Who likes someone who likes them back?
	rule, _ := manifest.Factory.NewRule(storage,
		manifest.Relation(manifest.E(likes), manifest.V("."), manifest.V("_X")),
		manifest.Relation(manifest.E(likes), manifest.V("_X"), manifest.V(".")),
	)

	matches := 0
	it := rule.Iter()
	for it.Next() {
		matches += len(it.Entities())
	}
	fmt.Printf("mutual pairs: %d\n", matches)

	// Output: mutual pairs: 2
}

// Example_transitive shows transitive traversal through the builtin IsA
// relation.
func Example_transitive() {
	storage := manifest.Factory.NewStorage()

	vehicle, _ := storage.NewEntity()
	car, _ := storage.NewEntity()
	sportsCar, _ := storage.NewEntity()

	storage.Add(car, manifest.Pair(manifest.IsA, vehicle))
	storage.Add(sportsCar, manifest.Pair(manifest.IsA, car))

	// Everything that is a vehicle, including the root itself
	rule, _ := manifest.Factory.NewRule(storage,
		manifest.Relation(manifest.E(manifest.IsA), manifest.V("."), manifest.E(vehicle)),
	)

	count := 0
	it := rule.Iter()
	for it.Next() {
		count += len(it.Entities())
	}
	fmt.Printf("vehicles: %d\n", count)

	// Output: vehicles: 3
}
