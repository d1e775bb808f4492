/*
Package manifest provides a declarative rule engine over an archetype-based
Entity-Component-System store.

A rule (terminology borrowed from prolog) is a list of terms that constrain
which entities match. Terms go beyond plain component conjunctions: they can
relate a subject to an object through a pair, join terms through named
variables that are resolved at evaluation time, and automatically traverse
transitive relationships such as the builtin IsA.

Rules are compiled into a small instruction program that a backtracking
virtual machine evaluates lazily, one result per call to Next.

Core Concepts:

  - Entity: a 64-bit opaque handle that identifies an object or a component.
  - Pair: a relation instance, addressed as a single component id.
  - Table: a group of entities sharing the same ordered component-id vector.
  - Term: one constraint of a rule; positions hold entities or variables.
  - Rule: a compiled, immutable query program.

Basic Usage:

	storage := manifest.Factory.NewStorage()

	position, _ := storage.NewEntity()
	velocity, _ := storage.NewEntity()
	storage.NewEntities(100, position, velocity)

	// Find every entity that has both components
	rule, _ := manifest.Factory.NewRule(storage,
		manifest.Component(manifest.E(position), manifest.V(".")),
		manifest.Component(manifest.E(velocity), manifest.V(".")),
	)

	it := rule.Iter()
	for it.Next() {
		for _, e := range it.Entities() {
			_ = e
		}
	}

Variables join terms. The query "who likes someone who likes them back" is
expressed with the implicit subject and a named variable:

	rule, _ := manifest.Factory.NewRule(storage,
		manifest.Relation(manifest.E(likes), manifest.V("."), manifest.V("_X")),
		manifest.Relation(manifest.E(likes), manifest.V("_X"), manifest.V(".")),
	)

Manifest is the query layer of the Bappa Framework but also works as a
standalone library.
*/
package manifest
