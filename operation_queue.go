package manifest

import (
	"fmt"
)

type operation struct {
	typ      operationType
	amount   int
	ids      []Entity
	entities []Entity
}

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
)

type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[Entity]struct{}
	pendingMods    map[Entity]int
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[Entity]struct{}),
		pendingMods:    make(map[Entity]int),
	}
}

func (sto *storage) EnqueueNewEntities(n int, ids ...Entity) error {
	if !sto.locked {
		_, err := sto.NewEntities(n, ids...)
		if err != nil {
			return fmt.Errorf("failed to create entities directly: %w", err)
		}
		return nil
	}
	sto.opQueue.createOps = append(sto.opQueue.createOps, operation{
		typ:    opCreate,
		amount: n,
		ids:    ids,
	})
	return nil
}

func (sto *storage) EnqueueAdd(e Entity, id Entity) error {
	if !sto.locked {
		return sto.Add(e, id)
	}
	sto.opQueue.enqueueComponentOp(opAddComponent, e, id)
	return nil
}

func (sto *storage) EnqueueRemove(e Entity, id Entity) error {
	if !sto.locked {
		return sto.Remove(e, id)
	}
	sto.opQueue.enqueueComponentOp(opRemoveComponent, e, id)
	return nil
}

func (sto *storage) EnqueueDestroy(entities ...Entity) error {
	if !sto.locked {
		return sto.Destroy(entities...)
	}
	sto.opQueue.enqueueDestroy(entities)
	return nil
}

func (sto *storage) processOperationQueue() error {
	q := &sto.opQueue
	if len(q.createOps) == 0 &&
		len(q.componentOps) == 0 &&
		len(q.destroyOps) == 0 {
		return nil
	}

	// Process creates first
	for _, op := range q.createOps {
		if _, err := sto.NewEntities(op.amount, op.ids...); err != nil {
			return fmt.Errorf("failed to process queued entity creation: %w", err)
		}
	}

	// Process component modifications
	for _, op := range q.componentOps {
		if op.typ != opAddComponent && op.typ != opRemoveComponent {
			continue
		}
		e := op.entities[0]
		if !sto.IsAlive(e) {
			continue
		}
		switch op.typ {
		case opAddComponent:
			if err := sto.Add(e, op.ids[0]); err != nil {
				return fmt.Errorf("failed to add queued component: %w", err)
			}
		case opRemoveComponent:
			if err := sto.Remove(e, op.ids[0]); err != nil {
				return fmt.Errorf("failed to remove queued component: %w", err)
			}
		}
	}

	// Process destroys last
	for _, op := range q.destroyOps {
		var entities []Entity
		for _, e := range op.entities {
			if sto.IsAlive(e) {
				entities = append(entities, e)
			}
		}
		if len(entities) > 0 {
			if err := sto.Destroy(entities...); err != nil {
				return fmt.Errorf("failed to destroy queued entities: %w", err)
			}
		}
	}

	// Clear all queues
	q.createOps = q.createOps[:0]
	q.componentOps = q.componentOps[:0]
	q.destroyOps = q.destroyOps[:0]
	clear(q.pendingDestroy)
	clear(q.pendingMods)
	return nil
}

func (q *opQueue) enqueueDestroy(entities []Entity) {
	// Filter out already queued entities
	var newEntities []Entity
	for _, e := range entities {
		if _, exists := q.pendingDestroy[e]; exists {
			continue
		}
		newEntities = append(newEntities, e)
		q.pendingDestroy[e] = struct{}{}

		// Drop any pending component operations for this entity
		if idx, hasMods := q.pendingMods[e]; hasMods {
			q.componentOps[idx].typ = -1
			delete(q.pendingMods, e)
		}
	}

	if len(newEntities) > 0 {
		q.destroyOps = append(q.destroyOps, operation{
			typ:      opDestroy,
			entities: newEntities,
		})
	}
}

func (q *opQueue) enqueueComponentOp(typ operationType, e Entity, id Entity) {
	// If entity is pending destroy, ignore component operations
	if _, isDestroyed := q.pendingDestroy[e]; isDestroyed {
		return
	}

	// If entity already has a pending component operation, update it
	if existingIdx, exists := q.pendingMods[e]; exists {
		existingOp := &q.componentOps[existingIdx]
		existingOp.ids = []Entity{id}
		existingOp.typ = typ
		return
	}

	q.pendingMods[e] = len(q.componentOps)
	q.componentOps = append(q.componentOps, operation{
		typ:      typ,
		entities: []Entity{e},
		ids:      []Entity{id},
	})
}
