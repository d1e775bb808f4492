package manifest

// Iterator evaluates a rule. It owns the register frames, column arrays and
// operation contexts; creating one does not mutate the rule, so a rule can
// back any number of iterators.
//
// An iterator holds the storage lock from creation until it is exhausted or
// explicitly Reset, which keeps the store structurally stable while results
// are being produced.
type Iterator struct {
	rule *Rule

	registers []reg
	columns   []int
	ctx       []opCtx

	vars        []Entity
	ids         []Entity
	subjects    []Entity
	termColumns []int

	table  Table
	offset int
	count  int

	op       int
	redo     bool
	started  bool
	released bool
}

// Iter returns a fresh iterator over the rule's results.
func (r *Rule) Iter() *Iterator {
	opCount := len(r.ops)
	varCount := len(r.vars)
	termCount := len(r.terms)

	it := &Iterator{
		rule:        r,
		registers:   make([]reg, opCount*varCount),
		columns:     make([]int, opCount*termCount),
		ctx:         make([]opCtx, opCount),
		vars:        make([]Entity, varCount),
		ids:         make([]Entity, termCount),
		subjects:    make([]Entity, termCount),
		termColumns: make([]int, termCount),
	}
	for i := range it.columns {
		it.columns[i] = -1
	}

	// Frame zero starts with wildcards for entity variables and empty
	// bindings for table variables.
	regs := it.frameRegs(0)
	for i := range r.vars {
		if r.vars[i].kind == varKindEntity {
			regs[i].entity = Wildcard
		}
	}

	r.store.Lock()
	return it
}

func (it *Iterator) release() {
	if !it.released {
		it.released = true
		it.rule.store.Unlock()
	}
	it.op = -1
}

// Reset tears the iterator down and releases the storage lock. After Reset
// the iterator produces no further results.
func (it *Iterator) Reset() {
	it.release()
}

// SetVar binds an entity variable before iteration starts, narrowing the
// result set to matches where the variable holds the given entity.
func (it *Iterator) SetVar(id int, e Entity) error {
	if it.started {
		return IteratorStartedError{}
	}
	if !it.rule.store.IsValid(e) {
		return DeadEntityError{Entity: e}
	}
	regSetEntity(it.rule, it.frameRegs(0), id, e)
	return nil
}

// Var returns the value of an entity variable for the current result, or 0
// for table variables.
func (it *Iterator) Var(id int) Entity {
	r := it.rule
	if r.vars[id].kind != varKindEntity {
		return 0
	}
	regs := it.frameRegs(r.frameCount - 1)
	return entityRegGet(r, regs, id)
}

// Vars returns the snapshot of all variable values for the current result;
// table variables read as 0.
func (it *Iterator) Vars() []Entity {
	return it.vars
}

// Table returns the table of the current result, or nil when the rule has
// no "." (This) subject variable. Results of rules whose subjects are only
// other named variables carry no table.
func (it *Iterator) Table() Table {
	return it.table
}

// Range returns the [offset, offset+count) row window of the current
// result within its table.
func (it *Iterator) Range() (offset, count int) {
	return it.offset, it.count
}

// Entities returns the entities matched by the current result.
func (it *Iterator) Entities() []Entity {
	if it.table == nil {
		return nil
	}
	return it.table.Entities()[it.offset : it.offset+it.count]
}

// ResolvedID returns the id matched for a term, with wildcards replaced by
// the concrete values found.
func (it *Iterator) ResolvedID(term int) Entity {
	return it.ids[term]
}

// Subject returns the subject entity matched for a term; 0 when the
// subject is the yielded table itself.
func (it *Iterator) Subject(term int) Entity {
	return it.subjects[term]
}

// Column returns the table column at which a term matched, or -1.
func (it *Iterator) Column(term int) int {
	return it.termColumns[term]
}
