package manifest

// withCtx is the iteration state shared by Select and With: the table set
// being walked and the cursor into it. The column cursor tracks wildcard
// matches within the current table.
type withCtx struct {
	records    []TableRecord
	tableIndex int
	table      Table
	column     int
}

type eachCtx struct {
	row int
}

type setjmpCtx struct {
	label int
}

// opCtx is the per-instruction, per-iterator state for stateful operations.
type opCtx struct {
	with     withCtx
	subset   subsetCtx
	superset supersetCtx
	each     eachCtx
	setjmp   setjmpCtx
}

// findTables returns the table set for an id, or nil when nothing is
// registered under it.
func findTables(store Store, id Entity) []TableRecord {
	records := store.Tables(id)
	if len(records) == 0 {
		return nil
	}
	return records
}

// findNextSameVar scans forward for a pair whose two halves are equal. Used
// when a filter carries the same register in both positions; a plain
// wildcard match is not sufficient then.
func findNextSameVar(ids []Entity, column int, pattern Entity) int {
	for i := column + 1; i < len(ids); i++ {
		id := ids[i]
		if !id.IsPair() {
			// A plain id has no halves to compare; the scan stops here.
			return -1
		}
		if id.Pred() == id.Obj() {
			return i
		}
	}
	return -1
}

// findNextColumn advances the column cursor within a table's type to the
// next id matching the filter. Matches of a (*, obj) pattern need not be
// adjacent in the sorted id vector, so the scan runs to the end of the type.
func findNextColumn(table Table, column int, filter *ruleFilter) int {
	ids := table.Type()
	if column == -1 {
		first := -1
		for i := range ids {
			if PairMatch(ids[i], filter.mask) {
				first = i
				break
			}
		}
		if first == -1 {
			return -1
		}
		if filter.sameVar {
			return findNextSameVar(ids, first-1, filter.mask)
		}
		return first
	}
	if filter.sameVar {
		return findNextSameVar(ids, column, filter.mask)
	}
	for column++; column < len(ids); column++ {
		if PairMatch(ids[column], filter.mask) {
			return column
		}
	}
	return -1
}

// findNextTable returns the next non-empty table in the set, with the
// column of the first filter occurrence.
func findNextTable(filter *ruleFilter, ctx *withCtx) TableRecord {
	for ctx.tableIndex < len(ctx.records) {
		tr := ctx.records[ctx.tableIndex]
		ctx.tableIndex++
		if tr.Table.Count() == 0 {
			continue
		}
		column := tr.Column
		if filter.sameVar {
			column = findNextSameVar(tr.Table.Type(), column-1, filter.mask)
			if column == -1 {
				continue
			}
		}
		return TableRecord{Table: tr.Table, Column: column}
	}
	return TableRecord{}
}

// evalInput succeeds once; a redo means every other operation has exhausted
// its results, which terminates the program.
func (it *Iterator) evalInput(opIdx int, redo bool) bool {
	return !redo
}

// evalSelect finds and iterates the table set matching the filter. Tables
// are yielded one per redo; wildcard filters additionally advance through
// the matching columns of the current table before moving on.
func (it *Iterator) evalSelect(opIdx int, redo bool) bool {
	r := it.rule
	o := &r.ops[opIdx]
	ctx := &it.ctx[opIdx].with
	regs := it.frameRegs(o.frame)
	out := o.rOut

	filter := it.pairToFilter(opIdx)
	pattern := filter.mask

	if !redo && o.term != -1 {
		it.ids[o.term] = pattern
		it.frameColumns(o.frame)[o.term] = -1
	}

	// The table set is looked up fresh on every first evaluation; variables
	// may have changed since last time.
	if !redo {
		ctx.records = findTables(r.store, pattern)
	}
	if ctx.records == nil {
		return false
	}

	column := -1
	var table Table

	if !redo {
		ctx.tableIndex = 0
		tr := findNextTable(&filter, ctx)
		if tr.Table == nil {
			return false
		}
		table = tr.Table
		column = tr.Column
		ctx.table = table
		ctx.column = column
		if out != regNone {
			tableRegSet(r, regs, out, table)
		}
	} else {
		if filter.wildcard {
			table = ctx.table
			column = findNextColumn(table, ctx.column, &filter)
			ctx.column = column
		}
		if column == -1 {
			tr := findNextTable(&filter, ctx)
			if tr.Table == nil {
				return false
			}
			table = tr.Table
			column = tr.Column
			ctx.table = table
			ctx.column = column
			if out != regNone {
				tableRegSet(r, regs, out, table)
			}
		}
	}

	if filter.wildcard {
		it.reifyVariables(opIdx, &filter, table.Type(), column)
	}
	if !o.filter.obj0 {
		it.setColumn(opIdx, table.Type(), column)
	}
	if o.term != -1 {
		it.frameColumns(o.frame)[o.term] = column
	}
	return true
}

// evalWith applies the filter to a table already bound to a register (or to
// the table of a literal subject).
func (it *Iterator) evalWith(opIdx int, redo bool) bool {
	r := it.rule
	o := &r.ops[opIdx]
	ctx := &it.ctx[opIdx].with
	regs := it.frameRegs(o.frame)
	in := o.rIn

	filter := it.pairToFilter(opIdx)

	// A fully reified filter yields at most once.
	if redo && !filter.wildcard {
		return false
	}

	if !redo && o.term != -1 {
		it.frameColumns(o.frame)[o.term] = -1
	}

	if !redo {
		// A transitive inclusive pair matches reflexively: when subject and
		// object resolve to the same entity the filter holds without the
		// store carrying the fact.
		if o.filter.transitive && o.filter.inclusive {
			var subj Entity
			if in == regNone {
				subj = o.subject
			} else if r.vars[in].kind == varKindEntity {
				subj = entityRegGet(r, regs, in)
			}
			if subj != 0 && subj != Wildcard && !filter.objWildcard {
				if subj.Lo() == filter.mask.Obj() {
					if o.term != -1 {
						it.ids[o.term] = filter.mask
					}
					return true
				}
			}
		}
		ctx.records = findTables(r.store, filter.mask)
	}
	// Without a table set for the filter there can be no matches, not even
	// transitive ones.
	if ctx.records == nil {
		return false
	}

	table := it.regGetTable(o, regs, in)
	if table == nil {
		return false
	}

	var column int
	if !redo {
		column = findNextColumn(table, -1, &filter)
	} else {
		column = findNextColumn(table, ctx.column, &filter)
	}
	if column == -1 {
		return false
	}
	ctx.column = column
	if o.term != -1 {
		it.frameColumns(o.frame)[o.term] = column
	}

	if filter.wildcard {
		it.reifyVariables(opIdx, &filter, table.Type(), column)
	}
	if !o.filter.obj0 {
		it.setColumn(opIdx, table.Type(), column)
	}
	it.setSource(opIdx, regs, in)
	return true
}

// evalEach forwards each entity of a bound table, one per redo. Builtin
// sentinels are skipped so they never leak into variables.
func (it *Iterator) evalEach(opIdx int, redo bool) bool {
	r := it.rule
	o := &r.ops[opIdx]
	ctx := &it.ctx[opIdx].each
	regs := it.frameRegs(o.frame)

	var e Entity
	table := tableRegGet(r, regs, o.rIn)
	if table != nil {
		offset := regs[o.rIn].offset
		count := regs[o.rIn].count
		if count == 0 {
			count = table.Count()
		} else {
			count += offset
		}

		var row int
		if !redo {
			row = offset
		} else {
			row = ctx.row + 1
		}
		if row >= count {
			return false
		}
		entities := table.Entities()
		e = entities[row]
		for e == Wildcard || e == This {
			row++
			if row == count {
				return false
			}
			e = entities[row]
		}
		ctx.row = row
	} else {
		// A table register can hold a bare entity when the entity has no
		// table; forward it once.
		if redo {
			return false
		}
		e = regs[o.rIn].entity
		if e == 0 {
			return false
		}
	}

	if !r.store.IsValid(e) {
		return false
	}
	entityRegSet(r, regs, o.rOut, e)
	return true
}

// evalStore writes an entity into a register, once.
func (it *Iterator) evalStore(opIdx int, redo bool) bool {
	if redo {
		return false
	}
	r := it.rule
	o := &r.ops[opIdx]
	regs := it.frameRegs(o.frame)

	e := it.regGetEntity(o, regs, o.rIn)
	if e == 0 {
		return false
	}
	regSetEntity(r, regs, o.rOut, e)

	if o.term >= 0 {
		filter := it.pairToFilter(opIdx)
		it.ids[o.term] = filter.mask
	}
	return true
}

// evalSetJmp saves the pass label on the first evaluation and the fail
// label on redo; a later Jump reads whichever was stored.
func (it *Iterator) evalSetJmp(opIdx int, redo bool) bool {
	o := &it.rule.ops[opIdx]
	ctx := &it.ctx[opIdx].setjmp
	if !redo {
		ctx.label = o.onPass
		return true
	}
	ctx.label = o.onFail
	return false
}

// evalJump is a passthrough; the dispatcher overrides the program counter
// with the label stashed by the SetJmp the jump points at.
func (it *Iterator) evalJump(opIdx int, redo bool) bool {
	return !redo
}

// evalNot inverts the result of the operation it brackets by flipping the
// redo polarity.
func (it *Iterator) evalNot(opIdx int, redo bool) bool {
	return !redo
}

// evalYield always fails, which walks the program backwards to produce the
// next match.
func (it *Iterator) evalYield(opIdx int, redo bool) bool {
	return false
}

func (it *Iterator) evalOp(opIdx int, redo bool) bool {
	switch it.rule.ops[opIdx].kind {
	case opInput:
		return it.evalInput(opIdx, redo)
	case opSelect:
		return it.evalSelect(opIdx, redo)
	case opWith:
		return it.evalWith(opIdx, redo)
	case opSubSet:
		return it.evalSubSet(opIdx, redo)
	case opSuperSet:
		return it.evalSuperSet(opIdx, redo)
	case opStore:
		return it.evalStore(opIdx, redo)
	case opEach:
		return it.evalEach(opIdx, redo)
	case opSetJmp:
		return it.evalSetJmp(opIdx, redo)
	case opJump:
		return it.evalJump(opIdx, redo)
	case opNot:
		return it.evalNot(opIdx, redo)
	case opYield:
		return it.evalYield(opIdx, redo)
	}
	panic("manifest: unknown operation kind")
}

func isControlFlow(kind opKind) bool {
	return kind == opSetJmp || kind == opJump
}

// pushRegisters copies all registers to the next frame, so that a redo can
// pick up exactly where the operation left off.
func (it *Iterator) pushRegisters(cur, next int) {
	if len(it.rule.vars) == 0 {
		return
	}
	copy(it.frameRegs(next), it.frameRegs(cur))
}

func (it *Iterator) pushColumns(cur, next int) {
	if len(it.rule.terms) == 0 {
		return
	}
	copy(it.frameColumns(next), it.frameColumns(cur))
}

// Next evaluates the program until it reaches Yield and returns whether a
// result was produced. An operation's result decides the control flow: pass
// continues forward, fail steps back, and a backward jump re-enters the
// previous operation with redo set so it yields its next match.
func (it *Iterator) Next() bool {
	if it.op == -1 {
		return false
	}
	rule := it.rule
	redo := it.redo
	lastFrame := -1

	if !it.started {
		it.started = true
		for i := range rule.terms {
			term := &rule.terms[i]
			if !term.Subj.Var {
				it.subjects[i] = term.Subj.Entity
			}
			if term.Oper == OperNot || term.Oper == OperOptional {
				it.ids[i] = term.mask()
			}
		}
	}

	for {
		opIdx := it.op
		o := &rule.ops[opIdx]
		cur := o.frame

		// Entering a deeper frame snapshots the registers, so failing back
		// restores the previous state.
		if !redo && !isControlFlow(o.kind) && cur != 0 && cur != lastFrame {
			it.pushRegisters(cur-1, cur)
			it.pushColumns(cur-1, cur)
		}

		result := it.evalOp(opIdx, redo)
		if result {
			it.op = o.onPass
		} else {
			it.op = o.onFail
		}

		if o.kind == opYield {
			it.populate(o)
			it.redo = true
			return true
		}

		if o.kind == opJump {
			// Label is stored in the setjmp context
			it.op = it.ctx[o.onPass].setjmp.label
		}

		// Jumping backwards is a redo
		redo = it.op <= opIdx

		if !isControlFlow(o.kind) {
			lastFrame = o.frame
		}

		if it.op == -1 {
			it.release()
			return false
		}
	}
}

// populate fills the user-visible snapshot when Yield fires.
func (it *Iterator) populate(op *ruleOp) {
	rule := it.rule
	regs := it.frameRegs(op.frame)

	it.table = nil
	it.offset = 0
	it.count = 0

	if op.rIn != regNone {
		v := &rule.vars[op.rIn]
		if v.kind == varKindTable {
			it.table = regs[op.rIn].table
			it.offset = regs[op.rIn].offset
			it.count = regs[op.rIn].count
			if it.count == 0 && it.table != nil {
				it.count = it.table.Count()
			}
		} else {
			e := regs[op.rIn].entity
			if table, row, ok := rule.store.EntityRecord(e); ok {
				it.table = table
				it.offset = row
				it.count = 1
			}
		}
	}

	for i := range rule.vars {
		if rule.vars[i].kind == varKindEntity {
			it.vars[i] = regs[i].entity
		} else {
			it.vars[i] = 0
		}
	}

	for i := range rule.terms {
		if sv := rule.subjVars[i]; sv != regNone {
			if rule.vars[sv].kind == varKindEntity {
				it.subjects[i] = regs[sv].entity
			}
		}
	}

	copy(it.termColumns, it.frameColumns(op.frame))
}
