package manifest

// setStackDepth is the inline frame capacity for sub/superset walks; deeper
// hierarchies spill to the heap.
const setStackDepth = 16

type subsetFrame struct {
	with   withCtx
	table  Table
	row    int
	column int
}

type subsetCtx struct {
	storage [setStackDepth]subsetFrame
	stack   []subsetFrame
	sp      int
}

func (c *subsetCtx) reset() {
	c.stack = c.storage[:0]
	c.sp = 0
}

func (c *subsetCtx) frame(i int) *subsetFrame {
	for len(c.stack) <= i {
		c.stack = append(c.stack, subsetFrame{})
	}
	return &c.stack[i]
}

type supersetFrame struct {
	table  Table
	column int
}

type supersetCtx struct {
	storage [setStackDepth]supersetFrame
	stack   []supersetFrame
	sp      int
}

func (c *supersetCtx) reset() {
	c.stack = c.storage[:0]
	c.sp = 0
}

func (c *supersetCtx) frame(i int) *supersetFrame {
	for len(c.stack) <= i {
		c.stack = append(c.stack, supersetFrame{})
	}
	return &c.stack[i]
}

// evalSubSet walks the relation downwards, depth first: it yields every
// table under (pred, obj), then expands each of their entities as the next
// object. The frame stack holds one table-set cursor per level.
func (it *Iterator) evalSubSet(opIdx int, redo bool) bool {
	r := it.rule
	o := &r.ops[opIdx]
	ctx := &it.ctx[opIdx].subset
	regs := it.frameRegs(o.frame)
	out := o.rOut

	pair := o.filter
	filter := it.pairToFilterPair(o, pair)

	if !redo {
		ctx.reset()
		f := ctx.frame(0)
		f.with.records = findTables(r.store, filter.mask)
		if f.with.records == nil {
			return false
		}
		f.with.tableIndex = 0
		tr := findNextTable(&filter, &f.with)
		if tr.Table == nil {
			return false
		}
		f.row = 0
		f.column = tr.Column
		f.table = tr.Table
		tableRegSet(r, regs, out, tr.Table)
		it.setColumn(opIdx, tr.Table.Type(), tr.Column)
		return true
	}

	var table Table
	for table == nil {
		sp := ctx.sp
		f := &ctx.stack[sp]
		table = f.table
		row := f.row

		// Rows exhausted: advance to the next table of this frame, or pop
		// back to the parent and continue with its next row.
		for row >= table.Count() {
			tr := findNextTable(&filter, &f.with)
			if tr.Table != nil {
				f.table = tr.Table
				f.row = 0
				f.column = tr.Column
				it.setColumn(opIdx, tr.Table.Type(), tr.Column)
				tableRegSet(r, regs, out, tr.Table)
				return true
			}
			ctx.sp--
			sp = ctx.sp
			if sp < 0 {
				return false
			}
			f = &ctx.stack[sp]
			table = f.table
			f.row++
			row = f.row
		}

		rowCount := table.Count()
		entities := table.Entities()
		table = nil
		for table == nil && row < rowCount {
			e := entities[row]

			// Look for the relation with the resolved entity as object
			pair.regMask &^= pairObject
			pair.objEnt = e
			filter = it.pairToFilterPair(o, pair)

			if records := findTables(r.store, filter.mask); records != nil {
				newFrame := ctx.frame(sp + 1)
				newFrame.with.records = records
				newFrame.with.tableIndex = 0
				tr := findNextTable(&filter, &newFrame.with)
				if tr.Table != nil {
					table = tr.Table
					ctx.sp++
					newFrame.table = table
					newFrame.row = 0
					newFrame.column = tr.Column
				}
			}
			if table == nil {
				// The stack may have grown; refetch the frame.
				f = &ctx.stack[sp]
				f.row++
				row = f.row
			}
		}
	}

	tableRegSet(r, regs, out, table)
	top := &ctx.stack[ctx.sp]
	it.setColumn(opIdx, table.Type(), top.column)
	return true
}

// evalSuperSet walks the relation upwards: the object found at the current
// pair column becomes the next subject to inspect. Outputs are entities,
// resolved one per redo.
func (it *Iterator) evalSuperSet(opIdx int, redo bool) bool {
	r := it.rule
	o := &r.ops[opIdx]
	ctx := &it.ctx[opIdx].superset
	regs := it.frameRegs(o.frame)
	out := o.rOut

	filter := it.pairToFilter(opIdx)
	superFilter := ruleFilter{
		mask:  Pair(filter.mask.Pred(), Wildcard),
		loVar: regNone,
		hiVar: regNone,
	}

	if !redo {
		ctx.reset()
		f := ctx.frame(0)

		// There is nothing to determine a superset for a wildcard object.
		obj := filter.mask.Obj()
		if obj == Wildcard {
			return false
		}

		table := tableFromEntity(r.store, r.store.GetAlive(obj))
		if table == nil {
			return false
		}
		column := findNextColumn(table, -1, &superFilter)
		if column == -1 {
			return false
		}

		colObj := r.store.GetAlive(table.Type()[column].Obj())
		if colObj == 0 {
			return false
		}
		entityRegSet(r, regs, out, colObj)
		it.setColumn(opIdx, table.Type(), column)

		f.table = table
		f.column = column
		return true
	}

	sp := ctx.sp
	f := &ctx.stack[sp]

	// Descend into the superset yielded last time before resuming the scan.
	colObj := f.table.Type()[f.column].Obj()
	if nextTable := tableFromEntity(r.store, r.store.GetAlive(colObj)); nextTable != nil {
		sp++
		f = ctx.frame(sp)
		f.table = nextTable
		f.column = -1
	}

	for sp >= 0 {
		f = &ctx.stack[sp]
		column := findNextColumn(f.table, f.column, &superFilter)
		if column != -1 {
			ctx.sp = sp
			f.column = column
			next := r.store.GetAlive(f.table.Type()[column].Obj())
			if next == 0 {
				return false
			}
			entityRegSet(r, regs, out, next)
			it.setColumn(opIdx, f.table.Type(), column)
			return true
		}
		sp--
	}
	return false
}
