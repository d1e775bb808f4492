package manifest

// termToPair encodes a term into a filter pair. Variables are encoded as
// register ids so the operation can reify them when a match happens;
// predicate attributes are sampled here, once, at compile time.
func (r *Rule) termToPair(term *Term) rulePair {
	result := rulePair{predReg: regNone, objReg: regNone}

	if term.Pred.Var {
		// Pairs always refer to the entity version of a variable.
		v := r.findVar(varKindEntity, term.Pred.Name)
		if v == regNone {
			panic("manifest: predicate variable not declared")
		}
		result.predReg = v
		result.regMask |= pairPredicate
		result.final = true
	} else {
		pred := term.Pred.Entity
		result.predEnt = pred
		if r.store.HasAttribute(pred, Transitive) {
			// Transitive evaluation needs an object
			if term.HasObj {
				result.transitive = true
			}
		}
		if r.store.HasAttribute(pred, Final) {
			result.final = true
		}
		if r.store.HasAttribute(pred, TransitiveSelf) {
			result.inclusive = true
		}
	}

	if !term.HasObj {
		return result
	}

	if term.Obj.Var {
		v := r.findVar(varKindEntity, term.Obj.Name)
		if v == regNone {
			panic("manifest: object variable not declared")
		}
		result.objReg = v
		result.regMask |= pairObject
	} else {
		result.objEnt = term.Obj.Entity
		if result.objEnt == 0 {
			result.obj0 = true
		}
	}
	return result
}

// toEntity returns the entity companion of a variable, or the variable
// itself if it already is one.
func (r *Rule) toEntity(v int) int {
	if v == regNone {
		return regNone
	}
	if r.vars[v].kind == varKindTable {
		return r.findVar(varKindEntity, r.vars[v].name)
	}
	return v
}

// mostSpecificVar returns the most specific written variable for v. With
// create set, a table binding is lowered to its entity companion by
// emitting an Each instruction.
func (r *Rule) mostSpecificVar(v int, written []bool, create bool) int {
	if v == regNone {
		return regNone
	}
	evar := r.toEntity(v)
	if evar == regNone {
		return v
	}
	tvar := v
	if r.vars[v].kind != varKindTable {
		tvar = r.findVar(varKindTable, r.vars[v].name)
	}
	if tvar != regNone && written[tvar] {
		if written[evar] {
			return evar
		}
		if create {
			idx := r.newOp()
			o := &r.ops[idx]
			o.kind = opEach
			o.onPass = len(r.ops)
			o.onFail = len(r.ops) - 2
			o.frame = r.frameCount
			o.hasIn = true
			o.hasOut = true
			o.rIn = tvar
			o.rOut = evar
			written[evar] = true
			r.pushFrame()
			return evar
		}
		return tvar
	}
	if written[evar] {
		return evar
	}
	return v
}

func (r *Rule) getMostSpecificVar(v int, written []bool) int {
	return r.mostSpecificVar(v, written, false)
}

func (r *Rule) ensureMostSpecificVar(v int, written []bool) int {
	return r.mostSpecificVar(v, written, true)
}

// ensureEntityWritten guarantees v is available as a written entity
// variable before it is used as an operation input.
func (r *Rule) ensureEntityWritten(v int, written []bool) int {
	if v == regNone {
		return regNone
	}
	evar := r.ensureMostSpecificVar(v, written)
	if r.vars[evar].kind != varKindEntity || !written[evar] {
		panic("manifest: entity variable not written")
	}
	return evar
}

// insertOp appends an instruction wired with the default pass/fail chain:
// pass to the next instruction, fail to the previous one.
func (r *Rule) insertOp(termIndex int, written []bool) int {
	var pair rulePair
	if termIndex != -1 {
		pair = r.termToPair(&r.terms[termIndex])
		// Substitute pair registers with the most specific known variable;
		// an operation must never overwrite an entity variable whose table
		// binding is already resolved.
		if pair.regMask&pairPredicate != 0 {
			pair.predReg = r.getMostSpecificVar(pair.predReg, written)
		}
		if pair.regMask&pairObject != 0 {
			pair.objReg = r.getMostSpecificVar(pair.objReg, written)
		}
	} else {
		pair = rulePair{predReg: regNone, objReg: regNone}
	}

	idx := r.newOp()
	o := &r.ops[idx]
	o.onPass = len(r.ops)
	o.onFail = len(r.ops) - 2
	o.frame = r.frameCount
	o.filter = pair
	o.term = termIndex
	return idx
}

func (r *Rule) insertInput() {
	idx := r.newOp()
	o := &r.ops[idx]
	o.kind = opInput
	o.onPass = 1
	// Redo on Input terminates the program.
	o.onFail = -1
	r.pushFrame()
}

func (r *Rule) insertYield() {
	idx := r.newOp()
	o := &r.ops[idx]
	o.kind = opYield
	o.hasIn = true
	o.onFail = len(r.ops) - 2

	// Prefer the entity version of this (.) so per-entity enumeration wins
	// over the table binding.
	v := r.findVar(varKindEntity, ".")
	if v == regNone {
		v = r.findVar(varKindTable, ".")
	}
	o.rIn = v
	o.frame = r.pushFrame()
}

// insertInclusiveSet emits a SubSet or SuperSet walk. With inclusive
// semantics the walk is preceded by SetJmp+Store and followed by Jump, so
// the first yield is the root itself and later redos come from the set
// operation.
func (r *Rule) insertInclusiveSet(kind opKind, out int, pair rulePair, c int, written []bool, inclusive bool) {
	if kind == opSuperSet && r.vars[out].kind != varKindEntity {
		panic("manifest: superset output must be an entity variable")
	}

	setjmpLbl := len(r.ops)
	storeLbl := setjmpLbl + 1
	setLbl := setjmpLbl + 2
	nextOp := setjmpLbl + 4
	prevOp := setjmpLbl - 1

	if inclusive {
		r.insertOp(-1, written)
		r.insertOp(-1, written)
		r.insertOp(-1, written)
	}
	last := r.insertOp(-1, written)

	setIdx := last - 1
	if !inclusive {
		setLbl = setjmpLbl
		setIdx = last
		nextOp = setLbl + 1
		prevOp = setLbl - 1
	}

	predVar, objVar := regNone, regNone
	if pair.regMask&pairPredicate != 0 {
		predVar = pair.predReg
	}
	if pair.regMask&pairObject != 0 {
		objVar = pair.objReg
	}

	if inclusive {
		setjmp := &r.ops[setjmpLbl]
		setjmp.kind = opSetJmp
		setjmp.onPass = storeLbl
		setjmp.onFail = setLbl

		// Store yields the root of the subtree; when it fails on redo,
		// SetJmp switches the program over to the set operation.
		store := &r.ops[storeLbl]
		store.kind = opStore
		store.onPass = nextOp
		store.onFail = setjmpLbl
		store.hasIn = true
		store.hasOut = true
		store.rOut = out
		store.term = c
		if predVar == regNone {
			store.filter.predEnt = pair.predEnt
		} else {
			store.filter.predReg = predVar
			store.filter.regMask |= pairPredicate
		}
		if objVar == regNone {
			store.rIn = regNone
			store.subject = r.store.GetAlive(pair.objEnt)
			store.filter.objEnt = pair.objEnt
		} else {
			store.rIn = objVar
			store.filter.objReg = objVar
			store.filter.regMask |= pairObject
		}
	}

	set := &r.ops[setIdx]
	set.kind = kind
	set.onPass = nextOp
	set.onFail = prevOp
	set.hasOut = true
	set.rOut = out
	set.term = c
	if predVar == regNone {
		set.filter.predEnt = pair.predEnt
	} else {
		set.filter.predReg = predVar
		set.filter.regMask |= pairPredicate
	}
	if objVar == regNone {
		set.filter.objEnt = pair.objEnt
	} else {
		set.filter.objReg = objVar
		set.filter.regMask |= pairObject
	}

	if inclusive {
		// Jump resolves its target from the SetJmp context at runtime; the
		// pass label stores where that context lives.
		jump := &r.ops[last]
		jump.kind = opJump
		jump.onPass = setjmpLbl
		jump.onFail = -1
	}

	written[out] = true
}

// storeInclusiveSet materializes a sub/superset expansion into an anonymous
// variable and returns its written entity companion.
func (r *Rule) storeInclusiveSet(kind opKind, pair *rulePair, written []bool, inclusive bool) int {
	// Subsets yield tables; supersets are resolved one entity at a time.
	kindOut := varKindTable
	if kind == opSuperSet {
		kindOut = varKindEntity
	}

	av := r.createAnonymousVar(kindOut)
	if kindOut == varKindTable {
		r.createVar(varKindEntity, r.vars[av].name)
	}

	r.insertInclusiveSet(kind, av, *pair, -1, written, inclusive)
	return r.ensureEntityWritten(av, written)
}

func isKnown(v int, written []bool) bool {
	return v == regNone || written[v]
}

func (r *Rule) isPairKnown(pair *rulePair, written []bool) bool {
	if pair.regMask&pairPredicate != 0 && !written[pair.predReg] {
		return false
	}
	if pair.regMask&pairObject != 0 && !written[pair.objReg] {
		return false
	}
	return true
}

func (r *Rule) setInputToSubj(idx int, term *Term, v int) {
	o := &r.ops[idx]
	o.hasIn = true
	if v == regNone {
		o.rIn = regNone
		o.subject = term.Subj.Entity
	} else {
		o.rIn = v
	}
}

func (r *Rule) setOutputToSubj(idx int, term *Term, v int) {
	o := &r.ops[idx]
	o.hasOut = true
	if v == regNone {
		o.rOut = regNone
		o.subject = term.Subj.Entity
	} else {
		o.rOut = v
	}
}

// insertSelectOrWith emits the matching instruction for a term: With when
// the subject is already bound (or literal), Select when it still has to be
// found. Literal subjects that may carry the filter through inheritance are
// first expanded through an inclusive IsA superset.
func (r *Rule) insertSelectOrWith(c int, term *Term, subj int, pair *rulePair, written []bool) {
	wildcardSubj := !term.Subj.Var && term.Subj.Entity == Wildcard

	evar := r.toEntity(subj)
	tvar := regNone
	if subj != regNone && r.vars[subj].kind == varKindTable {
		tvar = subj
	}

	lblStart := len(r.ops)
	var filter rulePair
	if pair != nil {
		filter = *pair
	} else {
		filter = r.termToPair(term)
	}

	evalSubjectSupersets := false
	if subj == regNone && !wildcardSubj {
		// Only insert implicit IsA if the filter isn't already an IsA
		if !filter.transitive || filter.predEnt != IsA {
			isaPair := rulePair{
				predReg: regNone,
				objReg:  regNone,
				predEnt: IsA,
				objEnt:  term.Subj.Entity,
			}
			subj = r.storeInclusiveSet(opSuperSet, &isaPair, written, true)
			evar = subj
			tvar = regNone
			evalSubjectSupersets = true
		}
	}

	var opIdx int
	if pair == nil {
		opIdx = r.insertOp(c, written)
	} else {
		// An explicit pair overrides the term's own; this is how a
		// predicate is substituted with its subsets when it is non-final.
		opIdx = r.insertOp(-1, written)
		r.ops[opIdx].filter = *pair
		r.ops[opIdx].term = c
	}

	switch {
	case evar != regNone && written[evar]:
		r.ops[opIdx].kind = opWith
		r.ops[opIdx].rIn = evar
		r.setInputToSubj(opIdx, term, subj)
	case tvar != regNone && written[tvar]:
		r.ops[opIdx].kind = opWith
		r.ops[opIdx].rIn = tvar
		r.setInputToSubj(opIdx, term, subj)
	case tvar == regNone && evar == regNone && !wildcardSubj:
		// Subject is neither table nor entity: With on the literal
		r.ops[opIdx].kind = opWith
		r.setInputToSubj(opIdx, term, subj)
	default:
		r.ops[opIdx].kind = opSelect
		if !wildcardSubj {
			r.setOutputToSubj(opIdx, term, subj)
			written[subj] = true
		}
	}

	// When the subject's supersets are being walked for a fully known
	// filter, one match suffices; the SetJmp cuts the walk short on redo.
	if evalSubjectSupersets && r.isPairKnown(&r.ops[opIdx].filter, written) {
		jmpIdx := r.insertOp(-1, written)
		o := &r.ops[jmpIdx]
		o.kind = opSetJmp
		o.onPass = len(r.ops)
		o.onFail = lblStart - 1
	}

	f := &r.ops[opIdx].filter
	if f.regMask&pairPredicate != 0 {
		written[f.predReg] = true
	}
	if f.regMask&pairObject != 0 {
		written[f.objReg] = true
	}
}

// preparePredicate substitutes a non-final predicate with the subsets of
// the IsA relation rooted at it, which implements implicit inheritance.
func (r *Rule) preparePredicate(pair *rulePair, written []bool) {
	if pair.final {
		return
	}
	isaPair := rulePair{
		predReg: regNone,
		objReg:  regNone,
		predEnt: IsA,
		objEnt:  pair.predEnt,
	}
	pred := r.storeInclusiveSet(opSubSet, &isaPair, written, true)
	pair.predReg = pred
	pair.regMask |= pairPredicate
}

func (r *Rule) insertTerm1(term *Term, filter *rulePair, c int, written []bool) {
	subj := r.getMostSpecificVar(r.termSubj(term), written)
	r.insertSelectOrWith(c, term, subj, filter, written)
}

// insertTerm2 emits instructions for a pair term. Transitive predicates
// pick an expansion strategy based on which sides are known at this point
// in the program.
func (r *Rule) insertTerm2(term *Term, filter *rulePair, c int, written []bool) {
	subj := r.getMostSpecificVar(r.termSubj(term), written)
	obj := r.getMostSpecificVar(r.termObj(term), written)

	if !filter.transitive {
		r.insertSelectOrWith(c, term, subj, filter, written)
		return
	}

	if isKnown(subj, written) {
		if isKnown(obj, written) {
			// Enumerate every subject whose relation chain reaches the
			// object by expanding the object into its subsets first.
			objSubsets := r.storeInclusiveSet(opSubSet, filter, written, true)
			pair := *filter
			pair.objReg = objSubsets
			pair.regMask |= pairObject
			r.insertSelectOrWith(c, term, subj, &pair, written)
			return
		}

		if subj == regNone || r.vars[subj].kind == varKindEntity {
			// Subject resolved to an entity: walk its supersets into the
			// object variable.
			obj = r.toEntity(obj)
			setPair := *filter
			setPair.regMask &= pairPredicate
			if subj != regNone {
				setPair.objReg = subj
				setPair.regMask |= pairObject
			} else {
				setPair.objEnt = term.Subj.Entity
			}
			r.insertInclusiveSet(opSuperSet, obj, setPair, c, written, filter.inclusive)
			return
		}

		// Subject is a table binding: find the initial object per entity,
		// then return its supersets. Inclusive, since the object from the
		// pair the entity itself has must be returned too.
		av := r.createAnonymousVar(varKindEntity)
		obj = r.toEntity(obj)
		setPair := *filter
		setPair.objReg = av
		setPair.regMask |= pairObject
		r.insertSelectOrWith(c, term, subj, &setPair, written)
		r.pushFrame()
		r.insertInclusiveSet(opSuperSet, obj, setPair, c, written, true)
		return
	}

	if isKnown(obj, written) {
		// Expand the object downwards into the subject variable.
		setPair := *filter
		setPair.regMask &= pairPredicate
		if obj != regNone {
			setPair.objReg = obj
			setPair.regMask |= pairObject
		} else {
			setPair.objEnt = term.Obj.Entity
		}
		r.insertInclusiveSet(opSubSet, subj, setPair, c, written, filter.inclusive)
		return
	}

	if subj == obj {
		r.insertSelectOrWith(c, term, subj, filter, written)
		return
	}

	// Neither side known: select all (pred, *) pairs, then expand each
	// concrete object upwards.
	av := r.createAnonymousVar(varKindEntity)
	obj = r.toEntity(obj)

	opIdx := r.insertOp(-1, written)
	o := &r.ops[opIdx]
	o.kind = opSelect
	r.setOutputToSubj(opIdx, term, subj)
	o = &r.ops[opIdx]
	o.filter.predEnt = filter.predEnt
	o.filter.predReg = filter.predReg
	o.filter.objReg = av
	o.filter.regMask = filter.regMask | pairObject

	written[subj] = true
	written[av] = true

	r.pushFrame()

	selFilter := r.ops[opIdx].filter
	r.insertInclusiveSet(opSuperSet, obj, selFilter, c, written, true)
}

// insertTerm emits the instruction group for one term, wrapping it for the
// Not and Optional modifiers.
func (r *Rule) insertTerm(term *Term, c int, written []bool) {
	objSet := term.HasObj

	r.ensureMostSpecificVar(r.termPred(term), written)
	if objSet {
		r.ensureMostSpecificVar(r.termObj(term), written)
	}

	// A leading Not turns the group's fail into a pass.
	prev := len(r.ops)
	if term.Oper == OperNot {
		notPre := r.insertOp(-1, written)
		r.ops[notPre].kind = opNot
	}

	filter := r.termToPair(term)
	r.preparePredicate(&filter, written)

	if !objSet {
		r.insertTerm1(term, &filter, c, written)
	} else {
		r.insertTerm2(term, &filter, c, written)
	}

	if term.Oper == OperNot {
		// The trailing Not turns the group's pass back into a fail.
		notPost := r.insertOp(-1, written)
		o := &r.ops[notPost]
		o.kind = opNot
		o.onPass = prev - 1
		o.onFail = prev - 1
		r.ops[prev].onFail = len(r.ops)
	}

	if term.Oper == OperOptional {
		// The jump ensures the optional group runs at most once per outer
		// context.
		jmpIdx := r.insertOp(-1, written)
		o := &r.ops[jmpIdx]
		o.kind = opNot
		o.onPass = len(r.ops)
		o.onFail = prev - 1

		// Reroute the group's exit fail label through the jump so failure
		// does not roll back results.
		minFail, exitOp := -1, -1
		for i := prev; i < len(r.ops); i++ {
			op := &r.ops[i]
			if minFail == -1 || (op.onFail >= 0 && op.onFail < minFail) {
				minFail = op.onFail
				exitOp = i
			}
		}
		r.ops[exitOp].onFail = len(r.ops) - 1
	}

	r.pushFrame()
}

// compileProgram turns the term list into the instruction array. Terms with
// literal subjects come first, then terms grouped per subject variable in
// dependency order, then wildcard subjects, then Not terms, then Optional
// terms; the epilogue enumerates any entity variable that is still only
// known as a table.
func (r *Rule) compileProgram() {
	written := make([]bool, maxVariableCount)

	r.insertInput()

	for c := range r.terms {
		term := &r.terms[c]
		if skipTerm(term) || term.Oper == OperOptional {
			continue
		}
		if r.termSubj(term) != regNone {
			continue
		}
		if !term.Subj.Var && term.Subj.Entity == Wildcard {
			continue
		}
		r.insertTerm(term, c, written)
	}

	for v := 0; v < r.subjectVarCount; v++ {
		for c := range r.terms {
			term := &r.terms[c]
			if skipTerm(term) || term.Oper == OperOptional {
				continue
			}
			if r.termSubj(term) != v {
				continue
			}
			r.insertTerm(term, c, written)
		}
	}

	for c := range r.terms {
		term := &r.terms[c]
		if term.Oper != OperAnd {
			continue
		}
		if term.Subj.Var || term.Subj.Entity != Wildcard {
			continue
		}
		r.insertTerm(term, c, written)
	}

	for c := range r.terms {
		term := &r.terms[c]
		if term.Oper != OperNot {
			continue
		}
		r.insertTerm(term, c, written)
	}

	for c := range r.terms {
		term := &r.terms[c]
		if term.Oper != OperOptional {
			continue
		}
		r.insertTerm(term, c, written)
	}

	// Every subject variable must be written by now, either as a table or
	// through its entity companion.
	for v := 0; v < r.subjectVarCount; v++ {
		if !written[v] {
			evar := r.findVar(varKindEntity, r.vars[v].name)
			if evar == regNone || !written[evar] {
				panic("manifest: subject variable not written by compiled program")
			}
		}
	}

	// Entity variables that are only constrained through a shared predicate
	// or object enumerate their table binding entity by entity.
	for v := r.subjectVarCount; v < len(r.vars); v++ {
		if written[v] {
			continue
		}
		if r.vars[v].kind != varKindEntity {
			panic("manifest: unwritten table variable after emission")
		}
		tableVar := r.findVar(varKindTable, r.vars[v].name)
		if tableVar == regNone {
			panic("manifest: unconstrained variable escaped the compiler")
		}
		idx := r.insertOp(-1, written)
		o := &r.ops[idx]
		o.kind = opEach
		o.hasIn = true
		o.hasOut = true
		o.rIn = tableVar
		o.rOut = v
		written[v] = true
		r.pushFrame()
	}

	r.insertYield()
}
